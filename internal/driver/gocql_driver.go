package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/apache/cassandra-gocql-driver/v2"

	"rashomon/internal/querybuilder"
)

// GocqlDriver adapts a *gocql.Session to the Executor contract.
type GocqlDriver struct {
	session *gocql.Session
}

// Connect dials the given hosts and returns a ready Executor. keyspace may
// be "system" for the bootstrap connect described in §4.4.
func Connect(hosts []string, keyspace string) (*GocqlDriver, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.One
	cluster.Timeout = 10 * time.Second

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("driver: connect: %w", err)
	}
	return &GocqlDriver{session: session}, nil
}

func toGocqlConsistency(c Consistency) gocql.Consistency {
	switch c {
	case ConsistencyAll:
		return gocql.All
	case ConsistencyLocalQuorum:
		return gocql.LocalQuorum
	default:
		return gocql.One
	}
}

func (d *GocqlDriver) Execute(ctx context.Context, stmt querybuilder.Statement, opts ExecOptions) ([]Row, error) {
	q := d.session.Query(stmt.CQL, stmt.Params...).
		WithContext(ctx).
		Consistency(toGocqlConsistency(opts.Consistency))
	if opts.Prepared {
		q = q.Idempotent(true)
	}

	iter := q.Iter()
	var rows []Row
	for {
		row := map[string]any{}
		if !iter.MapScan(row) {
			break
		}
		rows = append(rows, row)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("driver: execute: %w", err)
	}
	return rows, nil
}

func (d *GocqlDriver) Batch(ctx context.Context, stmts []querybuilder.Statement, opts ExecOptions, timestampMicros int64) error {
	batch := d.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Cons = toGocqlConsistency(opts.Consistency)
	if timestampMicros != 0 {
		batch.WithTimestamp(timestampMicros)
	}
	for _, s := range stmts {
		batch.Query(s.CQL, s.Params...)
	}
	if err := d.session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("driver: batch: %w", err)
	}
	return nil
}

func (d *GocqlDriver) Stream(ctx context.Context, stmt querybuilder.Statement, opts StreamOptions, handler RowHandler) error {
	q := d.session.Query(stmt.CQL, stmt.Params...).
		WithContext(ctx).
		Consistency(toGocqlConsistency(opts.Consistency)).
		PageSize(opts.FetchSize)
	if len(opts.PageState) > 0 {
		q = q.PageState(opts.PageState)
	}

	iter := q.Iter()
	for {
		row := map[string]any{}
		if !iter.MapScan(row) {
			break
		}
		if err := handler(row); err != nil {
			_ = iter.Close()
			return err
		}
	}
	return iter.Close()
}

func (d *GocqlDriver) Close() error {
	d.session.Close()
	return nil
}
