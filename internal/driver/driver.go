// Package driver defines the store-driver contract the storage engine
// depends on (§6.1) and a gocql-backed implementation against the
// Cassandra/Scylla wire protocol.
package driver

import (
	"context"
	"fmt"

	"rashomon/internal/querybuilder"
)

// Row is one returned record, keyed by column name.
type Row map[string]any

// Consistency mirrors querybuilder.ConsistencyLevel at the driver boundary.
type Consistency string

const (
	ConsistencyOne         Consistency = "one"
	ConsistencyAll         Consistency = "all"
	ConsistencyLocalQuorum Consistency = "localQuorum"
)

// ExecOptions controls one statement's execution.
type ExecOptions struct {
	Consistency Consistency
	Prepared    bool
}

// StreamOptions controls a paginated read.
type StreamOptions struct {
	ExecOptions
	AutoPage  bool
	FetchSize int
	PageState []byte
}

// RowHandler receives rows as a stream progresses; returning an error stops
// the stream early.
type RowHandler func(Row) error

// Executor is the driver contract §6.1 describes: execute, batch, and
// stream, against an already-connected session.
type Executor interface {
	// Execute runs a single statement and returns its result rows.
	Execute(ctx context.Context, stmt querybuilder.Statement, opts ExecOptions) ([]Row, error)
	// Batch runs a list of statements as one atomic (coordinator-level)
	// batch, sharing a logical write timestamp when timestampMicros is
	// non-zero.
	Batch(ctx context.Context, stmts []querybuilder.Statement, opts ExecOptions, timestampMicros int64) error
	// Stream emits rows for a (typically large) result set via handler,
	// auto-paging according to opts.
	Stream(ctx context.Context, stmt querybuilder.Statement, opts StreamOptions, handler RowHandler) error
	// Close releases the underlying connection/session.
	Close() error
}

// ErrNoKeyspace names the condition where the bootstrap "system" keyspace
// connect succeeds but the application keyspace referenced by a later query
// does not exist. No function in this module returns it: Connect and the
// Executor methods return the gocql error wrapped, and no bootstrap DDL is
// run when a keyspace is missing.
var ErrNoKeyspace = fmt.Errorf("driver: keyspace does not exist")
