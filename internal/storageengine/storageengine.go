// Package storageengine is the facade every caller of this module talks to
// (§4.4, §6.2): it owns the driver handle and reconnect loop, the
// per-keyspace schema cache, and dispatches createTable/getSchema/get/put/
// delete/dropTable by composing core, nameenc, cql, querybuilder, and index.
package storageengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"rashomon/internal/core"
	"rashomon/internal/cql"
	"rashomon/internal/driver"
	"rashomon/internal/index"
	"rashomon/internal/nameenc"
	"rashomon/internal/predicate"
	"rashomon/internal/querybuilder"
)

const reconnectInterval = 500 * time.Millisecond

// Result is the facade's status-bearing response shape (§6.2).
type Result struct {
	Status int
	Count  int
	Items  []driver.Row
}

// Engine is the storage engine facade. Exactly one should be constructed per
// process; it is safe for concurrent use from multiple goroutines.
type Engine struct {
	exec    driver.Executor
	dialect cql.Dialect

	mu          sync.RWMutex
	schemaCache map[string]*entry

	// inflight de-duplicates concurrent first-access loads of the same
	// keyspace (§5's "single-flight" requirement).
	inflight sync.Map // keyspace -> *sync.WaitGroup
}

type entry struct {
	schema  *core.Schema
	builder *querybuilder.Builder
}

// New constructs an Engine around an already-connected driver.Executor and
// store family.
func New(exec driver.Executor, family cql.Family) (*Engine, error) {
	d, err := cql.GetDialect(family)
	if err != nil {
		return nil, err
	}
	return &Engine{
		exec:        exec,
		dialect:     d,
		schemaCache: map[string]*entry{},
	}, nil
}

// Connect implements §4.4's bootstrap sequence: connect against the
// "system" keyspace, retrying on a fixed interval until a connect succeeds
// or ctx is done, and return the Engine built on that connection.
func Connect(ctx context.Context, hosts []string, family cql.Family) (*Engine, error) {
	var d *driver.GocqlDriver
	var err error
	for {
		d, err = driver.Connect(hosts, "system")
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("storageengine: connect canceled: %w", ctx.Err())
		case <-time.After(reconnectInterval):
		}
	}
	return New(d, family)
}

// CreateTable implements createTable: compute the keyspace, emit CREATE
// KEYSPACE/TABLE statements for data/meta/each secondary index, then insert
// the meta row, and install the validated schema in the cache.
func (e *Engine) CreateTable(ctx context.Context, schema *core.Schema) (Result, error) {
	if err := schema.Validate(); err != nil {
		return Result{}, err
	}
	b := querybuilder.New(schema, e.dialect)

	stmts, err := b.CreateTable()
	if err != nil {
		return Result{}, err
	}
	for _, stmt := range stmts {
		if _, err := e.exec.Execute(ctx, stmt, driver.ExecOptions{Consistency: driver.ConsistencyOne}); err != nil {
			return Result{}, fmt.Errorf("storageengine: createTable: %w", err)
		}
	}

	e.mu.Lock()
	e.schemaCache[b.Keyspace()] = &entry{schema: schema, builder: b}
	e.mu.Unlock()

	return Result{Status: 201}, nil
}

// GetSchema implements getSchema: return the cached schema for (domain,
// table), loading it from the keyspace's meta table on first access. Returns
// core.ErrNotFound if the keyspace or its meta row doesn't exist.
func (e *Engine) GetSchema(ctx context.Context, domain, table string) (*core.Schema, error) {
	en, err := e.loadEntry(ctx, domain, table)
	if err != nil {
		return nil, err
	}
	return en.schema, nil
}

// loadEntry returns the cached (schema, builder) pair for (domain, table),
// populating the cache from the meta table on first access. Concurrent
// first-accesses to the same keyspace are serialized via inflight so only
// one meta read happens (§5).
func (e *Engine) loadEntry(ctx context.Context, domain, table string) (*entry, error) {
	ks := nameenc.KeyspaceName(domain, table)

	e.mu.RLock()
	en, ok := e.schemaCache[ks]
	e.mu.RUnlock()
	if ok {
		return en, nil
	}

	pending := &sync.WaitGroup{}
	pending.Add(1)
	wgAny, loaded := e.inflight.LoadOrStore(ks, pending)
	wg := wgAny.(*sync.WaitGroup)
	if loaded {
		wg.Wait()
		e.mu.RLock()
		en, ok := e.schemaCache[ks]
		e.mu.RUnlock()
		if ok {
			return en, nil
		}
		return nil, core.ErrNotFound
	}

	defer func() {
		wg.Done()
		e.inflight.Delete(ks)
	}()

	stmt := querybuilder.Statement{
		CQL:    fmt.Sprintf(`SELECT value FROM %s WHERE key = ?;`, nameenc.QuoteIdentifier(ks)+"."+nameenc.QuoteIdentifier("meta")),
		Params: []any{"schema"},
	}
	rows, err := e.exec.Execute(ctx, stmt, driver.ExecOptions{Consistency: driver.ConsistencyOne})
	if err != nil {
		return nil, fmt.Errorf("storageengine: load schema for %s.%s: %w", domain, table, err)
	}
	if len(rows) == 0 {
		return nil, core.ErrNotFound
	}
	value, _ := rows[0]["value"].(string)
	schema, err := core.UnmarshalMeta([]byte(value))
	if err != nil {
		return nil, err
	}

	en = &entry{schema: schema, builder: querybuilder.New(schema, e.dialect)}
	e.mu.Lock()
	e.schemaCache[ks] = en
	e.mu.Unlock()
	return en, nil
}

// Get implements get(domain, req): resolve the schema, route to the data
// table or a secondary index, and delegate index reads to the index
// maintainer for cross-check/read-repair.
func (e *Engine) Get(ctx context.Context, domain, table string, req querybuilder.GetRequest, consistency string) (Result, error) {
	en, err := e.loadEntry(ctx, domain, table)
	if err != nil {
		return Result{}, err
	}
	level, err := querybuilder.ValidateConsistency(consistency)
	if err != nil {
		return Result{}, err
	}
	opts := driver.ExecOptions{Consistency: driver.Consistency(level)}

	if req.Index != "" {
		m := index.New(en.schema, en.builder, e.exec)
		asOf := maxTimeuuid()
		rows, err := m.Get(ctx, req, asOf, opts.Consistency)
		if err != nil {
			return Result{}, err
		}
		return Result{Status: 200, Count: len(rows), Items: rows}, nil
	}

	stmt, err := en.builder.Get(req)
	if err != nil {
		return Result{}, err
	}
	rows, err := e.exec.Execute(ctx, stmt, opts)
	if err != nil {
		return Result{}, fmt.Errorf("storageengine: get: %w", err)
	}
	return Result{Status: 200, Count: len(rows), Items: rows}, nil
}

// maxTimeuuid returns a timeuuid string sorting after any revision written
// up to now, used as the "as of" bound for a plain (non-time-travel) read.
func maxTimeuuid() string {
	id, err := uuid.NewUUID()
	if err != nil {
		return ""
	}
	return id.String()
}

// Put implements put(domain, req): synthesize a fresh _tid when the schema
// carries one, then delegate to the index maintainer so the write-path
// batch (index rows + data row) is issued atomically, followed by an
// asynchronous repair pass.
func (e *Engine) Put(ctx context.Context, domain, table string, attrs map[string]any, ifNotExists bool, ifCond map[string]predicate.Predicate, consistency string) (Result, error) {
	en, err := e.loadEntry(ctx, domain, table)
	if err != nil {
		return Result{}, err
	}
	level, err := querybuilder.ValidateConsistency(consistency)
	if err != nil {
		return Result{}, err
	}
	dLevel := driver.Consistency(level)

	var tid string
	if en.schema.HasSyntheticTid() {
		id, err := uuid.NewUUID()
		if err != nil {
			return Result{}, fmt.Errorf("storageengine: synthesize _tid: %w", err)
		}
		tid = id.String()
		attrs["_tid"] = tid
	} else if t, ok := attrs[en.schema.TidAttribute()]; ok {
		if s, ok := t.(string); ok {
			tid = s
		}
	}

	putReq := querybuilder.PutRequest{Attributes: attrs, IfNotExists: ifNotExists, If: ifCond}

	if len(en.schema.SecondaryIndexes) == 0 {
		stmt, err := en.builder.Put(putReq)
		if err != nil {
			return Result{}, err
		}
		if _, err := e.exec.Execute(ctx, stmt, driver.ExecOptions{Consistency: dLevel}); err != nil {
			return Result{}, fmt.Errorf("storageengine: put: %w", err)
		}
		return Result{Status: 201}, nil
	}

	m := index.New(en.schema, en.builder, e.exec)
	if err := m.Put(ctx, attrs, putReq, tid, dLevel); err != nil {
		return Result{}, fmt.Errorf("storageengine: put: %w", err)
	}
	if tid != "" {
		m.RepairAsync(context.WithoutCancel(ctx), attrs[en.schema.HashAttribute()], tid, dLevel)
	}
	return Result{Status: 201}, nil
}

// Delete implements delete(domain, req): an unconditional partition delete.
func (e *Engine) Delete(ctx context.Context, domain, table string, attrs map[string]predicate.Predicate, consistency string) (Result, error) {
	en, err := e.loadEntry(ctx, domain, table)
	if err != nil {
		return Result{}, err
	}
	level, err := querybuilder.ValidateConsistency(consistency)
	if err != nil {
		return Result{}, err
	}
	stmt, err := en.builder.Delete(querybuilder.DeleteRequest{Attributes: attrs})
	if err != nil {
		return Result{}, err
	}
	if _, err := e.exec.Execute(ctx, stmt, driver.ExecOptions{Consistency: driver.Consistency(level)}); err != nil {
		return Result{}, fmt.Errorf("storageengine: delete: %w", err)
	}
	return Result{Status: 200}, nil
}

// DropTable implements dropTable(domain, table): drop the derived keyspace
// and evict its cache entry.
func (e *Engine) DropTable(ctx context.Context, domain, table string) (Result, error) {
	en, err := e.loadEntry(ctx, domain, table)
	if err != nil {
		return Result{}, err
	}
	stmt := en.builder.DropTable()
	if _, err := e.exec.Execute(ctx, stmt, driver.ExecOptions{Consistency: driver.ConsistencyOne}); err != nil {
		return Result{}, fmt.Errorf("storageengine: dropTable: %w", err)
	}

	e.mu.Lock()
	delete(e.schemaCache, nameenc.KeyspaceName(domain, table))
	e.mu.Unlock()

	return Result{Status: 200}, nil
}

// Close releases the underlying driver connection.
func (e *Engine) Close() error {
	return e.exec.Close()
}
