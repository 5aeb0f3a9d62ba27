// Package cql is a small registry of store-family quirks (Cassandra,
// Scylla) that the query builder consults when emitting CQL. Every family
// speaks the same CQL dialect for the statements this module issues; the
// registry exists for the handful of points where they diverge (compaction
// strategy naming, IF NOT EXISTS support on DDL).
package cql

import (
	"fmt"
	"sync"
)

// Family identifies a target store implementation.
type Family string

const (
	Cassandra Family = "cassandra"
	Scylla    Family = "scylla"
)

// Dialect describes one store family's CQL quirks.
type Dialect interface {
	Name() Family
	// SupportsIfNotExists reports whether CREATE KEYSPACE/TABLE IF NOT
	// EXISTS is honored server-side (both families support it). The query
	// builder does not consult it and always emits IF NOT EXISTS.
	SupportsIfNotExists() bool
	// CompactionStrategy returns the compaction strategy class used for
	// data, meta, and index tables.
	CompactionStrategy() string
}

var (
	registryMu sync.RWMutex
	registry   = map[Family]func() Dialect{}
)

// RegisterDialect adds a dialect constructor to the registry. Dialects
// self-register from an init() in their own file, mirroring GetDialect's
// single point of truth.
func RegisterDialect(f Family, ctor func() Dialect) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[f] = ctor
}

// GetDialect looks up a registered dialect by family.
func GetDialect(f Family) (Dialect, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	ctor, ok := registry[f]
	if !ok {
		return nil, fmt.Errorf("cql: dialect %q is not registered", f)
	}
	return ctor(), nil
}
