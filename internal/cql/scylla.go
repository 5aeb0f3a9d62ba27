package cql

func init() {
	RegisterDialect(Scylla, func() Dialect { return scyllaDialect{} })
}

type scyllaDialect struct{}

func (scyllaDialect) Name() Family               { return Scylla }
func (scyllaDialect) SupportsIfNotExists() bool  { return true }
func (scyllaDialect) CompactionStrategy() string { return "SizeTieredCompactionStrategy" }
