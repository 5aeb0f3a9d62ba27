package cql

func init() {
	RegisterDialect(Cassandra, func() Dialect { return cassandraDialect{} })
}

type cassandraDialect struct{}

func (cassandraDialect) Name() Family               { return Cassandra }
func (cassandraDialect) SupportsIfNotExists() bool  { return true }
func (cassandraDialect) CompactionStrategy() string { return "LeveledCompactionStrategy" }
