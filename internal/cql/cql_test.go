package cql_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rashomon/internal/cql"
)

func TestGetDialect_RegisteredFamilies(t *testing.T) {
	c, err := cql.GetDialect(cql.Cassandra)
	require.NoError(t, err)
	assert.Equal(t, cql.Cassandra, c.Name())
	assert.True(t, c.SupportsIfNotExists())

	s, err := cql.GetDialect(cql.Scylla)
	require.NoError(t, err)
	assert.Equal(t, cql.Scylla, s.Name())
}

func TestGetDialect_UnknownFamily(t *testing.T) {
	_, err := cql.GetDialect(cql.Family("unknown"))
	require.Error(t, err)
}
