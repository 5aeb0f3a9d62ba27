package querybuilder_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rashomon/internal/core"
	"rashomon/internal/cql"
	"rashomon/internal/predicate"
	"rashomon/internal/querybuilder"
)

func pagesSchema(t *testing.T) *core.Schema {
	t.Helper()
	s := &core.Schema{
		Domain: "org.wikipedia.en",
		Table:  "pages",
		Attributes: map[string]core.AttributeType{
			"key":  core.TypeString,
			"uri":  core.TypeString,
			"body": core.TypeBlob,
		},
		Index: []core.IndexElement{
			{Attribute: "key", Role: core.RoleHash},
		},
		SecondaryIndexes: map[string]*core.SecondaryIndex{
			"by_uri": {Elements: []core.IndexElement{
				{Attribute: "uri", Role: core.RoleHash},
			}},
		},
	}
	require.NoError(t, s.Validate())
	return s
}

func newBuilder(t *testing.T, s *core.Schema) *querybuilder.Builder {
	t.Helper()
	d, err := cql.GetDialect(cql.Cassandra)
	require.NoError(t, err)
	return querybuilder.New(s, d)
}

func TestCreateTable_EmitsKeyspaceDataMetaAndIndex(t *testing.T) {
	s := pagesSchema(t)
	b := newBuilder(t, s)

	stmts, err := b.CreateTable()
	require.NoError(t, err)
	require.Len(t, stmts, 5) // keyspace, data, meta, idx_by_uri_ever, meta row insert

	assert.Contains(t, stmts[0].CQL, "CREATE KEYSPACE IF NOT EXISTS")
	assert.Contains(t, stmts[1].CQL, `"data"`)
	assert.Contains(t, stmts[1].CQL, "_tid")
	assert.Contains(t, stmts[2].CQL, `"meta"`)
	assert.Contains(t, stmts[3].CQL, "idx_by_uri_ever")
}

func TestGet_RejectsNonKeyAttributeOnDataTable(t *testing.T) {
	s := pagesSchema(t)
	b := newBuilder(t, s)

	_, err := b.Get(querybuilder.GetRequest{
		Attributes: map[string]predicate.Predicate{
			"uri": {Op: predicate.OpEq, Value: "/wiki/Go"},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidQuery)
}

func TestGet_IndexReadPadsLimit(t *testing.T) {
	s := pagesSchema(t)
	b := newBuilder(t, s)

	stmt, err := b.Get(querybuilder.GetRequest{
		Index: "by_uri",
		Attributes: map[string]predicate.Predicate{
			"uri": {Op: predicate.OpEq, Value: "/wiki/Go"},
		},
		Limit: 4,
	})
	require.NoError(t, err)
	assert.Contains(t, stmt.CQL, "idx_by_uri_ever")
	assert.Contains(t, stmt.CQL, "LIMIT 5") // 4 + ceil(4/4)
	assert.Equal(t, []any{"/wiki/Go"}, stmt.Params)
}

func TestPut_InsertWhenNoNonKeyAttributes(t *testing.T) {
	s := pagesSchema(t)
	b := newBuilder(t, s)

	stmt, err := b.Put(querybuilder.PutRequest{
		Attributes: map[string]any{"key": "a", "_tid": "t1"},
	})
	require.NoError(t, err)
	assert.Contains(t, stmt.CQL, "INSERT INTO")
}

func TestPut_UpdateWhenNonKeyAttributesPresent(t *testing.T) {
	s := pagesSchema(t)
	b := newBuilder(t, s)

	stmt, err := b.Put(querybuilder.PutRequest{
		Attributes: map[string]any{"key": "a", "_tid": "t1", "body": []byte("hi")},
	})
	require.NoError(t, err)
	assert.Contains(t, stmt.CQL, "UPDATE")
	assert.Contains(t, stmt.CQL, "SET")
	assert.Contains(t, stmt.CQL, "WHERE")
}

func TestPut_MissingPrimaryKeyIsInvalidQuery(t *testing.T) {
	s := pagesSchema(t)
	b := newBuilder(t, s)

	_, err := b.Put(querybuilder.PutRequest{Attributes: map[string]any{"body": []byte("hi")}})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidQuery)
}

func TestPut_IfNotExists(t *testing.T) {
	s := pagesSchema(t)
	b := newBuilder(t, s)

	stmt, err := b.Put(querybuilder.PutRequest{
		Attributes:  map[string]any{"key": "a", "_tid": "t1", "body": []byte("hi")},
		IfNotExists: true,
	})
	require.NoError(t, err)
	assert.Contains(t, stmt.CQL, "INSERT INTO")
	assert.Contains(t, stmt.CQL, "IF NOT EXISTS")
}

func TestDelete_UnconditionalPartitionDelete(t *testing.T) {
	s := pagesSchema(t)
	b := newBuilder(t, s)

	stmt, err := b.Delete(querybuilder.DeleteRequest{
		Attributes: map[string]predicate.Predicate{
			"key": {Op: predicate.OpEq, Value: "a"},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, stmt.CQL, "DELETE FROM")
	assert.Equal(t, []any{"a"}, stmt.Params)
}

func TestDropTable_EmitsDropKeyspace(t *testing.T) {
	s := pagesSchema(t)
	b := newBuilder(t, s)

	stmt := b.DropTable()
	assert.Contains(t, stmt.CQL, "DROP KEYSPACE IF EXISTS")
}

func TestValidateConsistency(t *testing.T) {
	c, err := querybuilder.ValidateConsistency("")
	require.NoError(t, err)
	assert.Equal(t, querybuilder.ConsistencyOne, c)

	_, err = querybuilder.ValidateConsistency("quorum")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidQuery)
}
