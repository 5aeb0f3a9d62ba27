package index_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rashomon/internal/core"
	"rashomon/internal/cql"
	"rashomon/internal/driver"
	"rashomon/internal/driver/fakedriver"
	"rashomon/internal/index"
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

func newMaintainer(t *testing.T) (*index.Maintainer, *fakedriver.Driver, *querybuilder.Builder) {
	t.Helper()
	s := pagesSchema(t)
	d, err := cql.GetDialect(cql.Cassandra)
	require.NoError(t, err)
	b := querybuilder.New(s, d)
	fd := fakedriver.New()

	create, err := b.CreateTable()
	require.NoError(t, err)
	for _, stmt := range create {
		_, err := fd.Execute(context.Background(), stmt, driver.ExecOptions{})
		require.NoError(t, err)
	}

	return index.New(s, b, fd), fd, b
}

func TestPut_WritesIndexRowAndDataRow(t *testing.T) {
	m, fd, _ := newMaintainer(t)
	tid := uuid.Must(uuid.NewUUID()).String()

	attrs := map[string]any{"key": "a", "uri": "/wiki/Go", "body": []byte("hi"), "_tid": tid}
	err := m.Put(context.Background(), attrs, querybuilder.PutRequest{Attributes: attrs}, tid, driver.ConsistencyOne)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, len(fd.Calls), 2)
}

func TestGet_IndexCoveredReturnsDirectly(t *testing.T) {
	m, _, _ := newMaintainer(t)
	tid := uuid.Must(uuid.NewUUID()).String()
	attrs := map[string]any{"key": "a", "uri": "/wiki/Go", "body": []byte("hi"), "_tid": tid}
	require.NoError(t, m.Put(context.Background(), attrs, querybuilder.PutRequest{Attributes: attrs}, tid, driver.ConsistencyOne))

	rows, err := m.Get(context.Background(), querybuilder.GetRequest{
		Index: "by_uri",
		Attributes: map[string]predicate.Predicate{
			"uri": {Op: predicate.OpEq, Value: "/wiki/Go"},
		},
		Limit: 10,
	}, tid, driver.ConsistencyOne)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a", rows[0]["key"])
}

func TestGet_UnknownIndexIsInvalidQuery(t *testing.T) {
	m, _, _ := newMaintainer(t)
	_, err := m.Get(context.Background(), querybuilder.GetRequest{Index: "nope"}, "", driver.ConsistencyOne)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidQuery)
}

// TestRepair_TombstonesStaleOlderRevision exercises §8 scenario 5: put a row
// with uri='u', overwrite it with uri='u2', run repair, and confirm the
// stale 'u' index entry is tombstoned (query returns nothing) while the
// fresh 'u2' entry written by the second put stays live.
func TestRepair_TombstonesStaleOlderRevision(t *testing.T) {
	m, _, _ := newMaintainer(t)
	ctx := context.Background()

	tid1 := uuid.Must(uuid.NewUUID()).String()
	attrs1 := map[string]any{"key": "a", "uri": "u", "body": []byte("v1"), "_tid": tid1}
	require.NoError(t, m.Put(ctx, attrs1, querybuilder.PutRequest{Attributes: attrs1}, tid1, driver.ConsistencyOne))

	tid2 := uuid.Must(uuid.NewUUID()).String()
	attrs2 := map[string]any{"key": "a", "uri": "u2", "body": []byte("v2"), "_tid": tid2}
	require.NoError(t, m.Put(ctx, attrs2, querybuilder.PutRequest{Attributes: attrs2}, tid2, driver.ConsistencyOne))

	require.NoError(t, m.Repair(ctx, "a", tid2, driver.ConsistencyOne))

	asOf := uuid.Must(uuid.NewUUID()).String()

	staleRows, err := m.Get(ctx, querybuilder.GetRequest{
		Index:      "by_uri",
		Attributes: map[string]predicate.Predicate{"uri": {Op: predicate.OpEq, Value: "u"}},
		Limit:      1,
	}, asOf, driver.ConsistencyOne)
	require.NoError(t, err)
	assert.Empty(t, staleRows, "the superseded uri='u' index entry must be tombstoned by repair")

	freshRows, err := m.Get(ctx, querybuilder.GetRequest{
		Index:      "by_uri",
		Attributes: map[string]predicate.Predicate{"uri": {Op: predicate.OpEq, Value: "u2"}},
		Limit:      1,
	}, asOf, driver.ConsistencyOne)
	require.NoError(t, err)
	require.Len(t, freshRows, 1, "the freshly written uri='u2' index entry must stay live")
	assert.Equal(t, "a", freshRows[0]["key"])
}
