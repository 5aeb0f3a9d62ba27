package storageengine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rashomon/internal/core"
	"rashomon/internal/cql"
	"rashomon/internal/driver/fakedriver"
	"rashomon/internal/predicate"
	"rashomon/internal/querybuilder"
	"rashomon/internal/storageengine"
)

func pagesSchema() *core.Schema {
	return &core.Schema{
		Domain: "org.wikipedia.en",
		Table:  "pages",
		Attributes: map[string]core.AttributeType{
			"key":  core.TypeString,
			"body": core.TypeBlob,
		},
		Index: []core.IndexElement{
			{Attribute: "key", Role: core.RoleHash},
		},
	}
}

func newEngine(t *testing.T) *storageengine.Engine {
	t.Helper()
	fd := fakedriver.New()
	e, err := storageengine.New(fd, cql.Cassandra)
	require.NoError(t, err)
	return e
}

func TestCreateTableThenGetSchema(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	s := pagesSchema()

	res, err := e.CreateTable(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 201, res.Status)

	got, err := e.GetSchema(ctx, "org.wikipedia.en", "pages")
	require.NoError(t, err)
	assert.Equal(t, "pages", got.Table)
}

func TestGetSchema_UnknownTableIsNotFound(t *testing.T) {
	e := newEngine(t)
	_, err := e.GetSchema(context.Background(), "org.wikipedia.en", "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestPutThenGet(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	s := pagesSchema()
	_, err := e.CreateTable(ctx, s)
	require.NoError(t, err)

	_, err = e.Put(ctx, "org.wikipedia.en", "pages", map[string]any{"key": "a", "body": []byte("hi")}, false, nil, "")
	require.NoError(t, err)

	res, err := e.Get(ctx, "org.wikipedia.en", "pages", primaryReq("a"), "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
}

func TestDelete(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	s := pagesSchema()
	_, err := e.CreateTable(ctx, s)
	require.NoError(t, err)
	_, err = e.Put(ctx, "org.wikipedia.en", "pages", map[string]any{"key": "a", "body": []byte("hi")}, false, nil, "")
	require.NoError(t, err)

	_, err = e.Delete(ctx, "org.wikipedia.en", "pages", map[string]predicate.Predicate{
		"key": {Op: predicate.OpEq, Value: "a"},
	}, "")
	require.NoError(t, err)

	res, err := e.Get(ctx, "org.wikipedia.en", "pages", primaryReq("a"), "")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count)
}

func TestDropTable(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	s := pagesSchema()
	_, err := e.CreateTable(ctx, s)
	require.NoError(t, err)

	res, err := e.DropTable(ctx, "org.wikipedia.en", "pages")
	require.NoError(t, err)
	assert.Equal(t, 200, res.Status)

	_, err = e.GetSchema(ctx, "org.wikipedia.en", "pages")
	require.Error(t, err)
}

func TestGetSchema_ColdLoadsFromMetaRow(t *testing.T) {
	fd := fakedriver.New()
	ctx := context.Background()

	first, err := storageengine.New(fd, cql.Cassandra)
	require.NoError(t, err)
	_, err = first.CreateTable(ctx, pagesSchema())
	require.NoError(t, err)

	// Simulate a process restart: a fresh Engine sharing the same backing
	// store has an empty schema cache and must reload from the meta row.
	second, err := storageengine.New(fd, cql.Cassandra)
	require.NoError(t, err)

	got, err := second.GetSchema(ctx, "org.wikipedia.en", "pages")
	require.NoError(t, err)
	assert.Equal(t, "pages", got.Table)
	assert.Equal(t, "org.wikipedia.en", got.Domain)
}

func primaryReq(key string) querybuilder.GetRequest {
	return querybuilder.GetRequest{
		Attributes: map[string]predicate.Predicate{
			"key": {Op: predicate.OpEq, Value: key},
		},
	}
}
