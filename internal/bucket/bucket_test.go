package bucket_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rashomon/internal/bucket"
	"rashomon/internal/core"
	"rashomon/internal/cql"
	"rashomon/internal/driver/fakedriver"
	"rashomon/internal/storageengine"
)

func kvSchema() *core.Schema {
	return &core.Schema{
		Domain:     "org.wikipedia.en",
		Table:      "settings",
		Attributes: map[string]core.AttributeType{"key": core.TypeString, "value": core.TypeString},
		Index:      []core.IndexElement{{Attribute: "key", Role: core.RoleHash}},
	}
}

func revisionedSchema() *core.Schema {
	return &core.Schema{
		Domain: "org.wikipedia.en",
		Table:  "pages",
		Attributes: map[string]core.AttributeType{
			"key":  core.TypeString,
			"_tid": core.TypeTimeUUID,
			"body": core.TypeString,
		},
		Index: []core.IndexElement{
			{Attribute: "key", Role: core.RoleHash},
			{Attribute: "_tid", Role: core.RoleRange, Order: core.OrderDesc},
		},
	}
}

func newEngine(t *testing.T) *storageengine.Engine {
	t.Helper()
	e, err := storageengine.New(fakedriver.New(), cql.Cassandra)
	require.NoError(t, err)
	return e
}

func TestBucket_PutThenGet(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	_, err := e.CreateTable(ctx, kvSchema())
	require.NoError(t, err)

	b := bucket.New(e, "org.wikipedia.en", "settings", "key", "value")
	_, err = b.Put(ctx, "theme", "dark")
	require.NoError(t, err)

	item, err := b.Get(ctx, "theme")
	require.NoError(t, err)
	assert.Equal(t, "dark", item.Value)
}

func TestBucket_GetMissingIsNotFound(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	_, err := e.CreateTable(ctx, kvSchema())
	require.NoError(t, err)

	b := bucket.New(e, "org.wikipedia.en", "settings", "key", "value")
	_, err = b.Get(ctx, "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRevisionedBucket_EachPutIsANewRevision(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	_, err := e.CreateTable(ctx, revisionedSchema())
	require.NoError(t, err)

	b := bucket.NewRevisioned(e, "org.wikipedia.en", "pages", "key", "_tid", "body")

	first, err := b.Put(ctx, "Go", "v1")
	require.NoError(t, err)
	require.NotEmpty(t, first.ETag)

	second, err := b.Put(ctx, "Go", "v2")
	require.NoError(t, err)
	require.NotEmpty(t, second.ETag)
	assert.NotEqual(t, first.ETag, second.ETag)

	latest, err := b.GetLatest(ctx, "Go")
	require.NoError(t, err)
	assert.Equal(t, "v2", latest.Value)

	byTid, err := b.GetRevision(ctx, "Go", first.ETag)
	require.NoError(t, err)
	assert.Equal(t, "v1", byTid.Value)
}

func TestParseRevision(t *testing.T) {
	rev, err := bucket.ParseRevision("latest")
	require.NoError(t, err)
	assert.Equal(t, bucket.RevisionLatest, rev.Kind)

	rev, err = bucket.ParseRevision("42")
	require.NoError(t, err)
	assert.Equal(t, bucket.RevisionOldID, rev.Kind)
	assert.Equal(t, int64(42), rev.OldID)

	rev, err = bucket.ParseRevision("2026-01-01T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, bucket.RevisionTimestamp, rev.Kind)

	_, err = bucket.ParseRevision("not-a-revision")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidQuery)
}

func TestRevisionedBucket_OldIDIsRejected(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	_, err := e.CreateTable(ctx, revisionedSchema())
	require.NoError(t, err)

	b := bucket.NewRevisioned(e, "org.wikipedia.en", "pages", "key", "_tid", "body")
	_, err = b.GetRevision(ctx, "Go", "123")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidQuery)
}
