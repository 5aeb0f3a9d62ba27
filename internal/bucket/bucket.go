// Package bucket layers KV and revisioned-KV semantics (§2 component 7, §6.3)
// over the storage engine facade. The HTTP route dispatch described in
// §6.3 ("/v1/{domain}/{bucket}[/{key}[/{revision}]]") is an out-of-scope
// collaborator; this package exposes the same operations as plain Go calls
// so any transport — HTTP, a CLI, a test — can drive them.
package bucket

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/apache/cassandra-gocql-driver/v2"
	"github.com/google/uuid"

	"rashomon/internal/core"
	"rashomon/internal/predicate"
	"rashomon/internal/querybuilder"
	"rashomon/internal/storageengine"
)

// RevisionKind classifies a raw revision string per §6.3.
type RevisionKind string

const (
	RevisionLatest    RevisionKind = "latest"
	RevisionOldID     RevisionKind = "oldid"
	RevisionTimestamp RevisionKind = "timestamp"
	RevisionTimeUUID  RevisionKind = "timeuuid"
)

// Revision is a parsed "/v1/{domain}/{bucket}/{key}/{revision}" path segment.
type Revision struct {
	Kind     RevisionKind
	Raw      string
	Time     time.Time
	TimeUUID string
	OldID    int64
}

// ParseRevision classifies raw as one of latest, an integer oldid, an
// ISO-8601 timestamp, or a v1 UUID, per §6.3. An unrecognized shape is
// core.ErrInvalidQuery, which the HTTP collaborator maps to 400.
func ParseRevision(raw string) (Revision, error) {
	if raw == "" || raw == string(RevisionLatest) {
		return Revision{Kind: RevisionLatest, Raw: raw}, nil
	}
	if id, err := uuid.Parse(raw); err == nil {
		if id.Version() != 1 {
			return Revision{}, fmt.Errorf("%w: revision %q is not a v1 UUID", core.ErrInvalidQuery, raw)
		}
		return Revision{Kind: RevisionTimeUUID, Raw: raw, TimeUUID: raw}, nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return Revision{Kind: RevisionOldID, Raw: raw, OldID: n}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return Revision{Kind: RevisionTimestamp, Raw: raw, Time: t}, nil
	}
	return Revision{}, fmt.Errorf("%w: unrecognized revision %q; want latest, an integer, an ISO-8601 timestamp, or a v1 UUID", core.ErrInvalidQuery, raw)
}

// Item is one KV or revisioned-KV read/write result. ETag carries the _tid
// for a revisioned bucket, matching §6.3's "response etag carries the tid".
type Item struct {
	Key   string
	ETag  string
	Value any
}

// Bucket is plain KV semantics: one value per key, no history.
type Bucket struct {
	engine    *storageengine.Engine
	domain    string
	table     string
	hashAttr  string
	valueAttr string
}

// New constructs a KV bucket over an already-created table whose primary
// index hash element is hashAttr.
func New(engine *storageengine.Engine, domain, table, hashAttr, valueAttr string) *Bucket {
	return &Bucket{engine: engine, domain: domain, table: table, hashAttr: hashAttr, valueAttr: valueAttr}
}

// Get returns the current value for key, or core.ErrNotFound.
func (b *Bucket) Get(ctx context.Context, key string) (Item, error) {
	req := querybuilder.GetRequest{
		Attributes: map[string]predicate.Predicate{b.hashAttr: {Op: predicate.OpEq, Value: key}},
		Limit:      1,
	}
	res, err := b.engine.Get(ctx, b.domain, b.table, req, "")
	if err != nil {
		return Item{}, err
	}
	if res.Count == 0 {
		return Item{}, core.ErrNotFound
	}
	return Item{Key: key, Value: res.Items[0][b.valueAttr]}, nil
}

// Put overwrites the value for key.
func (b *Bucket) Put(ctx context.Context, key string, value any) (Item, error) {
	attrs := map[string]any{b.hashAttr: key, b.valueAttr: value}
	if _, err := b.engine.Put(ctx, b.domain, b.table, attrs, false, nil, ""); err != nil {
		return Item{}, err
	}
	return Item{Key: key, Value: value}, nil
}

// RevisionedBucket is KV semantics where every Put creates a new revision
// keyed by a v1 UUID ("_tid") in the primary index's range position.
type RevisionedBucket struct {
	*Bucket
	tidAttr string
}

// NewRevisioned constructs a revisioned-KV bucket. tidAttr must be the
// table's timeuuid range attribute (§3.2's "_tid" role).
func NewRevisioned(engine *storageengine.Engine, domain, table, hashAttr, tidAttr, valueAttr string) *RevisionedBucket {
	return &RevisionedBucket{Bucket: New(engine, domain, table, hashAttr, valueAttr), tidAttr: tidAttr}
}

// GetLatest returns the newest revision for key.
func (b *RevisionedBucket) GetLatest(ctx context.Context, key string) (Item, error) {
	req := querybuilder.GetRequest{
		Attributes: map[string]predicate.Predicate{b.hashAttr: {Op: predicate.OpEq, Value: key}},
		OrderBy:    b.tidAttr,
		OrderDesc:  true,
		Limit:      1,
	}
	return b.query(ctx, key, req)
}

// GetRevision resolves raw per §6.3 and returns the matching revision:
// latest dispatches to GetLatest, a v1 UUID is an exact revision lookup, an
// ISO-8601 timestamp resolves to the newest revision at or before that
// instant, and an integer oldid is rejected — translating a legacy numeric
// revision id requires an external mapping table this module doesn't own.
func (b *RevisionedBucket) GetRevision(ctx context.Context, key, raw string) (Item, error) {
	rev, err := ParseRevision(raw)
	if err != nil {
		return Item{}, err
	}

	switch rev.Kind {
	case RevisionLatest:
		return b.GetLatest(ctx, key)

	case RevisionTimeUUID:
		req := querybuilder.GetRequest{
			Attributes: map[string]predicate.Predicate{
				b.hashAttr: {Op: predicate.OpEq, Value: key},
				b.tidAttr:  {Op: predicate.OpEq, Value: rev.TimeUUID},
			},
			Limit: 1,
		}
		return b.query(ctx, key, req)

	case RevisionTimestamp:
		bound := gocql.UUIDFromTime(rev.Time).String()
		req := querybuilder.GetRequest{
			Attributes: map[string]predicate.Predicate{
				b.hashAttr: {Op: predicate.OpEq, Value: key},
				b.tidAttr:  {Op: predicate.OpLe, Value: bound},
			},
			OrderBy:   b.tidAttr,
			OrderDesc: true,
			Limit:     1,
		}
		return b.query(ctx, key, req)

	case RevisionOldID:
		return Item{}, fmt.Errorf("%w: legacy numeric revision id %d requires an external id-mapping collaborator", core.ErrInvalidQuery, rev.OldID)

	default:
		return Item{}, core.ErrInvalidQuery
	}
}

func (b *RevisionedBucket) query(ctx context.Context, key string, req querybuilder.GetRequest) (Item, error) {
	res, err := b.engine.Get(ctx, b.domain, b.table, req, "")
	if err != nil {
		return Item{}, err
	}
	if res.Count == 0 {
		return Item{}, core.ErrNotFound
	}
	row := res.Items[0]
	etag, _ := row[b.tidAttr].(string)
	return Item{Key: key, ETag: etag, Value: row[b.valueAttr]}, nil
}

// Put creates a new revision for key, synthesizing a fresh _tid when the
// table's primary index doesn't already carry one from the facade's own
// synthesis (§4.3 "put": synthesis only fires when secondary indexes exist
// and no timeuuid range tail is already declared).
func (b *RevisionedBucket) Put(ctx context.Context, key string, value any) (Item, error) {
	schema, err := b.engine.GetSchema(ctx, b.domain, b.table)
	if err != nil {
		return Item{}, err
	}

	attrs := map[string]any{b.hashAttr: key, b.valueAttr: value}
	if !schema.HasSyntheticTid() {
		id, err := uuid.NewUUID()
		if err != nil {
			return Item{}, fmt.Errorf("bucket: synthesize revision: %w", err)
		}
		attrs[b.tidAttr] = id.String()
	}

	if _, err := b.engine.Put(ctx, b.domain, b.table, attrs, false, nil, ""); err != nil {
		return Item{}, err
	}
	etag, _ := attrs[b.tidAttr].(string)
	return Item{Key: key, ETag: etag, Value: value}, nil
}
