// Package index maintains a table's versioned secondary indexes: the
// write-path batch that keeps index rows in step with data rows, the
// asynchronous repair pass that reconciles sibling revisions (§4.5.3), and
// the read path that cross-checks and read-repairs stale index entries
// (§4.5.4).
package index

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"rashomon/internal/core"
	"rashomon/internal/driver"
	"rashomon/internal/predicate"
	"rashomon/internal/querybuilder"
)

// Maintainer ties one table's schema, query builder, and driver executor
// together to implement the index lifecycle described in §4.5.
type Maintainer struct {
	schema  *core.Schema
	builder *querybuilder.Builder
	exec    driver.Executor
}

// New constructs a Maintainer for one logical table.
func New(schema *core.Schema, builder *querybuilder.Builder, exec driver.Executor) *Maintainer {
	return &Maintainer{schema: schema, builder: builder, exec: exec}
}

// Put implements §4.5.2's write path: a batch containing, for each
// secondary index, a put against idx_<I>_ever followed by the put against
// data, all sharing tid as their logical write timestamp, issued at the
// caller's validated consistency level. The caller is responsible for
// synthesizing tid before calling Put (§4.3's "put" rule for schemas
// carrying _tid).
func (m *Maintainer) Put(ctx context.Context, attrs map[string]any, req querybuilder.PutRequest, tid string, consistency driver.Consistency) error {
	var stmts []querybuilder.Statement

	names := make([]string, 0, len(m.schema.SecondaryIndexes))
	for name := range m.schema.SecondaryIndexes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		stmt, err := m.builder.PutIndexRow(name, attrs)
		if err != nil {
			return err
		}
		stmts = append(stmts, stmt)
	}

	dataStmt, err := m.builder.Put(req)
	if err != nil {
		return err
	}
	stmts = append(stmts, dataStmt)

	ts, err := timestampMicros(tid)
	if err != nil {
		ts = 0
	}
	return m.exec.Batch(ctx, stmts, driver.ExecOptions{Consistency: consistency}, ts)
}

// timestampMicros extracts the microsecond Unix timestamp encoded in a v1
// (time-based) UUID string, used as the batch's logical write timestamp so
// repair writes and re-insertions with the same _tid are idempotent.
func timestampMicros(tidStr string) (int64, error) {
	id, err := uuid.Parse(tidStr)
	if err != nil {
		return 0, err
	}
	t := id.Time()
	sec, nsec := t.UnixTime()
	return sec*1_000_000 + nsec/1_000, nil
}

// RepairAsync launches the repair pass in a goroutine, per §4.5.2 step 2 and
// §5's "repair passes launched asynchronously are allowed to outlive the
// originating request". Failures are logged, never surfaced to the caller
// that triggered the put. consistency is the level the triggering put used.
func (m *Maintainer) RepairAsync(ctx context.Context, partitionHash any, tid string, consistency driver.Consistency) {
	go func() {
		if err := m.Repair(ctx, partitionHash, tid, consistency); err != nil {
			log.Printf("index: repair pass failed for tid=%s: %v", tid, err)
		}
	}()
}

// Repair implements §4.5.3's sibling-revision diff: fetch up to 3 sibling
// revisions at _tid <= tid and 1 at _tid > tid within the same partition,
// diff adjacent pairs on their indexed attributes, and tombstone the stale
// older entry of every pair whose indexed value no longer matches the newer
// revision. The newer revision's own index/data rows are never touched —
// per §4.5.5's live -> live idempotent-upsert rule and the end-state §8
// scenario 5 requires: after overwriting uri='u'->'u2', the 'u2' entry
// written by this put must stay live; only the superseded 'u' entry is
// marked deleted.
func (m *Maintainer) Repair(ctx context.Context, partitionHash any, tid string, consistency driver.Consistency) error {
	tidAttr := m.schema.TidAttribute()
	if tidAttr == "" {
		return nil
	}
	hashAttr := m.schema.HashAttribute()

	older, err := m.fetchSiblings(ctx, hashAttr, tidAttr, partitionHash, tid, predicate.OpLe, 3, true, consistency)
	if err != nil {
		return err
	}
	newer, err := m.fetchSiblings(ctx, hashAttr, tidAttr, partitionHash, tid, predicate.OpGt, 1, false, consistency)
	if err != nil {
		return err
	}

	all := append(newer, older...)
	sort.SliceStable(all, func(i, j int) bool {
		return tidCompare(all[i][tidAttr], all[j][tidAttr]) > 0
	})

	attrIndexes := m.schema.AttributeIndexNames()

	var repairStmts []querybuilder.Statement
	processedIndexEntry := map[string]bool{}
	processedDataRow := map[string]bool{}
	for i := 0; i+1 < len(all); i++ {
		newerRow, staleRow := all[i], all[i+1]
		staleTid := canonicalString(staleRow[tidAttr])
		changed := false

		for attr, idxNames := range attrIndexes {
			if valueEqual(newerRow[attr], staleRow[attr]) {
				continue
			}
			changed = true
			for _, idxName := range idxNames {
				key := idxName + "|" + staleTid
				if processedIndexEntry[key] {
					continue
				}
				processedIndexEntry[key] = true
				stmt, err := m.builder.TombstoneIndexRow(idxName, staleRow, tid)
				if err != nil {
					return err
				}
				repairStmts = append(repairStmts, stmt)
			}
		}

		if changed && !processedDataRow[staleTid] {
			processedDataRow[staleTid] = true
			stmt, err := m.builder.TombstoneDataRow(staleRow, tid)
			if err != nil {
				return err
			}
			repairStmts = append(repairStmts, stmt)
		}
	}

	for _, stmt := range repairStmts {
		if _, err := m.exec.Execute(ctx, stmt, driver.ExecOptions{Consistency: consistency}); err != nil {
			return err
		}
	}
	return nil
}

func (m *Maintainer) fetchSiblings(ctx context.Context, hashAttr, tidAttr string, partitionHash any, tid string, op predicate.Operator, limit int, desc bool, consistency driver.Consistency) ([]driver.Row, error) {
	req := querybuilder.GetRequest{
		Attributes: map[string]predicate.Predicate{
			hashAttr: {Op: predicate.OpEq, Value: partitionHash},
			tidAttr:  {Op: op, Value: tid},
		},
		OrderBy:   tidAttr,
		OrderDesc: desc,
		Limit:     limit,
	}
	stmt, err := m.builder.Get(req)
	if err != nil {
		return nil, err
	}
	return m.exec.Execute(ctx, stmt, driver.ExecOptions{Consistency: consistency})
}

// canonicalString normalizes a driver-returned scalar to a comparable
// string. The common shapes a real gocql row yields — string, []byte, and
// Stringer types such as gocql.UUID — are handled explicitly, so the repair
// diff and read-repair filtering work against a live cluster and not just
// the in-memory test driver's plain Go strings.
func canonicalString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// valueEqual reports whether two attribute values are the same, compared by
// their canonical form rather than by requiring both to be Go strings.
func valueEqual(a, b any) bool {
	return canonicalString(a) == canonicalString(b)
}

// tidTime extracts the chronological instant encoded in a v1 timeuuid
// value, regardless of whether the driver handed it back as a string or a
// typed UUID.
func tidTime(v any) (time.Time, bool) {
	s := canonicalString(v)
	if s == "" {
		return time.Time{}, false
	}
	id, err := uuid.Parse(s)
	if err != nil || id.Version() != 1 {
		return time.Time{}, false
	}
	return id.Time(), true
}

// tidCompare orders two timeuuid-shaped values chronologically when both
// parse as v1 UUIDs, falling back to a string comparison otherwise. Used to
// sort sibling revisions by actual write time and to bound reads against an
// "as of" tid.
func tidCompare(a, b any) int {
	ta, oka := tidTime(a)
	tb, okb := tidTime(b)
	if oka && okb {
		switch {
		case ta.Before(tb):
			return -1
		case ta.After(tb):
			return 1
		default:
			return 0
		}
	}
	sa, sb := canonicalString(a), canonicalString(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	default:
		return 0
	}
}

// errSatisfied is returned by the Stream handler in Get to stop an
// auto-paging read once limit rows have been collected; it never escapes
// Get itself.
var errSatisfied = errors.New("index: read satisfied")

// Get implements §4.5.4's read path when req targets a secondary index:
// stream the index — auto-paging, fetching in limit-sized (padded) chunks —
// filtering tombstoned/future rows and, unless every predicate attribute is
// already covered by the index schema, cross-checking each surviving row
// against the data table. Streaming continues past each fetched page until
// limit rows have been collected or the index is exhausted, implementing
// the read-repair continuation §4.5.4 step 4 describes; Driver.Stream's
// auto-paging does the continuation, so no manual last-seen-key tracking is
// needed.
func (m *Maintainer) Get(ctx context.Context, req querybuilder.GetRequest, asOfTid string, consistency driver.Consistency) ([]driver.Row, error) {
	idx := m.schema.FindSecondaryIndex(req.Index)
	if idx == nil {
		return nil, core.ErrInvalidQuery
	}

	streamReq := req
	streamReq.Limit = 0
	stmt, err := m.builder.Get(streamReq)
	if err != nil {
		return nil, err
	}

	needCrossCheck := !indexCoversAllPredicates(idx, req.Attributes)

	fetchSize := req.Limit
	if fetchSize > 0 {
		fetchSize += ceilDiv(fetchSize, 4)
	}

	var out []driver.Row
	err = m.exec.Stream(ctx, stmt, driver.StreamOptions{
		ExecOptions: driver.ExecOptions{Consistency: consistency},
		AutoPage:    true,
		FetchSize:   fetchSize,
	}, func(r driver.Row) error {
		if !isLive(r, asOfTid) {
			return nil
		}
		if needCrossCheck {
			row, ok, err := m.crossCheckOne(ctx, r, consistency)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			r = row
		}
		out = append(out, r)
		if req.Limit > 0 && len(out) >= req.Limit {
			return errSatisfied
		}
		return nil
	})
	if err != nil && !errors.Is(err, errSatisfied) {
		return nil, err
	}
	return out, nil
}

func isLive(r driver.Row, asOfTid string) bool {
	if deleted, ok := r["_deleted"]; ok && canonicalString(deleted) != "" && tidCompare(deleted, asOfTid) <= 0 {
		return false
	}
	if tid, ok := r["_tid"]; ok && tidCompare(tid, asOfTid) > 0 {
		return false
	}
	return true
}

func indexCoversAllPredicates(idx *core.SecondaryIndex, preds map[string]predicate.Predicate) bool {
	covered := map[string]bool{}
	for _, a := range idx.IndexAttributes() {
		covered[a] = true
	}
	for _, a := range idx.ProjectedAttributes() {
		covered[a] = true
	}
	for attr := range preds {
		if !covered[attr] {
			return false
		}
	}
	return true
}

// crossCheckOne re-issues a point query against data for one candidate
// row's primary-key attributes — the read-repair behavior that tolerates
// lagging index entries: a row the index thinks matches but data no longer
// supports is dropped silently.
func (m *Maintainer) crossCheckOne(ctx context.Context, candidate driver.Row, consistency driver.Consistency) (driver.Row, bool, error) {
	pk := m.schema.PrimaryKeyAttributes()
	preds := make(map[string]predicate.Predicate, len(pk))
	for _, attr := range pk {
		preds[attr] = predicate.Predicate{Op: predicate.OpEq, Value: candidate[attr]}
	}
	stmt, err := m.builder.Get(querybuilder.GetRequest{Attributes: preds, Limit: 1})
	if err != nil {
		return nil, false, err
	}
	rows, err := m.exec.Execute(ctx, stmt, driver.ExecOptions{Consistency: consistency})
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0], true, nil
}

func ceilDiv(a, b int) int {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}
