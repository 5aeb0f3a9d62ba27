// Package fakedriver is an in-memory driver.Executor used by this module's
// own tests. It understands exactly the CQL shapes querybuilder emits
// (simple AND-joined equality/comparison WHERE clauses, single-table
// INSERT/UPDATE/DELETE/SELECT) rather than being a general CQL engine.
package fakedriver

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"rashomon/internal/driver"
	"rashomon/internal/querybuilder"
)

type row = driver.Row

var _ driver.Executor = (*Driver)(nil)

// Driver is a single in-memory keyspace/table store. It implements
// driver.Executor so storage-engine and index tests can run without a live
// Cassandra/Scylla cluster.
type Driver struct {
	tables map[string][]row
	// Calls records every statement executed, for assertions in tests.
	Calls []string
}

// New returns an empty fake driver.
func New() *Driver {
	return &Driver{tables: map[string][]row{}}
}

func tableKey(cql string) string {
	re := regexp.MustCompile(`(?i)(?:FROM|INTO|TABLE IF NOT EXISTS|KEYSPACE IF NOT EXISTS|KEYSPACE IF EXISTS)\s+([A-Za-z0-9_."]+)`)
	m := re.FindStringSubmatch(cql)
	if m == nil {
		return ""
	}
	return strings.ReplaceAll(m[1], `"`, "")
}

// Execute implements driver.Executor.
func (d *Driver) Execute(_ context.Context, stmt querybuilder.Statement, _ driver.ExecOptions) ([]row, error) {
	d.Calls = append(d.Calls, stmt.CQL)
	return d.exec(stmt)
}

// Batch implements driver.Executor by running each statement through exec in
// order; the fake has no coordinator, so atomicity is not actually enforced.
func (d *Driver) Batch(_ context.Context, stmts []querybuilder.Statement, _ driver.ExecOptions, _ int64) error {
	for _, stmt := range stmts {
		d.Calls = append(d.Calls, stmt.CQL)
		if _, err := d.exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Stream implements driver.Executor by running Execute and replaying every
// row through handler; the fake never pages.
func (d *Driver) Stream(ctx context.Context, stmt querybuilder.Statement, opts driver.StreamOptions, handler driver.RowHandler) error {
	rows, err := d.Execute(ctx, stmt, opts.ExecOptions)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := handler(r); err != nil {
			return err
		}
	}
	return nil
}

// Close implements driver.Executor; the fake holds no real connection.
func (d *Driver) Close() error { return nil }

func (d *Driver) exec(stmt querybuilder.Statement) ([]row, error) {
	cql := strings.TrimSpace(stmt.CQL)
	upper := strings.ToUpper(cql)

	switch {
	case strings.HasPrefix(upper, "CREATE KEYSPACE"), strings.HasPrefix(upper, "CREATE TABLE"):
		key := tableKey(cql)
		if _, ok := d.tables[key]; !ok {
			d.tables[key] = nil
		}
		return nil, nil

	case strings.HasPrefix(upper, "DROP KEYSPACE"):
		prefix := tableKey(cql)
		for k := range d.tables {
			if strings.HasPrefix(k, prefix) {
				delete(d.tables, k)
			}
		}
		return nil, nil

	case strings.HasPrefix(upper, "INSERT INTO"):
		return nil, d.execInsert(cql, stmt.Params)

	case strings.HasPrefix(upper, "UPDATE"):
		return nil, d.execUpdate(cql, stmt.Params)

	case strings.HasPrefix(upper, "DELETE FROM"):
		return nil, d.execDelete(cql, stmt.Params)

	case strings.HasPrefix(upper, "SELECT"):
		return d.execSelect(cql, stmt.Params)
	}

	return nil, fmt.Errorf("fakedriver: unsupported statement: %s", cql)
}

var insertRe = regexp.MustCompile(`(?is)INSERT INTO\s+([A-Za-z0-9_."]+)\s*\(([^)]*)\)\s*VALUES\s*\(([^)]*)\)`)

func (d *Driver) execInsert(cql string, params []any) error {
	m := insertRe.FindStringSubmatch(cql)
	if m == nil {
		return fmt.Errorf("fakedriver: cannot parse insert: %s", cql)
	}
	table := strings.ReplaceAll(m[1], `"`, "")
	cols := splitIdentList(m[2])

	r := row{}
	for i, c := range cols {
		if i < len(params) {
			r[c] = params[i]
		}
	}

	if strings.Contains(strings.ToUpper(cql), "IF NOT EXISTS") {
		for _, existing := range d.tables[table] {
			if sameKey(existing, r, cols) {
				return nil
			}
		}
	} else {
		d.tables[table] = removeMatching(d.tables[table], r, cols)
	}
	d.tables[table] = append(d.tables[table], r)
	return nil
}

func splitIdentList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.Trim(strings.TrimSpace(p), `"`)
	}
	return out
}

func sameKey(a, b row, cols []string) bool {
	for _, c := range cols {
		if fmt.Sprint(a[c]) != fmt.Sprint(b[c]) {
			return false
		}
	}
	return true
}

func removeMatching(rows []row, candidate row, keyCols []string) []row {
	out := rows[:0:0]
	for _, r := range rows {
		if sameKey(r, candidate, keyCols) {
			continue
		}
		out = append(out, r)
	}
	return out
}

var updateRe = regexp.MustCompile(`(?is)UPDATE\s+([A-Za-z0-9_."]+)\s+SET\s+(.*?)\s+WHERE\s+(.*?)(?:\s+IF\s+(.*))?;?$`)

func (d *Driver) execUpdate(cql string, params []any) error {
	m := updateRe.FindStringSubmatch(strings.TrimSuffix(cql, ";"))
	if m == nil {
		return fmt.Errorf("fakedriver: cannot parse update: %s", cql)
	}
	table := strings.ReplaceAll(m[1], `"`, "")
	setCols := parseSetClause(m[2])
	whereClauses := parseClauses(m[3])

	idx := 0
	setVals := map[string]any{}
	for _, c := range setCols {
		setVals[c] = params[idx]
		idx++
	}
	whereParams := params[idx : idx+len(whereClauses)]
	idx += len(whereClauses)

	var ifClauses []clause
	var ifParams []any
	if m[4] != "" {
		ifClauses = parseClauses(m[4])
		ifParams = params[idx : idx+len(ifClauses)]
	}

	matched := false
	for i, r := range d.tables[table] {
		if !matchesClauses(r, whereClauses, whereParams) {
			continue
		}
		matched = true
		if len(ifClauses) > 0 && !matchesClauses(r, ifClauses, ifParams) {
			continue
		}
		for c, v := range setVals {
			r[c] = v
		}
		d.tables[table][i] = r
	}
	if !matched && len(ifClauses) == 0 {
		// Like CQL, an unconditional UPDATE of a missing row creates it.
		r := row{}
		for i, c := range whereClauses {
			if c.op == "=" {
				r[c.col] = whereParams[i]
			}
		}
		for c, v := range setVals {
			r[c] = v
		}
		d.tables[table] = append(d.tables[table], r)
	}
	return nil
}

func parseSetClause(s string) []string {
	parts := strings.Split(s, ",")
	cols := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		eq := strings.Index(p, "=")
		if eq < 0 {
			continue
		}
		cols = append(cols, strings.Trim(strings.TrimSpace(p[:eq]), `"`))
	}
	return cols
}

type clause struct {
	col string
	op  string
}

var clauseRe = regexp.MustCompile(`^"?([A-Za-z0-9_]+)"?\s*(=|!=|<=|>=|<|>)\s*\?$`)

func parseClauses(s string) []clause {
	parts := strings.Split(s, " AND ")
	out := make([]clause, 0, len(parts))
	for _, p := range parts {
		m := clauseRe.FindStringSubmatch(strings.TrimSpace(p))
		if m == nil {
			continue
		}
		out = append(out, clause{col: m[1], op: m[2]})
	}
	return out
}

func (d *Driver) execDelete(cql string, params []any) error {
	re := regexp.MustCompile(`(?is)DELETE FROM\s+([A-Za-z0-9_."]+)\s+WHERE\s+(.*);?$`)
	m := re.FindStringSubmatch(strings.TrimSuffix(cql, ";"))
	if m == nil {
		return fmt.Errorf("fakedriver: cannot parse delete: %s", cql)
	}
	table := strings.ReplaceAll(m[1], `"`, "")
	clauses := parseClauses(m[2])

	var kept []row
	for _, r := range d.tables[table] {
		if matchesClauses(r, clauses, params) {
			continue
		}
		kept = append(kept, r)
	}
	d.tables[table] = kept
	return nil
}

func (d *Driver) execSelect(cql string, params []any) ([]row, error) {
	re := regexp.MustCompile(`(?is)SELECT\s+(?:DISTINCT\s+)?(.*?)\s+FROM\s+([A-Za-z0-9_."]+)(?:\s+WHERE\s+(.*?))?(?:\s+ORDER BY\s+([A-Za-z0-9_"]+)\s+(asc|desc))?(?:\s+LIMIT\s+(\d+))?;?$`)
	m := re.FindStringSubmatch(strings.TrimSuffix(cql, ";"))
	if m == nil {
		return nil, fmt.Errorf("fakedriver: cannot parse select: %s", cql)
	}
	proj := strings.TrimSpace(m[1])
	table := strings.ReplaceAll(m[2], `"`, "")

	var clauses []clause
	if m[3] != "" {
		clauses = parseClauses(m[3])
	}

	var out []row
	for _, r := range d.tables[table] {
		if matchesClauses(r, clauses, params) {
			out = append(out, cloneRow(r))
		}
	}

	if m[4] != "" {
		col, desc := strings.Trim(m[4], `"`), strings.EqualFold(m[5], "desc")
		sort.SliceStable(out, func(i, j int) bool {
			less := fmt.Sprint(out[i][col]) < fmt.Sprint(out[j][col])
			if desc {
				return !less
			}
			return less
		})
	}

	if m[6] != "" {
		var limit int
		fmt.Sscanf(m[6], "%d", &limit)
		if limit < len(out) {
			out = out[:limit]
		}
	}

	if proj != "*" && proj != "" {
		cols := splitIdentList(proj)
		for i, r := range out {
			projected := row{}
			for _, c := range cols {
				projected[c] = r[c]
			}
			out[i] = projected
		}
	}

	return out, nil
}

func cloneRow(r row) row {
	out := make(row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func matchesClauses(r row, clauses []clause, params []any) bool {
	if len(clauses) == 0 {
		return true
	}
	for i, c := range clauses {
		if i >= len(params) {
			return false
		}
		if !compare(r[c.col], c.op, params[i]) {
			return false
		}
	}
	return true
}

func compare(got any, op string, want any) bool {
	g, w := fmt.Sprint(got), fmt.Sprint(want)
	switch op {
	case "=":
		return g == w
	case "!=":
		return g != w
	case "<":
		return g < w
	case "<=":
		return g <= w
	case ">":
		return g > w
	case ">=":
		return g >= w
	}
	return false
}
