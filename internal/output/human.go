package output

import (
	"fmt"
	"sort"
	"strings"

	"rashomon/internal/querybuilder"
	"rashomon/internal/storageengine"
)

type humanFormatter struct{}

// FormatResult formats a storage-engine Result as an operation-tagged status
// line followed by one line per returned row, attributes in sorted key order
// for determinism.
func (humanFormatter) FormatResult(op string, res storageengine.Result) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: status %d, %d row(s)\n", op, res.Status, res.Count)
	for _, row := range res.Items {
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, row[k]))
		}
		fmt.Fprintf(&sb, "  %s\n", strings.Join(parts, ", "))
	}
	return sb.String(), nil
}

// FormatPlan prints the CQL statements a createTable call is about to
// execute, one per line, semicolon-terminated.
func (humanFormatter) FormatPlan(stmts []querybuilder.Statement) (string, error) {
	var sb strings.Builder
	sb.WriteString("Statements to execute:\n")
	for i, stmt := range stmts {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, normalizeStatement(stmt.CQL))
	}
	return sb.String(), nil
}

func normalizeStatement(cql string) string {
	cql = strings.TrimSpace(cql)
	if !strings.HasSuffix(cql, ";") {
		cql += ";"
	}
	return cql
}
