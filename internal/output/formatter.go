// Package output formats storage-engine results and createTable statement
// plans for the CLI. It is extendable and for now provides two formats:
// human and JSON.
package output

import (
	"fmt"
	"strings"

	"rashomon/internal/querybuilder"
	"rashomon/internal/storageengine"
)

// Format is an enum type representing the available output formats.
type Format string

const (
	FormatHuman Format = "human"
	FormatJSON  Format = "json"
)

// Formatter formats the two shapes a caller of this module ever needs to
// print: a get/put/delete/dropTable Result, and the statement plan a
// createTable call is about to execute.
type Formatter interface {
	FormatResult(op string, res storageengine.Result) (string, error)
	FormatPlan(stmts []querybuilder.Statement) (string, error)
}

// NewFormatter creates a new Formatter instance based on the given name.
// If no format is specified, defaults to human format.
func NewFormatter(name string) (Formatter, error) {
	format := Format(strings.ToLower(strings.TrimSpace(name)))
	switch format {
	case "", FormatHuman:
		return humanFormatter{}, nil
	case FormatJSON:
		return jsonFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s; use 'human' or 'json'", name)
	}
}
