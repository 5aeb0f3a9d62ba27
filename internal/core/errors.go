package core

import "errors"

// Error taxonomy from §7. Callers should use errors.Is to classify a
// returned error rather than matching on message text.
var (
	// ErrInvalidSchema covers a missing hash, an unknown attribute type, or
	// a bad clustering order direction (§7).
	ErrInvalidSchema = errors.New("invalid schema")

	// ErrInvalidQuery covers an unknown predicate operator, an undefined
	// attribute value, or a non-primary-key attribute on a non-index read
	// (§7, §4.2, §4.3 "get").
	ErrInvalidQuery = errors.New("invalid query")

	// ErrNotFound covers a schema absent from the meta table, or a get on a
	// primary-key row returning zero rows (§7).
	ErrNotFound = errors.New("not found")

	// ErrConditionFailed classifies a lightweight-transaction IF condition
	// that evaluated false; it is not a fatal error (§7). The storage engine
	// does not read the store's applied flag, so no facade method returns
	// it: a conditional put whose condition is false completes without an
	// error.
	ErrConditionFailed = errors.New("condition failed")
)
