package predicate

import (
	"fmt"

	"rashomon/internal/core"
)

// operatorKeys lists every key decodeOperatorObject recognizes as an
// operator name, used to detect "more than one operator in one predicate
// object" (§4.2 failure mode).
var operatorKeys = map[string]Operator{
	"eq": OpEq, "lt": OpLt, "le": OpLe, "gt": OpGt, "ge": OpGe, "ne": OpNe,
	"between": OpBetween,
}

// Decode converts one request-side predicate value — either a bare scalar or
// a single-key {op: arg} object decoded from JSON into map[string]any — into
// a Predicate. It is the boundary where §4.2's "unknown operator" and
// "multiple operators in one predicate object" failures are raised; Compile
// never sees raw request shapes.
func Decode(raw any) (Predicate, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return Predicate{Op: OpEq, Value: raw}, nil
	}

	if len(obj) != 1 {
		return Predicate{}, fmt.Errorf("%w: predicate object must have exactly one operator key, got %d", core.ErrInvalidQuery, len(obj))
	}

	var key string
	var arg any
	for k, v := range obj {
		key, arg = k, v
	}

	op, ok := operatorKeys[key]
	if !ok {
		return Predicate{}, fmt.Errorf("%w: unknown operator %q", core.ErrInvalidQuery, key)
	}

	if op == OpBetween {
		bounds, ok := arg.([]any)
		if !ok || len(bounds) != 2 {
			return Predicate{}, fmt.Errorf("%w: between requires a two-element array argument", core.ErrInvalidQuery)
		}
		return Predicate{Op: OpBetween, Between: [2]any{bounds[0], bounds[1]}}, nil
	}

	if arg == nil {
		return Predicate{}, fmt.Errorf("%w: operator %q has an undefined value", core.ErrInvalidQuery, key)
	}
	return Predicate{Op: op, Value: arg}, nil
}

// DecodeAll applies Decode to every entry of a raw predicate-object map,
// producing the input Compile expects.
func DecodeAll(raw map[string]any) (map[string]Predicate, error) {
	out := make(map[string]Predicate, len(raw))
	for attr, v := range raw {
		p, err := Decode(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", attr, err)
		}
		out[attr] = p
	}
	return out, nil
}
