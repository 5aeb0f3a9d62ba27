package predicate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rashomon/internal/core"
	"rashomon/internal/predicate"
)

func TestCompile_ImplicitEqAndExplicitOperators(t *testing.T) {
	preds := map[string]predicate.Predicate{
		"key": {Op: predicate.OpEq, Value: "abc"},
		"tid": {Op: predicate.OpLt, Value: "t1"},
	}
	fragment, params, err := predicate.Compile(preds, []string{"key", "tid"})
	require.NoError(t, err)
	assert.Equal(t, `"key" = ? AND "tid" < ?`, fragment)
	assert.Equal(t, []any{"abc", "t1"}, params)
}

func TestCompile_Between(t *testing.T) {
	preds := map[string]predicate.Predicate{
		"tid": {Op: predicate.OpBetween, Between: [2]any{"lo", "hi"}},
	}
	fragment, params, err := predicate.Compile(preds, []string{"tid"})
	require.NoError(t, err)
	assert.Equal(t, `"tid" >= ? AND "tid" <= ?`, fragment)
	assert.Equal(t, []any{"lo", "hi"}, params)
}

func TestCompile_SortsWhenNoOrderGiven(t *testing.T) {
	preds := map[string]predicate.Predicate{
		"zeta":  {Op: predicate.OpEq, Value: 1},
		"alpha": {Op: predicate.OpEq, Value: 2},
	}
	fragment, _, err := predicate.Compile(preds, nil)
	require.NoError(t, err)
	assert.Equal(t, `"alpha" = ? AND "zeta" = ?`, fragment)
}

func TestCompile_BetweenMissingBoundIsInvalidQuery(t *testing.T) {
	preds := map[string]predicate.Predicate{
		"tid": {Op: predicate.OpBetween, Between: [2]any{"lo", nil}},
	}
	_, _, err := predicate.Compile(preds, []string{"tid"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidQuery)
}

func TestDecode_BareScalarIsImplicitEq(t *testing.T) {
	p, err := predicate.Decode("abc")
	require.NoError(t, err)
	assert.Equal(t, predicate.OpEq, p.Op)
	assert.Equal(t, "abc", p.Value)
}

func TestDecode_SingleOperatorObject(t *testing.T) {
	p, err := predicate.Decode(map[string]any{"gt": 42})
	require.NoError(t, err)
	assert.Equal(t, predicate.OpGt, p.Op)
	assert.Equal(t, 42, p.Value)
}

func TestDecode_Between(t *testing.T) {
	p, err := predicate.Decode(map[string]any{"between": []any{1, 10}})
	require.NoError(t, err)
	assert.Equal(t, predicate.OpBetween, p.Op)
	assert.Equal(t, [2]any{1, 10}, p.Between)
}

func TestDecode_UnknownOperatorIsInvalidQuery(t *testing.T) {
	_, err := predicate.Decode(map[string]any{"bogus": 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidQuery)
}

func TestDecode_MultipleOperatorsIsInvalidQuery(t *testing.T) {
	_, err := predicate.Decode(map[string]any{"gt": 1, "lt": 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidQuery)
}

func TestDecode_UndefinedValueIsInvalidQuery(t *testing.T) {
	_, err := predicate.Decode(map[string]any{"eq": nil})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidQuery)
}

func TestDecodeAll(t *testing.T) {
	raw := map[string]any{
		"key": "abc",
		"tid": map[string]any{"lt": "t1"},
	}
	preds, err := predicate.DecodeAll(raw)
	require.NoError(t, err)
	assert.Equal(t, predicate.OpEq, preds["key"].Op)
	assert.Equal(t, predicate.OpLt, preds["tid"].Op)
}
