package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeafOperators(t *testing.T) {
	record := map[string]any{
		"name":  "alice",
		"score": 42.0,
		"count": 7,
	}

	tests := []struct {
		name     string
		pred     Predicate
		expected bool
	}{
		{"eq string match", Eq("name", "alice"), true},
		{"eq string mismatch", Eq("name", "bob"), false},
		{"eq numeric cross-type", Eq("count", 7.0), true},
		{"ne", Predicate{Op: OpNe, Field: "name", Value: "bob"}, true},
		{"in hit", Predicate{Op: OpIn, Field: "name", Value: []any{"bob", "alice"}}, true},
		{"in miss", Predicate{Op: OpIn, Field: "name", Value: []any{"bob", "carol"}}, false},
		{"notIn", Predicate{Op: OpNotIn, Field: "name", Value: []any{"bob"}}, true},
		{"gt", Predicate{Op: OpGt, Field: "score", Value: 41.0}, true},
		{"gte boundary", Predicate{Op: OpGte, Field: "score", Value: 42.0}, true},
		{"lt false", Predicate{Op: OpLt, Field: "score", Value: 42.0}, false},
		{"lte boundary", Predicate{Op: OpLte, Field: "score", Value: 42.0}, true},
		{"gt string ordering", Predicate{Op: OpGt, Field: "name", Value: "aaa"}, true},
		{"contains", Predicate{Op: OpContains, Field: "name", Value: "lic"}, true},
		{"startsWith", Predicate{Op: OpStartsWith, Field: "name", Value: "al"}, true},
		{"endsWith", Predicate{Op: OpEndsWith, Field: "name", Value: "ce"}, true},
		{"string op on missing field", Predicate{Op: OpContains, Field: "absent", Value: "x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.pred.Matches(record)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestBooleanCombinators(t *testing.T) {
	record := map[string]any{"tag": "red", "size": 10.0}

	ok, err := And(Eq("tag", "red"), Predicate{Op: OpGt, Field: "size", Value: 5.0}).Matches(record)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = And(Eq("tag", "red"), Eq("tag", "blue")).Matches(record)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = Or(Eq("tag", "blue"), Eq("tag", "red")).Matches(record)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Not(Eq("tag", "blue")).Matches(record)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNotRequiresSingleChild(t *testing.T) {
	_, err := Predicate{Op: OpNot}.Matches(map[string]any{})
	assert.Error(t, err)
}

func TestUnknownOperatorErrors(t *testing.T) {
	_, err := Predicate{Op: Op("bogus"), Field: "x", Value: 1}.Matches(map[string]any{"x": 1})
	assert.Error(t, err)
}

func TestOrderedComparisonOnIncomparableOperands(t *testing.T) {
	_, err := Predicate{Op: OpGt, Field: "x", Value: []any{1}}.Matches(map[string]any{"x": "str"})
	assert.Error(t, err)
}
