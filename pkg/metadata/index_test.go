package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddThenEqualityFilter(t *testing.T) {
	ix := New()
	ix.Add("x", "tag", "red")
	ix.Add("y", "tag", "blue")
	ix.Add("z", "tag", "red")

	assert.ElementsMatch(t, []string{"x", "z"}, ix.GetIdsForFilter("tag", OpEq, "red"))
	assert.ElementsMatch(t, []string{"y"}, ix.GetIdsForFilter("tag", OpEq, "blue"))
	assert.Empty(t, ix.GetIdsForFilter("tag", OpEq, "green"))
}

func TestNeFilter(t *testing.T) {
	ix := New()
	ix.Add("x", "tag", "red")
	ix.Add("y", "tag", "blue")

	assert.ElementsMatch(t, []string{"y"}, ix.GetIdsForFilter("tag", OpNe, "red"))
}

func TestRangeFilters(t *testing.T) {
	ix := New()
	ix.Add("a", "rank", "10")
	ix.Add("b", "rank", "20")
	ix.Add("c", "rank", "30")

	tests := []struct {
		op       Op
		value    string
		expected []string
	}{
		{OpGt, "10", []string{"b", "c"}},
		{OpGte, "10", []string{"a", "b", "c"}},
		{OpLt, "30", []string{"a", "b"}},
		{OpLte, "30", []string{"a", "b", "c"}},
		{OpGt, "30", nil},
		{OpLt, "10", nil},
	}
	for _, tt := range tests {
		got := ix.GetIdsForFilter("rank", tt.op, tt.value)
		assert.ElementsMatchf(t, tt.expected, got, "%s %s", tt.op, tt.value)
	}
}

func TestRemovePrunesEmptyValues(t *testing.T) {
	ix := New()
	ix.Add("x", "tag", "red")
	ix.Add("y", "tag", "red")

	ix.Remove("x", "tag", "red")
	assert.ElementsMatch(t, []string{"y"}, ix.GetIdsForFilter("tag", OpEq, "red"))
	assert.Equal(t, []string{"red"}, ix.GetFilterValues("tag"))

	ix.Remove("y", "tag", "red")
	assert.Empty(t, ix.GetIdsForFilter("tag", OpEq, "red"))
	assert.Empty(t, ix.GetFilterValues("tag"), "empty value entries must not linger")
}

func TestRemoveIDScrubsAllFields(t *testing.T) {
	ix := New()
	ix.Add("x", "tag", "red")
	ix.Add("x", "kind", "doc")

	ix.RemoveID("x", map[string][]string{"tag": {"red"}, "kind": {"doc"}})
	assert.Empty(t, ix.GetIdsForFilter("tag", OpEq, "red"))
	assert.Empty(t, ix.GetIdsForFilter("kind", OpEq, "doc"))
}

func TestGetFilterValuesSorted(t *testing.T) {
	ix := New()
	ix.Add("a", "tag", "cherry")
	ix.Add("b", "tag", "apple")
	ix.Add("c", "tag", "banana")

	assert.Equal(t, []string{"apple", "banana", "cherry"}, ix.GetFilterValues("tag"))
}

func TestRebuildReplacesWholeIndex(t *testing.T) {
	ix := New()
	ix.Add("stale", "tag", "red")

	ix.Rebuild(map[string]map[string][]string{
		"fresh": {"tag": {"blue"}},
	})
	assert.Empty(t, ix.GetIdsForFilter("tag", OpEq, "red"))
	assert.ElementsMatch(t, []string{"fresh"}, ix.GetIdsForFilter("tag", OpEq, "blue"))
}

func TestDuplicateAddIsIdempotent(t *testing.T) {
	ix := New()
	ix.Add("x", "tag", "red")
	ix.Add("x", "tag", "red")

	require.ElementsMatch(t, []string{"x"}, ix.GetIdsForFilter("tag", OpEq, "red"))
	assert.Equal(t, []string{"red"}, ix.GetFilterValues("tag"))
}
