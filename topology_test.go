package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopoLevelsOrdersDependenciesFirst(t *testing.T) {
	graph := map[string][]string{
		"users":   nil,
		"admin":   nil,
		"reports": {"users"},
	}

	levels, cycle := topoLevels(graph)
	require.Empty(t, cycle)
	require.Len(t, levels, 2)
	assert.Equal(t, []string{"admin", "users"}, levels[0])
	assert.Equal(t, []string{"reports"}, levels[1])
}

func TestTopoLevelsDeepChain(t *testing.T) {
	graph := map[string][]string{
		"a": nil,
		"b": {"a"},
		"c": {"b"},
		"d": {"b", "a"},
	}

	levels, cycle := topoLevels(graph)
	require.Empty(t, cycle)
	require.Len(t, levels, 3)
	assert.Equal(t, []string{"a"}, levels[0])
	assert.Equal(t, []string{"b"}, levels[1])
	assert.Equal(t, []string{"c", "d"}, levels[2])
}

func TestTopoLevelsDetectsCycle(t *testing.T) {
	graph := map[string][]string{
		"a": {"b"},
		"b": {"a"},
		"c": nil,
	}

	levels, cycle := topoLevels(graph)
	assert.Equal(t, []string{"a", "b"}, cycle)
	require.Len(t, levels, 1)
	assert.Equal(t, []string{"c"}, levels[0])
}

func TestTopoLevelsStuckIncludesCycleDependents(t *testing.T) {
	graph := map[string][]string{
		"a": {"b"},
		"b": {"a"},
		"c": {"a"},
		"d": {"c"},
	}

	levels, stuck := topoLevels(graph)
	assert.Empty(t, levels)
	assert.Equal(t, []string{"a", "b", "c", "d"}, stuck)

	members, dependents := splitStuck(graph, stuck)
	assert.Equal(t, []string{"a", "b"}, members)
	assert.Equal(t, []string{"c", "d"}, dependents)
}

func TestSplitStuckSelfDependencyChain(t *testing.T) {
	// All stuck nodes on the cycle: no dependents.
	graph := map[string][]string{
		"a": {"c"},
		"b": {"a"},
		"c": {"b"},
	}
	_, stuck := topoLevels(graph)
	members, dependents := splitStuck(graph, stuck)
	assert.Equal(t, []string{"a", "b", "c"}, members)
	assert.Empty(t, dependents)
}

func TestTopoLevelsIgnoresUnknownDeps(t *testing.T) {
	// Edges to nodes outside the graph are not counted; the load path
	// reports missing dependencies itself.
	graph := map[string][]string{
		"a": {"ghost"},
	}

	levels, cycle := topoLevels(graph)
	assert.Empty(t, cycle)
	require.Len(t, levels, 1)
	assert.Equal(t, []string{"a"}, levels[0])
}

func TestFlattenReverse(t *testing.T) {
	levels := [][]string{{"a"}, {"b", "c"}, {"d"}}
	assert.Equal(t, []string{"d", "b", "c", "a"}, flattenReverse(levels))
}

func TestCycleErrorNamesMembers(t *testing.T) {
	err := cycleError([]string{"a", "b"})
	require.ErrorIs(t, err, ErrCircularDependency)
	assert.Contains(t, err.Error(), "a, b")
}

func TestCycleDependentErrorBlamesTheCycle(t *testing.T) {
	err := cycleDependentError("c", []string{"a", "b"})
	require.ErrorIs(t, err, ErrDependencyFailed)
	assert.NotErrorIs(t, err, ErrCircularDependency)
	assert.Contains(t, err.Error(), "c depends on dependency cycle a, b")
}
