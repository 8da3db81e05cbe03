package platform

import (
	"fmt"
	"sort"
	"strings"
)

// topoLevels orders the dependency graph into levels using Kahn's
// algorithm: every module in level N depends only on modules in levels
// < N, so the members of one level can be loaded concurrently. Edges to
// nodes absent from the graph are ignored here; the per-module load path
// reports missing dependencies itself.
//
// Nodes left over after the sort are in or downstream of a dependency
// cycle and are returned separately; splitStuck tells the two apart.
// Level membership and the stuck list are sorted for deterministic
// ordering.
func topoLevels(graph map[string][]string) (levels [][]string, stuck []string) {
	indegree := make(map[string]int, len(graph))
	dependents := make(map[string][]string, len(graph))
	for node := range graph {
		indegree[node] = 0
	}
	for node, deps := range graph {
		for _, dep := range deps {
			if _, known := graph[dep]; !known {
				continue
			}
			indegree[node]++
			dependents[dep] = append(dependents[dep], node)
		}
	}

	remaining := len(graph)
	current := make([]string, 0, len(graph))
	for node, deg := range indegree {
		if deg == 0 {
			current = append(current, node)
		}
	}

	for len(current) > 0 {
		sort.Strings(current)
		levels = append(levels, current)
		remaining -= len(current)

		var next []string
		for _, node := range current {
			for _, dependent := range dependents[node] {
				indegree[dependent]--
				if indegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		current = next
	}

	if remaining > 0 {
		for node, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, node)
			}
		}
		sort.Strings(stuck)
	}
	return levels, stuck
}

// splitStuck separates the stuck nodes into true cycle members and nodes
// that merely depend on a cycle, so dependents can be failed with a
// dependency error rather than blamed for the cycle itself. Both slices
// keep the stuck list's sorted order.
func splitStuck(graph map[string][]string, stuck []string) (members, dependents []string) {
	inStuck := make(map[string]bool, len(stuck))
	for _, node := range stuck {
		inStuck[node] = true
	}
	for _, node := range stuck {
		if onCycle(graph, inStuck, node) {
			members = append(members, node)
		} else {
			dependents = append(dependents, node)
		}
	}
	return members, dependents
}

// onCycle reports whether start can reach itself along dependency edges
// within the stuck set.
func onCycle(graph map[string][]string, inStuck map[string]bool, start string) bool {
	visited := make(map[string]bool)
	stack := []string{start}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, dep := range graph[node] {
			if dep == start {
				return true
			}
			if inStuck[dep] && !visited[dep] {
				visited[dep] = true
				stack = append(stack, dep)
			}
		}
	}
	return false
}

// flattenReverse returns the level members in reverse topological order,
// dependents before their dependencies. Used for stop ordering.
func flattenReverse(levels [][]string) []string {
	var out []string
	for i := len(levels) - 1; i >= 0; i-- {
		out = append(out, levels[i]...)
	}
	return out
}

// cycleError builds the circular-dependency error naming every module
// stuck in the cycle.
func cycleError(cycle []string) error {
	return fmt.Errorf("%w: %s", ErrCircularDependency, strings.Join(cycle, ", "))
}

// cycleDependentError is the dependency-failure error for a module that is
// not itself on a cycle but cannot load because a dependency is.
func cycleDependentError(id string, members []string) error {
	return fmt.Errorf("%w: %s depends on dependency cycle %s",
		ErrDependencyFailed, id, strings.Join(members, ", "))
}
