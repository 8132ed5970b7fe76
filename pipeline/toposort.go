package pipeline

import (
	"fmt"
	"sort"

	"github.com/opensight-project/opensight/opsierr"
)

// topoSort computes a deterministic topological order of adjacency's keys,
// where adjacency[id] is the set of node ids that id depends on (must run
// before it). Nodes with no remaining dependencies are emitted in sorted-id
// order within each level, for reproducibility — the original's
// toposort+chain.from_iterable has no such guarantee, since it flattens
// Python sets of arbitrary iteration order.
//
// Returns opsierr.ErrCycleDetected-wrapped error if adjacency contains a
// cycle; per spec.md's invariants this should be unreachable given a
// validated nodetree, and existing only as a defensive assertion.
func topoSort(adjacency map[string]map[string]bool) ([]string, error) {
	inDegree := map[string]int{}
	dependents := map[string][]string{} // dep -> nodes that depend on it

	for id := range adjacency {
		if _, ok := inDegree[id]; !ok {
			inDegree[id] = 0
		}
	}
	for id, deps := range adjacency {
		inDegree[id] += len(deps)
		for dep := range deps {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var ready []string
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}

	var order []string
	for len(ready) > 0 {
		sort.Strings(ready)
		var next []string

		for _, id := range ready {
			order = append(order, id)
			for _, dependent := range dependents[id] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}

		ready = next
	}

	if len(order) != len(inDegree) {
		return nil, fmt.Errorf("pipeline: %d unresolved nodes: %w", len(inDegree)-len(order), opsierr.ErrCycleDetected)
	}

	return order, nil
}
