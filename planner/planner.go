// Package planner computes a feasible execution order for a set of picked
// services by topologically sorting the data-flow graph implied by their
// input/output contracts, a graph no candidate declares directly.
//
// The iterative fixed-point shape (repeated passes, in-degree-style
// progress tracking, explicit cycle detection) is grounded on
// processor/task-dispatcher/dependencies.go's Kahn's-algorithm
// DependencyGraph. Unlike that graph, edges here are not declared by the
// caller; they are derived per pass from which fields are already
// "available" versus which remain required; the exact shape of
// original_source/coordinator_agent/utils.go's topo_sort_services.
package planner

import (
	"fmt"
	"sort"

	"github.com/c360studio/coordinator-agent/catalog"
	"github.com/c360studio/coordinator-agent/contract"
)

// UnresolvedError reports that one or more services could not be ordered
// because no pass made progress while they remained outstanding.
type UnresolvedError struct {
	Remaining []string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("dependency resolution failed: unresolved services %v", e.Remaining)
}

// Order computes a deterministic execution order for pickIDs given each
// candidate's input/output contracts and the set of fields already known
// (present) at entry. Ties are broken strictly by pickIDs position: the
// Selector's "order" hint is intentionally never consulted, so that the
// same pickids/contracts/known-fields always yield byte-identical output
// (Testable Property 4).
//
// Order is a pure function: it owns no state and mutates none of its
// inputs.
func Order(pickIDs []string, candidates map[string]catalog.Candidate, known map[string]bool) ([]string, error) {
	inputs := make(map[string][]string, len(pickIDs))
	outputs := make(map[string][]string, len(pickIDs))

	for _, id := range pickIDs {
		cand, ok := candidates[id]
		if !ok {
			continue
		}
		inputs[id] = contract.ParseInputSchema(cand.Metadata.ContractInput).EffectiveRequired()
		outputs[id] = contract.ParseOutputSchema(cand.Metadata.ContractOutput).OutputKeys()
	}

	available := make(map[string]bool, len(known))
	for k, v := range known {
		available[k] = v
	}

	remaining := make([]string, len(pickIDs))
	copy(remaining, pickIDs)

	var order []string

	for len(remaining) > 0 {
		var next []string
		progressed := false

		for _, id := range remaining {
			if subsetOf(inputs[id], available) {
				order = append(order, id)
				for _, out := range outputs[id] {
					available[out] = true
				}
				progressed = true
			} else {
				next = append(next, id)
			}
		}

		if !progressed {
			sort.Strings(next)
			return order, &UnresolvedError{Remaining: next}
		}

		remaining = next
	}

	return order, nil
}

func subsetOf(required []string, available map[string]bool) bool {
	for _, field := range required {
		if !available[field] {
			return false
		}
	}
	return true
}
