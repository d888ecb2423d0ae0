// Package catalog defines the candidate and selection types shared across
// the selector, extractor, resolver, planner, and dispatcher. Grounded on
// the Candidate/metadata shape in original_source/coordinator_agent/main.go
// and the candidate document format in the external vector-store contract.
package catalog

// Candidate is a service description retrieved for a given query.
// Immutable for the lifetime of one dispatch call.
type Candidate struct {
	ID       string            `json:"id"`
	Document string            `json:"document"`
	Metadata CandidateMetadata `json:"metadata"`
	// Distance is the vector store's similarity distance for this candidate
	// against the query embedding (lower is closer). Zero when the candidate
	// did not come from a vector search, e.g. a directly-specified candidate.
	Distance float64 `json:"distance,omitempty"`
}

// CandidateMetadata carries the fields the planner, resolver, and dispatcher
// need: where to send the request and what it accepts/produces.
type CandidateMetadata struct {
	Endpoint       string   `json:"endpoint"`
	Provides       []string `json:"provides,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	ContractInput  string   `json:"contract_input"`
	ContractOutput string   `json:"contract_output"`
}

// Selection is the Selector's output (§3): the services to invoke, in LLM
// order, the selector's preferred execution order (accepted but never
// honored by the Planner, see Design Notes), and free-text reasons.
type Selection struct {
	PickIDs     []string          `json:"pickids"`
	Order       []string          `json:"order,omitempty"`
	Reasons     map[string]string `json:"reasons,omitempty"`
	RawResponse string            `json:"raw_response,omitempty"`
}

// FilterKnown drops any pickids that do not correspond to a candidate in
// candidates, matching the original's silent-drop behavior for unknown ids.
func FilterKnown(pickIDs []string, candidates []Candidate) []string {
	known := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		known[c.ID] = true
	}

	filtered := make([]string, 0, len(pickIDs))
	for _, id := range pickIDs {
		if known[id] {
			filtered = append(filtered, id)
		}
	}
	return filtered
}

// ByID indexes candidates by id for O(1) lookup during planning and dispatch.
func ByID(candidates []Candidate) map[string]Candidate {
	index := make(map[string]Candidate, len(candidates))
	for _, c := range candidates {
		index[c.ID] = c
	}
	return index
}
