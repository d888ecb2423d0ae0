// Package resolver assembles a candidate's downstream request body by
// resolving each required field from three prioritized sources: the current
// dispatch context, the parameter extractor's output (already folded into
// context by the time resolution runs), and prior service responses.
//
// Grounded on original_source/coordinator_agent/utils.go's
// resolve_with_sources, translated from dict-walking into a typed Go
// result. The per-field source tag is carried for audit purposes (§2c).
package resolver

import (
	"fmt"

	"github.com/c360studio/coordinator-agent/contract"
)

// Source identifies which of the three priority sources supplied a
// resolved field's value.
type Source string

const (
	SourceContext  Source = "context"
	SourceExtractor Source = "llm"
	SourcePrevious Source = "previous"
)

// Result holds the resolved input body for one candidate plus, per field,
// which source supplied it.
type Result struct {
	Values  map[string]any
	Sources map[string]Source
}

// Resolve attempts to fill every effective-required field of schema from
// context (priority 1), then the extractor's output (priority 2), then
// prior service responses (priority 3, searched in the given order;
// most-recent first is the caller's convention). A context value whose
// field is also present in extracted is tagged SourceExtractor, to
// preserve provenance when the extractor output was folded into context.
//
// Returns the resolved values/sources and the list of required fields that
// could not be resolved. A candidate is resolvable iff missing is empty.
func Resolve(schema contract.Schema, context map[string]any, extracted map[string]any, priorResponses []map[string]any) (Result, []string) {
	result := Result{
		Values:  make(map[string]any),
		Sources: make(map[string]Source),
	}

	var missing []string

	for _, field := range schema.EffectiveRequired() {
		if v, ok := context[field]; ok && contract.Present(v) {
			result.Values[field] = v
			if ev, ok := extracted[field]; ok && contract.Present(ev) {
				result.Sources[field] = SourceExtractor
			} else {
				result.Sources[field] = SourceContext
			}
			continue
		}

		if v, ok := extracted[field]; ok && contract.Present(v) {
			result.Values[field] = v
			result.Sources[field] = SourceExtractor
			continue
		}

		found := false
		for _, resp := range priorResponses {
			if v, ok := resp[field]; ok && contract.Present(v) {
				result.Values[field] = v
				result.Sources[field] = SourcePrevious
				found = true
				break
			}
		}
		if found {
			continue
		}

		missing = append(missing, field)
	}

	return result, missing
}

// Resolvable reports whether schema's effective required set is fully
// present in context, without assembling a request body. Used by tests
// asserting Testable Property 2 (preconditions hold at call time).
func Resolvable(schema contract.Schema, context map[string]any) error {
	for _, field := range schema.EffectiveRequired() {
		v, ok := context[field]
		if !ok || !contract.Present(v) {
			return fmt.Errorf("missing required field %q", field)
		}
	}
	return nil
}
