// Package extractor implements the Parameter Extractor: it drives the chat
// LLM to produce a single JSON object conforming to a merged,
// null-permissive schema synthesized from the picked services' input
// contracts, validates the result, and degrades gracefully to an all-null
// object on any failure.
//
// Grounded on original_source/coordinator_agent/utils.go's extract
// function, including its strict system-prompt wording (§2c: only explicit
// or unambiguously implied values, normalization of unambiguous variants,
// the "I am user 2345" example, null instead of a guess) and its
// degrade-on-any-exception behavior.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/c360studio/coordinator-agent/contract"
	"github.com/c360studio/coordinator-agent/llm"
)

// Chat is the subset of llm.Client the extractor depends on.
type Chat interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Extractor pulls structured parameters out of a free-form query.
type Extractor struct {
	chat   Chat
	logger *slog.Logger
}

// New creates an Extractor.
func New(chat Chat, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{chat: chat, logger: logger}
}

// Extract asks the LLM to fill merged (already allow-nulls transformed)
// from query. On any transport, parse, or validation failure it degrades to
// an all-null object over merged's properties rather than surfacing the
// error; callers decide what an all-null extraction means (typically: no
// usable values, §7 BadRequest).
func (e *Extractor) Extract(ctx context.Context, query string, merged contract.Schema) map[string]any {
	result, err := e.tryExtract(ctx, query, merged)
	if err != nil {
		e.logger.Warn("parameter extraction degraded to all-null", "error", err)
		return allNull(merged)
	}
	return result
}

func (e *Extractor) tryExtract(ctx context.Context, query string, merged contract.Schema) (map[string]any, error) {
	schemaJSON, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("marshal merged schema: %w", err)
	}

	temperature := 0.0
	resp, err := e.chat.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt(string(schemaJSON))},
			{Role: "user", Content: query},
		},
		Temperature: &temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction LLM call failed: %w", err)
	}

	raw := llm.ExtractJSON(resp.Content)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object found in extraction response")
	}

	var values map[string]any
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("decode extraction response: %w", err)
	}

	if err := merged.Validate(onlyKnownKeys(values, merged)); err != nil {
		return nil, fmt.Errorf("extraction result failed schema validation: %w", err)
	}

	return values, nil
}

// onlyKnownKeys is used solely for validation: EffectiveRequired on an
// allow-nulls schema is always empty (every type includes "null"), so
// Validate is a no-op here in practice. Kept so a future tightening of the
// merged schema's required set is still checked against actual keys rather
// than silently ignored.
func onlyKnownKeys(values map[string]any, schema contract.Schema) map[string]any {
	filtered := make(map[string]any, len(values))
	for name := range schema.Properties {
		if v, ok := values[name]; ok {
			filtered[name] = v
		}
	}
	return filtered
}

func allNull(schema contract.Schema) map[string]any {
	out := make(map[string]any, len(schema.Properties))
	for name := range schema.Properties {
		out[name] = nil
	}
	return out
}

// Filter drops null/"null"/empty values from an extraction result before it
// is folded into dispatch context (§4.3).
func Filter(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if contract.Present(v) {
			out[k] = v
		}
	}
	return out
}

func systemPrompt(schemaJSON string) string {
	return fmt.Sprintf(`You extract structured parameters from a user's request.
Respond with a single JSON object matching this schema exactly:
%s

Only include values explicitly stated or unambiguously implied by the user's
input (for example, "I am user 2345" implies a customer_id of 2345, and
common date/number formats may be normalized). Use null for any field the
input does not support. Do not guess.`, schemaJSON)
}
