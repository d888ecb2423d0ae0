// Package selector implements the Rerank component: given a query and a
// candidate set, it asks the chat LLM which candidates are required and
// parses the (possibly malformed) JSON response into a Selection.
//
// Grounded on original_source/coordinator_agent/main.go's /api/rerank
// handler (candidate block rendering, temperature-0 call, pickids/reasons
// parsing) and llm/jsonutil.go's lenient JSON extraction for tolerating a
// chat model that wraps its answer in prose or a markdown fence.
package selector

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"text/template"

	"github.com/c360studio/coordinator-agent/catalog"
	"github.com/c360studio/coordinator-agent/contract"
	"github.com/c360studio/coordinator-agent/llm"
)

// Chat is the subset of llm.Client the selector depends on, so tests can
// substitute llm/testutil.MockLLMClient.
type Chat interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Selector selects which candidates a query requires.
type Selector struct {
	chat Chat

	mu             sync.RWMutex
	systemTemplate string
	userTemplate   string
}

// New creates a Selector. systemPrompt and userPrompt are the resolved
// template text (see config.ResolvePromptTemplate); userPrompt is rendered
// with {{.Query}} and {{.Candidates}}.
func New(chat Chat, systemPrompt, userPrompt string) *Selector {
	return &Selector{chat: chat, systemTemplate: systemPrompt, userTemplate: userPrompt}
}

// SetPrompts replaces the system/user prompt templates in place. Safe to
// call concurrently with Select; used by config.PromptWatcher to hot-reload
// the selector's prompt files without a process restart.
func (s *Selector) SetPrompts(systemPrompt, userPrompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.systemTemplate = systemPrompt
	s.userTemplate = userPrompt
}

func (s *Selector) prompts() (string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.systemTemplate, s.userTemplate
}

// Select asks the LLM which of candidates the query requires and returns
// the parsed Selection. Returns an error if the LLM call fails or no
// pickids survive parsing; both surfaced by the caller as a bad-gateway
// class error per §7.
func (s *Selector) Select(ctx context.Context, query string, candidates []catalog.Candidate) (catalog.Selection, error) {
	systemPrompt, _ := s.prompts()

	userPrompt, err := s.renderUserPrompt(query, candidates)
	if err != nil {
		return catalog.Selection{}, fmt.Errorf("render selection prompt: %w", err)
	}

	temperature := 0.0
	resp, err := s.chat.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: &temperature,
	})
	if err != nil {
		return catalog.Selection{}, fmt.Errorf("selection LLM call failed: %w", err)
	}

	sel, err := parseSelection(resp.Content)
	if err != nil {
		return catalog.Selection{}, err
	}
	sel.RawResponse = resp.Content

	sel.PickIDs = catalog.FilterKnown(sel.PickIDs, candidates)
	if len(sel.PickIDs) == 0 {
		return catalog.Selection{}, fmt.Errorf("selector returned no usable picks")
	}

	if len(sel.Order) == 0 {
		sel.Order = append([]string(nil), sel.PickIDs...)
	}

	return sel, nil
}

func parseSelection(content string) (catalog.Selection, error) {
	raw := llm.ExtractJSON(content)
	if raw == "" {
		return catalog.Selection{}, fmt.Errorf("no JSON object found in selection response")
	}

	var sel catalog.Selection
	if err := json.Unmarshal([]byte(raw), &sel); err != nil {
		return catalog.Selection{}, fmt.Errorf("decode selection response: %w", err)
	}

	return sel, nil
}

// renderUserPrompt fills the user-prompt template with the query and a
// rendered candidate block per candidate (id/description/provides/tags/
// contract keys/endpoint), matching build_candidates_section in
// original_source/coordinator_agent/utils.go.
func (s *Selector) renderUserPrompt(query string, candidates []catalog.Candidate) (string, error) {
	_, userTemplate := s.prompts()

	tmpl, err := template.New("selection-user").Parse(userTemplate)
	if err != nil {
		return "", err
	}

	var candidateBlocks strings.Builder
	for _, c := range candidates {
		inputKeys := contract.ParseInputSchema(c.Metadata.ContractInput).OutputKeys()
		outputKeys := contract.ParseOutputSchema(c.Metadata.ContractOutput).OutputKeys()
		sort.Strings(inputKeys)
		sort.Strings(outputKeys)
		fmt.Fprintf(&candidateBlocks, "- id: %s\n  description: %s\n  provides: %s\n  tags: %s\n  inputs: %s\n  outputs: %s\n  endpoint: %s\n\n",
			c.ID, c.Document, strings.Join(c.Metadata.Provides, ", "), strings.Join(c.Metadata.Tags, ", "),
			strings.Join(inputKeys, ", "), strings.Join(outputKeys, ", "), c.Metadata.Endpoint)
	}

	var out strings.Builder
	err = tmpl.Execute(&out, struct {
		Query      string
		Candidates string
	}{Query: query, Candidates: candidateBlocks.String()})
	if err != nil {
		return "", err
	}

	return out.String(), nil
}
