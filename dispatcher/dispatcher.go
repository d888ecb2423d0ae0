// Package dispatcher drives the fixed-point execution loop: repeatedly
// attempt every unexecuted picked service whose inputs the Resolver can
// satisfy, fold its response into the shared context, and recompute the
// Planner's order whenever a pass makes no progress, until either every
// service has executed or a bounded stall counter forces an exit.
//
// Grounded on the iterative-pass/no-progress-counter shape of the
// now-superseded processor/task-dispatcher's batch executor, adapted to
// the strictly sequential, single-attempt-per-service model of
// original_source/coordinator_agent/main.go's /api/dispatch handler.
package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/coordinator-agent/audit"
	"github.com/c360studio/coordinator-agent/catalog"
	"github.com/c360studio/coordinator-agent/contract"
	"github.com/c360studio/coordinator-agent/planner"
	"github.com/c360studio/coordinator-agent/resolver"
)

// maxStalls bounds the number of consecutive passes that make no progress
// and grow no context keys before the loop gives up (§4.6).
const maxStalls = 5

// Skip records why a picked service never executed.
type Skip struct {
	Missing []string `json:"missing_inputs"`
	Reason  string   `json:"reason"`
}

// Outcome is the result of one dispatch call.
type Outcome struct {
	CorrelationID string
	Responses     map[string]any
	Skipped       map[string]Skip
	Context       map[string]any
}

// Dispatcher executes a planned set of candidates against their live
// endpoints, auditing every attempt.
type Dispatcher struct {
	httpClient *http.Client
	audit      *audit.Logger
	logger     *slog.Logger
}

// New creates a Dispatcher. httpClient may be nil to use a default client
// with a 15s timeout (downstream business calls are not retried, so a
// single bounded timeout is the only protection against a hung service).
func New(httpClient *http.Client, auditLogger *audit.Logger, logger *slog.Logger) *Dispatcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{httpClient: httpClient, audit: auditLogger, logger: logger}
}

// Dispatch runs the fixed-point loop over pickIDs. candidates must contain
// every id in pickIDs and order (the Planner's first-attempt order, or
// pickIDs itself if the Planner could not order them). initialContext is the
// initial, already-merged dispatch context (base context plus any
// context-sourced values) and is not mutated; the final context is returned
// in Outcome.Context. extracted is the filtered extractor output (LLM-derived
// field values) threaded straight into the Resolver on every attempt, so a
// field present only there can be tagged SourceExtractor in the resolved
// provenance; it may be nil if no extractor ran.
func (d *Dispatcher) Dispatch(ctx context.Context, query string, pickIDs []string, order []string, candidates map[string]catalog.Candidate, reasons map[string]string, initialContext map[string]any, extracted map[string]any) Outcome {
	correlationID := uuid.New().String()

	current := make(map[string]any, len(initialContext))
	for k, v := range initialContext {
		current[k] = v
	}

	executed := make(map[string]bool, len(pickIDs))
	responses := make(map[string]any, len(pickIDs))
	var priorResponses []map[string]any

	attemptOrder := order
	if len(attemptOrder) == 0 {
		attemptOrder = pickIDs
	}

	stalls := 0
	prevKeyCount := len(current)

	// lastMissing tracks, per service id, the fields the Resolver most
	// recently reported missing; it survives across outer-loop passes so the
	// post-loop skip records below report the real unresolved set rather
	// than a service's entire contract.
	lastMissing := make(map[string][]string)

	for {
		remaining := remainingOf(pickIDs, executed)
		if len(remaining) == 0 {
			break
		}

		progress := false

		for _, sid := range orderedSubset(attemptOrder, remaining) {
			cand, ok := candidates[sid]
			if !ok {
				continue
			}

			inputSchema := parseInputSchema(cand)
			res, missing := resolver.Resolve(inputSchema, current, extracted, priorResponses)
			if len(missing) > 0 {
				lastMissing[sid] = missing
				continue
			}
			delete(lastMissing, sid)

			resp := d.call(ctx, correlationID, sid, cand, res, query, reasons[sid])

			responses[sid] = resp
			executed[sid] = true
			progress = true

			if m, ok := resp.(map[string]any); ok {
				for k, v := range m {
					current[k] = v
				}
				priorResponses = append([]map[string]any{m}, priorResponses...)
			}
		}

		curKeyCount := len(current)
		if !progress && curKeyCount == prevKeyCount {
			stalls++
		} else {
			stalls = 0
		}
		prevKeyCount = curKeyCount

		if stalls >= maxStalls {
			break
		}

		if !progress {
			stillRemaining := remainingOf(pickIDs, executed)
			replanned, err := planner.Order(stillRemaining, candidates, knownFields(current))
			if err != nil {
				d.logger.Info("dispatch replan hit a cycle or unresolved set, falling back to pick order",
					"correlation_id", correlationID, "error", err)
				attemptOrder = stillRemaining
			} else {
				attemptOrder = replanned
			}
		}
	}

	skipped := make(map[string]Skip)
	for _, sid := range remainingOf(pickIDs, executed) {
		cand, ok := candidates[sid]
		missing := lastMissing[sid]
		if missing == nil && ok {
			// No missing set was recorded for this sid (every remaining
			// candidate is attempted on each pass, so this is defensive):
			// fall back to the full contract requirement.
			missing = contractRequiredFields(cand)
		}
		skip := Skip{Missing: missing, Reason: "Unresolvable inputs after dependency resolution loop."}
		skipped[sid] = skip
		responses[sid] = map[string]any{"skipped": true, "missing_inputs": missing, "reason": skip.Reason}

		d.auditSkip(correlationID, query, sid, cand, skip, current)
	}

	return Outcome{
		CorrelationID: correlationID,
		Responses:     responses,
		Skipped:       skipped,
		Context:       current,
	}
}

// call executes one resolved service call: builds the URL, POSTs the
// resolved body, parses the response, and emits the audit event. A failed
// call still returns a contained {error:...} value; it counts as
// executed and is never retried (§4.6).
func (d *Dispatcher) call(ctx context.Context, correlationID, sid string, cand catalog.Candidate, res resolver.Result, query, reason string) any {
	url := substitutePlaceholders(cand.Metadata.Endpoint, res.Values)

	body, err := json.Marshal(res.Values)
	if err != nil {
		resp := map[string]any{"error": err.Error()}
		d.auditEvent(correlationID, query, sid, cand, res, reason, res.Values, resp)
		return resp
	}

	resp := d.post(ctx, correlationID, url, body)
	d.auditEvent(correlationID, query, sid, cand, res, reason, res.Values, resp)
	return resp
}

func (d *Dispatcher) post(ctx context.Context, correlationID, url string, body []byte) map[string]any {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Correlation-Id", correlationID)
	req.Header.Set("X-Jwt", "{}")

	httpResp, err := d.httpClient.Do(req)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return map[string]any{"error": err.Error()}
	}

	if httpResp.StatusCode >= 400 {
		return map[string]any{"error": fmt.Sprintf("HTTP %d %s", httpResp.StatusCode, http.StatusText(httpResp.StatusCode))}
	}

	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		truncated := string(raw)
		if len(truncated) > 200 {
			truncated = truncated[:200]
		}
		return map[string]any{"error": "invalid JSON", "raw": truncated}
	}

	return parsed
}

func (d *Dispatcher) auditEvent(correlationID, query, sid string, cand catalog.Candidate, res resolver.Result, reason string, request map[string]any, response any) {
	if d.audit == nil {
		return
	}
	sources := make(map[string]string, len(res.Sources))
	for k, v := range res.Sources {
		sources[k] = string(v)
	}
	respMap, _ := response.(map[string]any)
	d.audit.Log(audit.Event{
		CorrelationID:   correlationID,
		Service:         sid,
		URL:             substitutePlaceholders(cand.Metadata.Endpoint, res.Values),
		Request:         request,
		Response:        respMap,
		Reason:          reason,
		Query:           query,
		ContractInput:   cand.Metadata.ContractInput,
		ContractOutput:  cand.Metadata.ContractOutput,
		ResolvedSources: sources,
	})
}

func (d *Dispatcher) auditSkip(correlationID, query, sid string, cand catalog.Candidate, skip Skip, dispatchContext map[string]any) {
	if d.audit == nil {
		return
	}
	d.audit.Log(audit.Event{
		CorrelationID:  correlationID,
		Service:        sid,
		URL:            cand.Metadata.Endpoint,
		Request:        dispatchContext,
		Response:       map[string]any{"skipped": true, "missing_inputs": skip.Missing, "reason": skip.Reason},
		Reason:         skip.Reason,
		Query:          query,
		ContractInput:  cand.Metadata.ContractInput,
		ContractOutput: cand.Metadata.ContractOutput,
	})
}

func parseInputSchema(cand catalog.Candidate) contract.Schema {
	return contract.ParseInputSchema(cand.Metadata.ContractInput)
}

func contractRequiredFields(cand catalog.Candidate) []string {
	return parseInputSchema(cand).EffectiveRequired()
}

func remainingOf(pickIDs []string, executed map[string]bool) []string {
	var out []string
	for _, id := range pickIDs {
		if !executed[id] {
			out = append(out, id)
		}
	}
	return out
}

// orderedSubset returns the members of subset, ordered as they appear in
// order; any subset member absent from order is appended at the end in
// subset's own order.
func orderedSubset(order []string, subset []string) []string {
	want := make(map[string]bool, len(subset))
	for _, id := range subset {
		want[id] = true
	}

	out := make([]string, 0, len(subset))
	seen := make(map[string]bool, len(subset))
	for _, id := range order {
		if want[id] && !seen[id] {
			out = append(out, id)
			seen[id] = true
		}
	}
	for _, id := range subset {
		if !seen[id] {
			out = append(out, id)
			seen[id] = true
		}
	}
	return out
}

func knownFields(ctxValues map[string]any) map[string]bool {
	out := make(map[string]bool, len(ctxValues))
	for k := range ctxValues {
		out[k] = true
	}
	return out
}

// substitutePlaceholders replaces every {key} occurrence in endpoint with
// values[key]'s string form, matching original_source's f-string endpoint
// templating.
func substitutePlaceholders(endpoint string, values map[string]any) string {
	out := endpoint
	for k, v := range values {
		out = strings.ReplaceAll(out, "{"+k+"}", fmt.Sprintf("%v", v))
	}
	return out
}
