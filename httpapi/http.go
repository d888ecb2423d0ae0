// Package httpapi exposes the coordinator's HTTP surface: candidate
// search, selector-only rerank, full dispatch, and trace-log retrieval,
// plus the ambient /healthz and /metrics endpoints.
//
// Handler shape (MaxBytesReader request limiting, writeJSON/writeJSONError
// helpers, method switch per handler) is grounded on
// processor/project-api/http.go and source/http.go.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360studio/coordinator-agent/catalog"
	"github.com/c360studio/coordinator-agent/contract"
	"github.com/c360studio/coordinator-agent/dispatcher"
	"github.com/c360studio/coordinator-agent/extractor"
	"github.com/c360studio/coordinator-agent/llm"
	"github.com/c360studio/coordinator-agent/metrics"
	"github.com/c360studio/coordinator-agent/planner"
	"github.com/c360studio/coordinator-agent/selector"
	"github.com/c360studio/coordinator-agent/vectorstore"
)

// maxRequestBodySize limits POST body sizes to prevent DoS.
const maxRequestBodySize = 1 << 20 // 1 MB

const defaultSearchK = 5

// ErrorResponse is the JSON shape written on any 4xx/5xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Server wires the coordinator's components to the HTTP surface in §6.
type Server struct {
	llmClient   *llm.Client
	vectorStore *vectorstore.Client
	selector    *selector.Selector
	extractor   *extractor.Extractor
	dispatcher  *dispatcher.Dispatcher
	auditPath   string
	metrics     *metrics.Registry
	logger      *slog.Logger
}

// New creates a Server. All dependencies are pre-constructed by the
// caller (cmd/coordinator's wiring) so Server itself owns no lifecycle.
func New(
	llmClient *llm.Client,
	vectorStore *vectorstore.Client,
	sel *selector.Selector,
	ext *extractor.Extractor,
	disp *dispatcher.Dispatcher,
	auditPath string,
	reg *metrics.Registry,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		llmClient:   llmClient,
		vectorStore: vectorStore,
		selector:    sel,
		extractor:   ext,
		dispatcher:  disp,
		auditPath:   auditPath,
		metrics:     reg,
		logger:      logger,
	}
}

// Routes registers every handler from §6 onto mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/search", s.handleSearch)
	mux.HandleFunc("/api/rerank", s.handleRerank)
	mux.HandleFunc("/api/dispatch", s.handleDispatch)
	mux.HandleFunc("/api/logs", s.handleLogs)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
}

// ----------------------------------------------------------------------------
// GET /api/search?q=<s>&k=<int>
// ----------------------------------------------------------------------------

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSONError(w, http.StatusBadRequest, "bad_request", "missing 'q' query parameter")
		return
	}

	k := defaultSearchK
	if raw := r.URL.Query().Get("k"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			k = parsed
		}
	}

	candidates, err := s.vectorStore.Query(r.Context(), s.llmClient.Embed, q, k)
	if err != nil {
		s.logger.Warn("candidate search failed", "error", err)
		writeJSONError(w, http.StatusBadGateway, "upstream_failure", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, candidates)
}

// ----------------------------------------------------------------------------
// POST /api/rerank
// ----------------------------------------------------------------------------

type rerankRequest struct {
	Query      string              `json:"query"`
	Candidates []catalog.Candidate `json:"candidates"`
}

func (s *Server) handleRerank(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req rerankRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_json", "failed to parse request body")
		return
	}

	if req.Query == "" || len(req.Candidates) == 0 {
		writeJSONError(w, http.StatusBadRequest, "bad_request", "require 'query' and 'candidates'")
		return
	}

	sel, err := s.selector.Select(r.Context(), req.Query, req.Candidates)
	if err != nil {
		s.logger.Warn("selector call failed", "error", err)
		writeJSONError(w, http.StatusBadGateway, "upstream_failure", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, sel)
}

// ----------------------------------------------------------------------------
// POST /api/dispatch
// ----------------------------------------------------------------------------

type dispatchRequest struct {
	Query      string              `json:"query"`
	Candidates []catalog.Candidate `json:"candidates"`
	Context    map[string]any      `json:"-"`
}

// dispatchResponse mirrors §6's {pickids, reasons, responses, skipped,
// llm_raw} shape.
type dispatchResponse struct {
	PickIDs   []string                   `json:"pickids"`
	Reasons   map[string]string          `json:"reasons,omitempty"`
	Responses map[string]any             `json:"responses"`
	Skipped   map[string]dispatcher.Skip `json:"skipped,omitempty"`
	LLMRaw    string                     `json:"llm_raw,omitempty"`
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		if s.metrics != nil {
			s.metrics.DispatchTotal.WithLabelValues("invalid_json").Inc()
		}
		writeJSONError(w, http.StatusBadRequest, "invalid_json", "failed to parse request body")
		return
	}

	req, err := parseDispatchRequest(raw)
	if err != nil {
		if s.metrics != nil {
			s.metrics.DispatchTotal.WithLabelValues("bad_request").Inc()
		}
		writeJSONError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	resp, status, err := s.dispatch(r.Context(), req)
	if err != nil {
		if s.metrics != nil {
			s.metrics.DispatchTotal.WithLabelValues(statusToErrorCode(status)).Inc()
		}
		writeJSONError(w, status, statusToErrorCode(status), err.Error())
		return
	}

	if s.metrics != nil {
		s.metrics.DispatchTotal.WithLabelValues("ok").Inc()
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseDispatchRequest(raw map[string]any) (dispatchRequest, error) {
	var req dispatchRequest

	q, _ := raw["query"].(string)
	if q == "" {
		return req, errors.New("require 'query' and 'candidates'")
	}
	req.Query = q

	rawCandidates, ok := raw["candidates"].([]any)
	if !ok || len(rawCandidates) == 0 {
		return req, errors.New("require 'query' and 'candidates'")
	}

	encoded, err := json.Marshal(rawCandidates)
	if err != nil {
		return req, err
	}
	if err := json.Unmarshal(encoded, &req.Candidates); err != nil {
		return req, errors.New("malformed 'candidates'")
	}

	req.Context = make(map[string]any, len(raw))
	for k, v := range raw {
		if k == "query" || k == "candidates" {
			continue
		}
		req.Context[k] = v
	}

	return req, nil
}

func statusToErrorCode(status int) string {
	if status == http.StatusBadGateway {
		return "upstream_failure"
	}
	return "bad_request"
}

// dispatch runs the full pipeline: select, extract, resolve, plan,
// execute. It returns the status code to use on error.
func (s *Server) dispatch(ctx context.Context, req dispatchRequest) (dispatchResponse, int, error) {
	sel, err := s.selector.Select(ctx, req.Query, req.Candidates)
	if err != nil {
		return dispatchResponse{}, http.StatusBadGateway, err
	}

	byID := catalog.ByID(req.Candidates)

	merged := mergedInputSchema(sel.PickIDs, byID)
	mergedNullable := contract.AllowNulls(merged)

	extracted := s.extractor.Extract(ctx, req.Query, mergedNullable)
	filtered := extractor.Filter(extracted)
	if len(filtered) == 0 {
		return dispatchResponse{}, http.StatusBadRequest, errors.New("No usable values extracted from query")
	}

	dispatchContext := make(map[string]any, len(req.Context)+len(filtered))
	for k, v := range req.Context {
		dispatchContext[k] = v
	}
	for k, v := range filtered {
		dispatchContext[k] = v
	}

	known := make(map[string]bool, len(dispatchContext))
	for k := range dispatchContext {
		known[k] = true
	}

	order, err := planner.Order(sel.PickIDs, byID, known)
	if err != nil {
		s.logger.Info("initial plan unresolved, dispatcher will fall back to pick order", "error", err)
		order = sel.PickIDs
	}

	outcome := s.dispatcher.Dispatch(ctx, req.Query, sel.PickIDs, order, byID, sel.Reasons, dispatchContext, filtered)

	if s.metrics != nil {
		for sid := range outcome.Responses {
			label := "executed"
			if _, skipped := outcome.Skipped[sid]; skipped {
				label = "skipped"
			} else if m, ok := outcome.Responses[sid].(map[string]any); ok {
				if _, failed := m["error"]; failed {
					label = "error"
				}
			}
			s.metrics.ServiceOutcomes.WithLabelValues(sid, label).Inc()
		}
	}

	return dispatchResponse{
		PickIDs:   sel.PickIDs,
		Reasons:   sel.Reasons,
		Responses: outcome.Responses,
		Skipped:   outcome.Skipped,
		LLMRaw:    sel.RawResponse,
	}, http.StatusOK, nil
}

func mergedInputSchema(pickIDs []string, byID map[string]catalog.Candidate) contract.Schema {
	schemas := make([]contract.Schema, 0, len(pickIDs))
	for _, id := range pickIDs {
		cand, ok := byID[id]
		if !ok {
			continue
		}
		schemas = append(schemas, contract.ParseInputSchema(cand.Metadata.ContractInput))
	}
	return contract.Merge(schemas)
}

// ----------------------------------------------------------------------------
// GET /api/logs
// ----------------------------------------------------------------------------

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, err := os.ReadFile(s.auditPath)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSONError(w, http.StatusNotFound, "not_found", "trace log does not exist yet")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// ----------------------------------------------------------------------------
// GET /healthz
// ----------------------------------------------------------------------------

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ----------------------------------------------------------------------------
// helpers
// ----------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func writeJSONError(w http.ResponseWriter, status int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: errorCode, Message: message})
}
