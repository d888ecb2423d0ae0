package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/coordinator-agent/audit"
	"github.com/c360studio/coordinator-agent/catalog"
	"github.com/c360studio/coordinator-agent/dispatcher"
	"github.com/c360studio/coordinator-agent/extractor"
	"github.com/c360studio/coordinator-agent/llm"
	_ "github.com/c360studio/coordinator-agent/llm/providers"
	"github.com/c360studio/coordinator-agent/metrics"
	"github.com/c360studio/coordinator-agent/selector"
	"github.com/c360studio/coordinator-agent/vectorstore"
)

// newTestServer wires a real Server against httptest-backed LLM,
// vector-store, and downstream service fixtures so /api/dispatch exercises
// the full selector -> extractor -> resolver -> planner -> dispatcher
// pipeline exactly as cmd/coordinator wires it in production.
func newTestServer(t *testing.T, chatFixture string) *Server {
	t.Helper()

	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"customer_tier":"gold"}`))
	}))
	t.Cleanup(downstream.Close)

	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.URL.Path, "embeddings") {
			w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
			return
		}
		w.Write([]byte(chatFixture))
	}))
	t.Cleanup(llmSrv.Close)

	llmClient := llm.NewClient(llmSrv.URL, llm.WithChatModel("chat-model"), llm.WithEmbedModel("embed-model"))

	vsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/collections") {
			json.NewEncoder(w).Encode([]map[string]string{{"id": "coll-1", "name": "services"}})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"ids":       [][]string{{"customer-service"}},
			"documents": [][]string{{"looks up a customer's tier"}},
			"metadatas": [][]map[string]any{{{"endpoint": downstream.URL + "/customer", "contract_input": `{"type":"object","properties":{"customer_id":{"type":"string"}},"required":["customer_id"]}`}}},
			"distances": [][]float64{{0.42}},
		})
	}))
	t.Cleanup(vsSrv.Close)
	vs := vectorstore.New(vsSrv.URL, "services", nil)

	sel := selector.New(llmClient, "system prompt", "Query: {{.Query}}\nCandidates:\n{{.Candidates}}")
	ext := extractor.New(llmClient, nil)
	disp := dispatcher.New(nil, nil, nil)
	reg := metrics.NewRegistry(prometheus.NewRegistry())

	return New(llmClient, vs, sel, ext, disp, "", reg, nil)
}

func testCandidate() catalog.Candidate {
	return catalog.Candidate{
		ID:       "customer-service",
		Document: "looks up a customer's tier",
		Metadata: catalog.CandidateMetadata{
			Endpoint:      "http://unused.example/customer/{customer_id}",
			ContractInput: `{"type":"object","properties":{"customer_id":{"type":"string"}},"required":["customer_id"]}`,
		},
	}
}

func TestHandleSearch_RequiresQueryParam(t *testing.T) {
	srv := newTestServer(t, `{}`)
	mux := http.NewServeMux()
	srv.Routes(mux)

	req := httptest.NewRequest(http.MethodGet, "/api/search", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSearch_ReturnsCandidatesFromVectorStore(t *testing.T) {
	srv := newTestServer(t, `{}`)
	mux := http.NewServeMux()
	srv.Routes(mux)

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=who+gets+gold+tier&k=3", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var candidates []catalog.Candidate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &candidates))
	require.Len(t, candidates, 1)
	assert.Equal(t, "customer-service", candidates[0].ID)
	assert.Equal(t, 0.42, candidates[0].Distance)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Equal(t, 0.42, raw[0]["distance"])
}

func TestHandleRerank_RequiresQueryAndCandidates(t *testing.T) {
	srv := newTestServer(t, `{}`)
	mux := http.NewServeMux()
	srv.Routes(mux)

	body := strings.NewReader(`{"query":"","candidates":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/rerank", body)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleRerank_ReturnsSelection(t *testing.T) {
	chat := `{"model":"m","choices":[{"message":{"role":"assistant","content":"{\"pickids\":[\"customer-service\"],\"reasons\":{\"customer-service\":\"needed for tier\"}}"},"finish_reason":"stop"}]}`
	srv := newTestServer(t, chat)
	mux := http.NewServeMux()
	srv.Routes(mux)

	payload, _ := json.Marshal(rerankRequest{Query: "who gets gold tier", Candidates: []catalog.Candidate{testCandidate()}})
	req := httptest.NewRequest(http.MethodPost, "/api/rerank", strings.NewReader(string(payload)))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var sel catalog.Selection
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sel))
	assert.Equal(t, []string{"customer-service"}, sel.PickIDs)
}

func TestHandleDispatch_RunsFullPipeline(t *testing.T) {
	chatFixture := `{"model":"m","choices":[{"message":{"role":"assistant","content":"{\"pickids\":[\"customer-service\"],\"reasons\":{}}"},"finish_reason":"stop"}]}`
	srv := newTestServer(t, chatFixture)
	mux := http.NewServeMux()
	srv.Routes(mux)

	payload := map[string]any{
		"query":       "who gets gold tier pricing",
		"candidates":  []catalog.Candidate{testCandidate()},
		"customer_id": "42",
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/dispatch", strings.NewReader(string(body)))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp dispatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.PickIDs, "customer-service")
	assert.Contains(t, resp.Responses, "customer-service")
}

func TestHandleDispatch_MissingQueryIsBadRequest(t *testing.T) {
	srv := newTestServer(t, `{}`)
	mux := http.NewServeMux()
	srv.Routes(mux)

	req := httptest.NewRequest(http.MethodPost, "/api/dispatch", strings.NewReader(`{"candidates":[]}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleLogs_MissingFileReturns404(t *testing.T) {
	srv := newTestServer(t, `{}`)
	srv.auditPath = "/nonexistent/trace.log"
	mux := http.NewServeMux()
	srv.Routes(mux)

	req := httptest.NewRequest(http.MethodGet, "/api/logs", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleLogs_ReturnsFileContents(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/trace.log"
	logger, err := audit.NewLogger(path, nil)
	require.NoError(t, err)
	logger.Log(audit.Event{Service: "customer-service"})

	srv := newTestServer(t, `{}`)
	srv.auditPath = path
	mux := http.NewServeMux()
	srv.Routes(mux)

	req := httptest.NewRequest(http.MethodGet, "/api/logs", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "customer-service")
}

func TestHandleHealthz_ReportsOK(t *testing.T) {
	srv := newTestServer(t, `{}`)
	mux := http.NewServeMux()
	srv.Routes(mux)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
