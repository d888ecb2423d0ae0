package vectorstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery_ResolvesCollectionAndReturnsCandidates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/collections", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]string{
			{"id": "coll-internal-id", "name": "services"},
		})
	})
	mux.HandleFunc("/api/v1/collections/coll-internal-id/query", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		assert.EqualValues(t, 3, body["n_results"])

		json.NewEncoder(w).Encode(map[string]any{
			"ids":       [][]string{{"customer-service"}},
			"documents": [][]string{{"looks up a customer's tier"}},
			"metadatas": [][]map[string]any{
				{{"endpoint": "http://customer/{customer_id}", "provides": []string{"customer_tier"}}},
			},
			"distances": [][]float64{{0.1234}},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := New(srv.URL, "services", nil)

	embedder := func(ctx context.Context, input []string) ([][]float64, error) {
		return [][]float64{{0.1, 0.2, 0.3}}, nil
	}

	candidates, err := client.Query(context.Background(), embedder, "who gets gold tier pricing", 3)

	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "customer-service", candidates[0].ID)
	assert.Equal(t, "looks up a customer's tier", candidates[0].Document)
	assert.Equal(t, "http://customer/{customer_id}", candidates[0].Metadata.Endpoint)
	assert.Equal(t, 0.1234, candidates[0].Distance)
}

func TestQuery_UnknownCollectionErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/collections", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]string{})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := New(srv.URL, "services", nil)
	embedder := func(ctx context.Context, input []string) ([][]float64, error) {
		return [][]float64{{0.1}}, nil
	}

	_, err := client.Query(context.Background(), embedder, "q", 1)

	assert.Error(t, err)
}

func TestQuery_EmbeddingFailurePropagates(t *testing.T) {
	client := New("http://unused.example", "services", nil)
	embedder := func(ctx context.Context, input []string) ([][]float64, error) {
		return nil, assert.AnError
	}

	_, err := client.Query(context.Background(), embedder, "q", 1)

	assert.Error(t, err)
}
