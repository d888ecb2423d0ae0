// Package vectorstore is the boundary client for the vector index used for
// candidate retrieval. It resolves a human-readable collection name to the
// store's internal id and queries it with a query embedding.
//
// Grounded on original_source/coordinator_agent/main.py's get_collection_id
// and the /api/search handler's chroma query/parse steps.
package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/c360studio/coordinator-agent/catalog"
	"github.com/c360studio/coordinator-agent/llm"
)

// Client queries a Chroma-compatible vector store over HTTP.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
}

// New creates a Client. baseURL is the vector store's base address;
// collection is the fixed human-readable collection name ("services").
func New(baseURL, collection string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: httpClient,
	}
}

type collectionEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CollectionID resolves c.collection to the store's internal collection id
// via GET /api/v1/collections. Callers may cache the result per-process
// since collections are bootstrapped once.
func (c *Client) CollectionID(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/collections", nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", llm.NewTransientError(fmt.Errorf("list collections: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read collections response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("list collections: status %d: %s", resp.StatusCode, string(body))
	}

	var entries []collectionEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return "", fmt.Errorf("decode collections response: %w", err)
	}

	for _, e := range entries {
		if e.Name == c.collection {
			return e.ID, nil
		}
	}

	return "", fmt.Errorf("collection %q not found", c.collection)
}

type queryRequest struct {
	QueryEmbeddings [][]float64 `json:"query_embeddings"`
	NResults        int         `json:"n_results"`
	Include         []string    `json:"include"`
}

type queryResponse struct {
	IDs       [][]string                   `json:"ids"`
	Documents [][]string                   `json:"documents"`
	Metadatas [][]catalog.CandidateMetadata `json:"metadatas"`
	Distances [][]float64                  `json:"distances"`
}

// Query embeds query via embedder, resolves the collection id, and returns
// the top-k candidates. embedder is typically an *llm.Client's Embed
// method, injected so callers can substitute a test double.
func (c *Client) Query(ctx context.Context, embedder func(ctx context.Context, input []string) ([][]float64, error), query string, k int) ([]catalog.Candidate, error) {
	vectors, err := embedder(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding error: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedding error: no vector returned")
	}

	collID, err := c.CollectionID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chroma error: %w", err)
	}

	payload, err := json.Marshal(queryRequest{
		QueryEmbeddings: [][]float64{vectors[0]},
		NResults:        k,
		Include:         []string{"documents", "metadatas", "distances"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal query request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/collections/%s/query", c.baseURL, collID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, llm.NewTransientError(fmt.Errorf("vector search error: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read vector search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vector search error: status %d: %s", resp.StatusCode, string(body))
	}

	var data queryResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("decode vector search response: %w", err)
	}

	var ids []string
	var docs []string
	var metas []catalog.CandidateMetadata
	var dists []float64
	if len(data.IDs) > 0 {
		ids = data.IDs[0]
	}
	if len(data.Documents) > 0 {
		docs = data.Documents[0]
	}
	if len(data.Metadatas) > 0 {
		metas = data.Metadatas[0]
	}
	if len(data.Distances) > 0 {
		dists = data.Distances[0]
	}

	candidates := make([]catalog.Candidate, 0, len(ids))
	for i, id := range ids {
		cand := catalog.Candidate{ID: id}
		if i < len(docs) {
			cand.Document = docs[i]
		}
		if i < len(metas) {
			cand.Metadata = metas[i]
		}
		if i < len(dists) {
			cand.Distance = dists[i]
		}
		candidates = append(candidates, cand)
	}

	return candidates, nil
}
