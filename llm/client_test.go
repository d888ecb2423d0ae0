package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/c360studio/coordinator-agent/llm/providers"
)

func TestComplete_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"chat-model","choices":[{"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithChatModel("chat-model"))

	resp, err := client.Complete(context.Background(), Request{Messages: []Message{{Role: "user", Content: "hi"}}})

	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.NotEmpty(t, resp.RequestID)
}

func TestComplete_RequiresMessages(t *testing.T) {
	client := NewClient("http://unused.example")

	_, err := client.Complete(context.Background(), Request{})

	assert.Error(t, err)
}

func TestComplete_FatalErrorIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithRetryConfig(RetryConfig{MaxAttempts: 3, BackoffBase: time.Millisecond, BackoffMultiplier: 1, MaxBackoff: time.Millisecond}))

	_, err := client.Complete(context.Background(), Request{Messages: []Message{{Role: "user", Content: "hi"}}})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestComplete_TransientErrorRetriesThenSucceeds(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"m","choices":[{"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithRetryConfig(RetryConfig{MaxAttempts: 3, BackoffBase: time.Millisecond, BackoffMultiplier: 1, MaxBackoff: time.Millisecond}))

	resp, err := client.Complete(context.Background(), Request{Messages: []Message{{Role: "user", Content: "hi"}}})

	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 2, calls)
}

func TestEmbed_RequiresInput(t *testing.T) {
	client := NewClient("http://unused.example")

	_, err := client.Embed(context.Background(), nil)

	assert.Error(t, err)
}

func TestEmbed_ParsesBatchShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithEmbedModel("embed-model"))

	vectors, err := client.Embed(context.Background(), []string{"hello"})

	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, vectors[0])
}
