package llm

import (
	"net/http"
	"sync"
)

// Provider defines the interface for OpenAI-compatible LLM backends.
// The coordinator talks to exactly one configured backend per process
// (LMStudio by default), but the provider abstraction is kept so a
// differently-shaped backend can be swapped in without touching Client.
type Provider interface {
	// Name returns the provider identifier (e.g., "ollama", "openai").
	Name() string

	// BuildChatURL constructs the full chat-completions endpoint URL.
	BuildChatURL(baseURL, path string) string

	// BuildEmbedURL constructs the full embeddings endpoint URL.
	BuildEmbedURL(baseURL, path string) string

	// SetHeaders adds provider-specific headers to the request.
	SetHeaders(req *http.Request)

	// BuildChatRequestBody creates the JSON request body for a chat completion.
	// temperature is nil to use the backend default, or a pointer to an explicit value.
	BuildChatRequestBody(model string, messages []Message, temperature *float64, maxTokens int) ([]byte, error)

	// ParseChatResponse extracts the completion from provider-specific JSON.
	ParseChatResponse(body []byte, model string) (*Response, error)

	// BuildEmbedRequestBody creates the JSON request body for an embeddings call.
	BuildEmbedRequestBody(model string, input []string) ([]byte, error)

	// ParseEmbedResponse extracts embedding vectors from provider-specific JSON.
	// Handles both the {"data":[{"embedding":[...]}]} and bare {"embedding":[...]} shapes.
	ParseEmbedResponse(body []byte) ([][]float64, error)
}

// providerRegistry holds registered providers.
var (
	providerRegistry = make(map[string]Provider)
	providerMu       sync.RWMutex
)

// RegisterProvider adds a provider to the registry.
func RegisterProvider(p Provider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	providerRegistry[p.Name()] = p
}

// GetProvider retrieves a provider by name.
func GetProvider(name string) Provider {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return providerRegistry[name]
}

// ListProviders returns all registered provider names.
func ListProviders() []string {
	providerMu.RLock()
	defer providerMu.RUnlock()

	names := make([]string, 0, len(providerRegistry))
	for name := range providerRegistry {
		names = append(names, name)
	}
	return names
}
