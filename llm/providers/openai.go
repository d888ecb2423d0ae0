package providers

import (
	"net/http"
	"os"

	"github.com/c360studio/coordinator-agent/llm"
)

// OpenAIProvider implements the OpenAI API for direct OpenAI or OpenRouter usage.
// It is separate from OllamaProvider to allow a different default URL and auth scheme.
type OpenAIProvider struct {
	OllamaProvider // embed for shared request/response format
}

func init() {
	llm.RegisterProvider(&OpenAIProvider{})
}

func (o *OpenAIProvider) Name() string {
	return "openai"
}

// BuildChatURL constructs the OpenAI chat completions endpoint.
func (o *OpenAIProvider) BuildChatURL(baseURL, path string) string {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return joinURL(baseURL, path, "/chat/completions")
}

// BuildEmbedURL constructs the OpenAI embeddings endpoint.
func (o *OpenAIProvider) BuildEmbedURL(baseURL, path string) string {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return joinURL(baseURL, path, "/embeddings")
}

// SetHeaders adds OpenAI authentication headers.
func (o *OpenAIProvider) SetHeaders(req *http.Request) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	if siteURL := os.Getenv("OPENROUTER_SITE_URL"); siteURL != "" {
		req.Header.Set("HTTP-Referer", siteURL)
	}
	if siteName := os.Getenv("OPENROUTER_SITE_NAME"); siteName != "" {
		req.Header.Set("X-Title", siteName)
	}
}
