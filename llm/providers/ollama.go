package providers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/c360studio/coordinator-agent/llm"
)

// OllamaProvider implements the OpenAI-compatible API used by Ollama, LMStudio, vLLM, etc.
type OllamaProvider struct{}

func init() {
	llm.RegisterProvider(&OllamaProvider{})
}

func (o *OllamaProvider) Name() string {
	return "ollama"
}

// BuildChatURL constructs the chat completions endpoint.
func (o *OllamaProvider) BuildChatURL(baseURL, path string) string {
	return joinURL(baseURL, path, "/chat/completions")
}

// BuildEmbedURL constructs the embeddings endpoint.
func (o *OllamaProvider) BuildEmbedURL(baseURL, path string) string {
	return joinURL(baseURL, path, "/embeddings")
}

func joinURL(baseURL, path, suffix string) string {
	if baseURL == "" {
		baseURL = "http://localhost:1234"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	if strings.HasSuffix(baseURL, suffix) {
		return baseURL
	}
	if path == "" {
		path = suffix
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return baseURL + path
}

// SetHeaders adds OpenAI-compatible headers.
func (o *OllamaProvider) SetHeaders(req *http.Request) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BuildChatRequestBody creates the OpenAI-compatible chat completion request body.
func (o *OllamaProvider) BuildChatRequestBody(model string, messages []llm.Message, temperature *float64, maxTokens int) ([]byte, error) {
	apiMessages := make([]openAIMessage, len(messages))
	for i, msg := range messages {
		apiMessages[i] = openAIMessage{Role: msg.Role, Content: msg.Content}
	}

	req := openAIChatRequest{
		Model:       model,
		Messages:    apiMessages,
		Temperature: temperature, // nil = use default, 0 = deterministic
	}
	if maxTokens > 0 {
		req.MaxTokens = &maxTokens
	}

	return json.Marshal(req)
}

type openAIChatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// ParseChatResponse extracts content from an OpenAI-compatible chat response.
func (o *OllamaProvider) ParseChatResponse(body []byte, _ string) (*llm.Response, error) {
	var resp openAIChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse chat response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in chat response")
	}

	choice := resp.Choices[0]
	return &llm.Response{
		Content: choice.Message.Content,
		Model:   resp.Model,
		Usage: llm.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		FinishReason: choice.FinishReason,
	}, nil
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// BuildEmbedRequestBody creates the OpenAI-compatible embeddings request body.
func (o *OllamaProvider) BuildEmbedRequestBody(model string, input []string) ([]byte, error) {
	return json.Marshal(openAIEmbedRequest{Model: model, Input: input})
}

// openAIEmbedResponse covers the standard {"data":[{"embedding":[...]}]} shape.
type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	// Embedding covers LMStudio's older bare {"embedding":[...]} shape,
	// seen when a single input string is sent instead of a batch.
	Embedding []float64 `json:"embedding"`
}

// ParseEmbedResponse extracts embedding vectors, tolerating both the
// batched "data" array shape and the bare single-vector shape.
func (o *OllamaProvider) ParseEmbedResponse(body []byte) ([][]float64, error) {
	var resp openAIEmbedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse embed response: %w", err)
	}

	if len(resp.Data) > 0 {
		vectors := make([][]float64, len(resp.Data))
		for i, d := range resp.Data {
			vectors[i] = d.Embedding
		}
		return vectors, nil
	}

	if len(resp.Embedding) > 0 {
		return [][]float64{resp.Embedding}, nil
	}

	return nil, fmt.Errorf("no embedding data in response")
}
