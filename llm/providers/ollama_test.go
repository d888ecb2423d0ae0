package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/coordinator-agent/llm"
)

func TestBuildChatURL_JoinsPath(t *testing.T) {
	p := &OllamaProvider{}

	assert.Equal(t, "http://localhost:1234/v1/chat/completions", p.BuildChatURL("", "/v1/chat/completions"))
	assert.Equal(t, "http://lmstudio:1234/v1/chat/completions", p.BuildChatURL("http://lmstudio:1234/", "/v1/chat/completions"))
}

func TestParseChatResponse_ExtractsFirstChoice(t *testing.T) {
	p := &OllamaProvider{}
	body := []byte(`{"model":"m","choices":[{"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3}}`)

	resp, err := p.ParseChatResponse(body, "m")

	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Content)
	assert.Equal(t, 3, resp.Usage.PromptTokens)
}

func TestParseChatResponse_NoChoicesErrors(t *testing.T) {
	p := &OllamaProvider{}

	_, err := p.ParseChatResponse([]byte(`{"model":"m","choices":[]}`), "m")

	assert.Error(t, err)
}

func TestParseEmbedResponse_BatchShape(t *testing.T) {
	p := &OllamaProvider{}

	vectors, err := p.ParseEmbedResponse([]byte(`{"data":[{"embedding":[1,2]},{"embedding":[3,4]}]}`))

	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 2}, {3, 4}}, vectors)
}

func TestParseEmbedResponse_BareShape(t *testing.T) {
	p := &OllamaProvider{}

	vectors, err := p.ParseEmbedResponse([]byte(`{"embedding":[1,2,3]}`))

	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 2, 3}}, vectors)
}

func TestParseEmbedResponse_NeitherShapeErrors(t *testing.T) {
	p := &OllamaProvider{}

	_, err := p.ParseEmbedResponse([]byte(`{}`))

	assert.Error(t, err)
}

func TestRegisterProvider_OllamaIsRegisteredByInit(t *testing.T) {
	assert.NotNil(t, llm.GetProvider("ollama"))
	assert.NotNil(t, llm.GetProvider("openai"))
}
