// Package config provides configuration loading and management for the coordinator.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete coordinator configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	LMStudio    LMStudioConfig    `yaml:"lmstudio"`
	VectorStore VectorStoreConfig `yaml:"vectorstore"`
	Prompts     PromptsConfig     `yaml:"prompts"`
	Audit       AuditConfig       `yaml:"audit"`
}

// ServerConfig configures the coordinator's own HTTP surface.
type ServerConfig struct {
	// Addr is the listen address for the HTTP server (serves /api/*, /healthz, /metrics).
	Addr string `yaml:"addr"`
}

// LMStudioConfig configures the OpenAI-compatible chat/embedding backend.
type LMStudioConfig struct {
	// URL is the LMStudio base URL. Required.
	URL string `yaml:"url"`
	// EmbedPath is the embeddings endpoint path relative to URL.
	EmbedPath string `yaml:"embed_path"`
	// ChatPath is the chat completions endpoint path relative to URL.
	ChatPath string `yaml:"chat_path"`
	// EmbedModel is the model name used for query embedding.
	EmbedModel string `yaml:"embed_model"`
	// ChatModel is the model name used for selection and extraction.
	ChatModel string `yaml:"chat_model"`
	// ConnectTimeout bounds establishing the connection to LMStudio.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	// ReadTimeout bounds waiting for a full chat/embedding response.
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// VectorStoreConfig configures the candidate-retrieval backend (Chroma-compatible).
type VectorStoreConfig struct {
	// URL is the vector store base URL.
	URL string `yaml:"url"`
	// Collection is the name of the collection holding service candidates.
	Collection string `yaml:"collection"`
}

// PromptsConfig configures the selector's system/user prompt templates.
// Each value is either an inline template string or a path to a file
// containing one; ResolvePromptTemplate treats it as a path when the file
// exists.
type PromptsConfig struct {
	SelectionSystemPrompt string `yaml:"selection_system_prompt"`
	SelectionUserPrompt   string `yaml:"selection_user_prompt"`
}

// AuditConfig configures the audit log sink.
type AuditConfig struct {
	// LogPath is the append-only JSON-lines trace log.
	LogPath string `yaml:"log_path"`
}

// DefaultConfig returns a Config with sensible defaults, mirroring the
// environment variable defaults of the original coordinator agent.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		LMStudio: LMStudioConfig{
			URL:            "",
			EmbedPath:      "/v1/embeddings",
			ChatPath:       "/v1/chat/completions",
			EmbedModel:     "",
			ChatModel:      "",
			ConnectTimeout: 2 * time.Second,
			ReadTimeout:    40 * time.Second,
		},
		VectorStore: VectorStoreConfig{
			URL:        "http://chroma-services:8000",
			Collection: "services",
		},
		Prompts: PromptsConfig{
			SelectionSystemPrompt: defaultSelectionSystemPrompt,
			SelectionUserPrompt:   defaultSelectionUserPrompt,
		},
		Audit: AuditConfig{
			LogPath: "/shared/logs/trace.log",
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.LMStudio.URL == "" {
		return fmt.Errorf("lmstudio.url is required (LMSTUDIO_URL)")
	}
	if c.VectorStore.Collection == "" {
		return fmt.Errorf("vectorstore.collection is required")
	}
	if c.Audit.LogPath == "" {
		return fmt.Errorf("audit.log_path is required")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file, starting from defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a YAML file, creating parent directories as needed.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one; other's non-zero values take precedence.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}

	if other.LMStudio.URL != "" {
		c.LMStudio.URL = other.LMStudio.URL
	}
	if other.LMStudio.EmbedPath != "" {
		c.LMStudio.EmbedPath = other.LMStudio.EmbedPath
	}
	if other.LMStudio.ChatPath != "" {
		c.LMStudio.ChatPath = other.LMStudio.ChatPath
	}
	if other.LMStudio.EmbedModel != "" {
		c.LMStudio.EmbedModel = other.LMStudio.EmbedModel
	}
	if other.LMStudio.ChatModel != "" {
		c.LMStudio.ChatModel = other.LMStudio.ChatModel
	}
	if other.LMStudio.ConnectTimeout != 0 {
		c.LMStudio.ConnectTimeout = other.LMStudio.ConnectTimeout
	}
	if other.LMStudio.ReadTimeout != 0 {
		c.LMStudio.ReadTimeout = other.LMStudio.ReadTimeout
	}

	if other.VectorStore.URL != "" {
		c.VectorStore.URL = other.VectorStore.URL
	}
	if other.VectorStore.Collection != "" {
		c.VectorStore.Collection = other.VectorStore.Collection
	}

	if other.Prompts.SelectionSystemPrompt != "" {
		c.Prompts.SelectionSystemPrompt = other.Prompts.SelectionSystemPrompt
	}
	if other.Prompts.SelectionUserPrompt != "" {
		c.Prompts.SelectionUserPrompt = other.Prompts.SelectionUserPrompt
	}

	if other.Audit.LogPath != "" {
		c.Audit.LogPath = other.Audit.LogPath
	}
}

const defaultSelectionSystemPrompt = `You are a dispatch planner. Given a user query and a list of candidate
services, decide which services are required to satisfy the query.
Respond with a single JSON object: {"pickids": [...], "order": [...], "reasons": {...}}.
Only include candidate ids that actually appear in the provided list.`

const defaultSelectionUserPrompt = `Query: {{.Query}}

Candidates:
{{.Candidates}}

Return only the JSON object described above.`
