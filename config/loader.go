package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ProjectConfigFile is the name of the project-level config file.
const ProjectConfigFile = "coordinator.yaml"

// Loader handles configuration loading with layered precedence.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a new configuration loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load loads configuration with layered precedence:
//  1. Default config
//  2. Project config (the given file path, or, when empty, coordinator.yaml
//     found by searching upward from the working directory; if present)
//  3. Environment variables
func (l *Loader) Load(projectConfigPath string) (*Config, error) {
	cfg := DefaultConfig()

	if projectConfigPath == "" {
		projectConfigPath = l.findProjectConfig()
	}
	if projectConfigPath != "" {
		if projectConfig, err := LoadFromFile(projectConfigPath); err == nil {
			l.logger.Debug("loaded project config", slog.String("path", projectConfigPath))
			cfg.Merge(projectConfig)
		} else if !os.IsNotExist(err) {
			l.logger.Warn("failed to load project config", slog.String("path", projectConfigPath), slog.String("error", err.Error()))
		}
	}

	l.applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overrides cfg fields from the documented environment variables.
// Environment variables take precedence over file-based config, matching
// the layering the rest of this codebase's Loader implements.
func (l *Loader) applyEnv(cfg *Config) {
	if v := os.Getenv("CHROMA_AGENTS_URL"); v != "" {
		cfg.VectorStore.URL = v
	}
	if v := os.Getenv("LMSTUDIO_URL"); v != "" {
		cfg.LMStudio.URL = v
	}
	if v := os.Getenv("LMSTUDIO_EMBED_PATH"); v != "" {
		cfg.LMStudio.EmbedPath = v
	}
	if v := os.Getenv("LMSTUDIO_CHAT_PATH"); v != "" {
		cfg.LMStudio.ChatPath = v
	}
	if v := os.Getenv("EMBED_MODEL"); v != "" {
		cfg.LMStudio.EmbedModel = v
	}
	if v := os.Getenv("CHAT_MODEL"); v != "" {
		cfg.LMStudio.ChatModel = v
	}
	if v := os.Getenv("SERVICE_SELECTION_SYSTEM_PROMPT"); v != "" {
		cfg.Prompts.SelectionSystemPrompt = v
	}
	if v := os.Getenv("SERVICE_SELECTION_USER_PROMPT"); v != "" {
		cfg.Prompts.SelectionUserPrompt = v
	}
	if v := os.Getenv("COORDINATOR_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("COORDINATOR_LOG_PATH"); v != "" {
		cfg.Audit.LogPath = v
	}
	if v := os.Getenv("LMSTUDIO_CONNECT_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.LMStudio.ConnectTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("LMSTUDIO_READ_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.LMStudio.ReadTimeout = time.Duration(ms) * time.Millisecond
		}
	}
}

// findProjectConfig searches for coordinator.yaml in the current and parent directories.
func (l *Loader) findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// ResolvePromptTemplate returns the effective template text for a prompts
// config value: if it names an existing, readable file, the file content is
// returned; otherwise the value itself is treated as the literal template.
func ResolvePromptTemplate(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", nil
	}
	if info, err := os.Stat(trimmed); err == nil && !info.IsDir() {
		data, err := os.ReadFile(trimmed)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return value, nil
}
