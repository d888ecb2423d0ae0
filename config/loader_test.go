package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ProjectFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coordinator.yaml")

	project := DefaultConfig()
	project.LMStudio.URL = "http://project:1234"
	project.VectorStore.Collection = "services"
	require.NoError(t, project.SaveToFile(path))

	loader := NewLoader(nil)
	cfg, err := loader.Load(path)

	require.NoError(t, err)
	assert.Equal(t, "http://project:1234", cfg.LMStudio.URL)
}

func TestLoad_EnvOverridesProjectFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coordinator.yaml")

	project := DefaultConfig()
	project.LMStudio.URL = "http://project:1234"
	project.VectorStore.Collection = "services"
	require.NoError(t, project.SaveToFile(path))

	t.Setenv("LMSTUDIO_URL", "http://env:5678")

	loader := NewLoader(nil)
	cfg, err := loader.Load(path)

	require.NoError(t, err)
	assert.Equal(t, "http://env:5678", cfg.LMStudio.URL)
}

func TestLoad_MissingProjectFileFallsBackToDefaultsThenEnv(t *testing.T) {
	t.Setenv("LMSTUDIO_URL", "http://env-only:1111")
	t.Setenv("CHAT_MODEL", "env-chat-model")

	loader := NewLoader(nil)
	cfg, err := loader.Load(filepath.Join(t.TempDir(), "missing.yaml"))

	require.NoError(t, err)
	assert.Equal(t, "http://env-only:1111", cfg.LMStudio.URL)
	assert.Equal(t, "env-chat-model", cfg.LMStudio.ChatModel)
	assert.Equal(t, "services", cfg.VectorStore.Collection, "default collection survives when env doesn't override it")
}

func TestLoad_FailsValidationWithNoURLAnywhere(t *testing.T) {
	loader := NewLoader(nil)

	_, err := loader.Load(filepath.Join(t.TempDir(), "missing.yaml"))

	assert.Error(t, err)
}

func TestApplyEnv_ParsesMillisecondTimeouts(t *testing.T) {
	t.Setenv("LMSTUDIO_CONNECT_TIMEOUT_MS", "500")
	t.Setenv("LMSTUDIO_READ_TIMEOUT_MS", "2500")

	cfg := DefaultConfig()
	loader := NewLoader(nil)
	loader.applyEnv(cfg)

	assert.Equal(t, 500*time.Millisecond, cfg.LMStudio.ConnectTimeout)
	assert.Equal(t, 2500*time.Millisecond, cfg.LMStudio.ReadTimeout)
}

func TestApplyEnv_IgnoresUnparseableTimeout(t *testing.T) {
	t.Setenv("LMSTUDIO_CONNECT_TIMEOUT_MS", "not-a-number")

	cfg := DefaultConfig()
	want := cfg.LMStudio.ConnectTimeout
	loader := NewLoader(nil)
	loader.applyEnv(cfg)

	assert.Equal(t, want, cfg.LMStudio.ConnectTimeout)
}

func TestFindProjectConfig_WalksUpToParentDirectory(t *testing.T) {
	root := t.TempDir()
	child := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(child, 0o755))

	cfg := DefaultConfig()
	cfg.LMStudio.URL = "http://found:1234"
	cfg.VectorStore.Collection = "services"
	require.NoError(t, cfg.SaveToFile(filepath.Join(root, ProjectConfigFile)))

	oldwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(child))
	defer os.Chdir(oldwd)

	loader := NewLoader(nil)
	found := loader.findProjectConfig()

	assert.Equal(t, filepath.Join(root, ProjectConfigFile), found)
}

func TestResolvePromptTemplate_ReadsExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompt.tmpl")
	require.NoError(t, os.WriteFile(path, []byte("file contents"), 0o644))

	resolved, err := ResolvePromptTemplate(path)

	require.NoError(t, err)
	assert.Equal(t, "file contents", resolved)
}

func TestResolvePromptTemplate_TreatsNonExistentPathAsLiteral(t *testing.T) {
	resolved, err := ResolvePromptTemplate("You are a {{.Role}}.")

	require.NoError(t, err)
	assert.Equal(t, "You are a {{.Role}}.", resolved)
}

func TestResolvePromptTemplate_EmptyValueReturnsEmpty(t *testing.T) {
	resolved, err := ResolvePromptTemplate("   ")

	require.NoError(t, err)
	assert.Empty(t, resolved)
}
