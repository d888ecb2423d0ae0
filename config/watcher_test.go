package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPromptWatcher_ReturnsNilWhenNoPathIsAFile(t *testing.T) {
	w, err := NewPromptWatcher([]string{"You are a {{.Role}}."}, 0, func() {}, nil)

	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestPromptWatcher_FiresOnChangeAfterFileWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "system.tmpl")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))

	var fired atomic.Bool
	w, err := NewPromptWatcher([]string{path}, 20*time.Millisecond, func() { fired.Store(true) }, nil)
	require.NoError(t, err)
	require.NotNil(t, w)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	require.NoError(t, os.WriteFile(path, []byte("updated"), 0o644))

	require.Eventually(t, fired.Load, time.Second, 10*time.Millisecond)
}

func TestPromptWatcher_IgnoresUnrelatedFileInSameDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "system.tmpl")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))

	var fired atomic.Bool
	w, err := NewPromptWatcher([]string{path}, 20*time.Millisecond, func() { fired.Store(true) }, nil)
	require.NoError(t, err)
	require.NotNil(t, w)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("noise"), 0o644))

	time.Sleep(100 * time.Millisecond)
	assert.False(t, fired.Load())
}
