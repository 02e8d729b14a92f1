package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rcourtman/harborview/internal/logging"
)

func TestWatcherReloadsLogLevel(t *testing.T) {
	prev := logging.GetGlobalLevel()
	t.Cleanup(func() { logging.SetGlobalLevel(prev) })

	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	writeFile(t, path, "logLevel: info\n")

	cfg, err := Load(dir)
	require.NoError(t, err)

	reloaded := make(chan *Config, 4)
	w, err := NewWatcher(cfg, func(c *Config) { reloaded <- c })
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond
	require.NoError(t, w.Start())
	t.Cleanup(w.Stop)

	writeFile(t, path, "logLevel: debug\n")

	select {
	case next := <-reloaded:
		require.Equal(t, "debug", next.LogLevel)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not reload")
	}
	require.Equal(t, "debug", logging.GetGlobalLevel())
	require.Equal(t, "debug", w.Current().LogLevel)
}

func TestWatcherKeepsPreviousConfigOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	writeFile(t, path, "pollInterval: 2s\n")

	cfg, err := Load(dir)
	require.NoError(t, err)

	w, err := NewWatcher(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(w.Stop)

	writeFile(t, path, "pollInterval: 1ms\n")
	w.Reload()

	require.Same(t, cfg, w.Current())
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	w := &Watcher{}
	require.True(t, w.relevant("/data/harborview.yaml"))
	require.True(t, w.relevant("/data/.env"))
	require.False(t, w.relevant("/data/harborview.yaml.swp"))
}
