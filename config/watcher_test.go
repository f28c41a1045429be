package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadOnWrite(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "config.yml")
	other := filepath.Join(dir, "other.yml")
	require.NoError(t, os.WriteFile(watched, []byte("a: 1\n"), 0o644))

	w, err := NewWatcher()
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond

	var reloads atomic.Int32
	require.NoError(t, w.Add(watched, func() { reloads.Add(1) }))

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		w.Run(done)
		close(stopped)
	}()

	require.NoError(t, os.WriteFile(other, []byte("b: 1\n"), 0o644))
	require.NoError(t, os.WriteFile(watched, []byte("a: 2\n"), 0o644))

	assert.Eventually(t, func() bool { return reloads.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	close(done)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}
