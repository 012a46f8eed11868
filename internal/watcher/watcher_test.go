package watcher

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

func TestWatcher_DebouncesMatchingWrites(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	fired := make(chan struct{}, 10)

	w, err := New([]string{dir}, func() {
		calls.Add(1)
		fired <- struct{}{}
	}, WithDelay(50*time.Millisecond), WithNames("board.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, nil)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o600))
	for i := range 5 {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "board.db"), []byte{byte(i)}, 0o600))
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("callback not invoked")
	}
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWatcher_IgnoresOtherNames(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32

	w, err := New([]string{dir}, func() { calls.Add(1) }, WithDelay(20*time.Millisecond), WithNames("board.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, nil)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("x"), 0o600))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestNew_MissingPath(t *testing.T) {
	_, err := New([]string{filepath.Join(t.TempDir(), "missing")}, func() {})
	assert.Error(t, err)
}
