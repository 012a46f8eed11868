package filelock

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWith_SerializesCriticalSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.lock")

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := With(path, func() error {
				mu.Lock()
				inside++
				maxSeen = max(maxSeen, inside)
				mu.Unlock()

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestWith_ReturnsCallbackError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.lock")
	want := errors.New("write failed")

	err := With(path, func() error { return want })
	require.ErrorIs(t, err, want)

	// The lock was released.
	require.NoError(t, With(path, func() error { return nil }))
}
