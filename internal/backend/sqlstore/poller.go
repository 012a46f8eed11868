package sqlstore

import (
	"context"
	"path/filepath"
	"time"

	"github.com/twiced-technology-gmbh/taskboard/internal/watcher"
)

// Watch publishes writes of other processes until ctx ends. It watches the
// database directory and syncs after every burst of changes to the
// database or its WAL. errFn receives watcher and sync errors; it may be nil.
func (s *Store) Watch(ctx context.Context, errFn func(error)) error {
	base := filepath.Base(s.path)
	resync := func() {
		syncCtx, cancel := context.WithTimeout(ctx, 5*time.Second) //nolint:mnd // bounded sync per burst
		defer cancel()
		if err := s.Sync(syncCtx); err != nil && ctx.Err() == nil {
			s.log.Warn().Err(err).Msg("syncing external changes")
			if errFn != nil {
				errFn(err)
			}
		}
	}
	w, err := watcher.New([]string{filepath.Dir(s.path)}, resync, watcher.WithNames(base, base+"-wal"))
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	// Catch up on anything written before the watch started.
	resync()
	w.Run(ctx, errFn)
	return nil
}
