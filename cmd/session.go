package cmd

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/twiced-technology-gmbh/taskboard/internal/backend"
	"github.com/twiced-technology-gmbh/taskboard/internal/backend/sqlstore"
	"github.com/twiced-technology-gmbh/taskboard/internal/board"
	"github.com/twiced-technology-gmbh/taskboard/internal/config"
	"github.com/twiced-technology-gmbh/taskboard/internal/engine"
	"github.com/twiced-technology-gmbh/taskboard/internal/feed"
	"github.com/twiced-technology-gmbh/taskboard/internal/logging"
	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

// session is an open board: the store, its change feed and an engine
// loaded from it.
type session struct {
	cfg    *config.Config
	hub    *feed.Hub
	store  *sqlstore.Store
	engine *engine.Engine
	actor  task.User
}

// openSession loads the config, opens the database and loads the engine.
func openSession(ctx context.Context) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openSessionWith(ctx, cfg)
}

func openSessionWith(ctx context.Context, cfg *config.Config) (*session, error) {
	log := logging.Component("cli")
	hub := feed.NewHub()
	hub.OnPanic(func(ev feed.Event, recovered any) {
		log.Error().Str("entity", ev.Entity).Str("id", ev.ID).Interface("panic", recovered).Msg("feed subscriber panicked")
	})
	hub.OnPublish(func(ev feed.Event) {
		log.Trace().Str("entity", ev.Entity).Str("type", string(ev.Type)).Str("id", ev.ID).Msg("change delivered")
	})

	store, err := sqlstore.Open(ctx, cfg.DatabasePath(), hub)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &session{cfg: cfg, hub: hub, store: store}

	if err := s.seedStatuses(ctx, false); err != nil {
		_ = store.Close()
		return nil, err
	}
	s.actor, err = store.EnsureUser(ctx, actorName(cfg), "")
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	s.engine = engine.New(engine.Options{
		Backend:     store,
		Feed:        hub,
		Activity:    activityLog(cfg, store),
		Scope:       backend.Scope{ProjectID: cfg.Board.Project},
		Actor:       s.actor.ID,
		DoneStatus:  cfg.DoneStatus,
		PositionGap: cfg.PositionGap,
	})
	if err := s.engine.Load(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close waits for unsettled mutations and closes the database.
func (s *session) Close() {
	if s.engine != nil {
		s.engine.Close()
	}
	_ = s.store.Close()
}

// seedStatuses stores the configured statuses. Unless force is set it only
// does so when the database has none yet.
func (s *session) seedStatuses(ctx context.Context, force bool) error {
	if !force {
		existing, err := s.store.FetchStatuses(ctx)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return nil
		}
	}
	statuses := make([]task.Status, len(s.cfg.Statuses))
	for i, sc := range s.cfg.Statuses {
		statuses[i] = task.Status{Name: sc.Name, Color: sc.Color, Position: i}
	}
	if err := s.store.EnsureStatuses(ctx, statuses); err != nil {
		return fmt.Errorf("seeding statuses: %w", err)
	}
	return nil
}

// wait blocks until h settles and reports its error.
func (s *session) wait(ctx context.Context, h *engine.Handle) error {
	if h == nil {
		return nil
	}
	return h.Wait(ctx)
}

// lookup returns the engine's reference data.
func (s *session) lookup() *board.Lookup {
	return s.engine.Lookup()
}

// now is the clock used for due labels and overdue flags.
func (s *session) now() time.Time {
	return time.Now()
}

// resolveTask finds a cached task by id or unique id prefix.
func (s *session) resolveTask(ref string) (task.Task, error) {
	return board.ResolveID(s.engine.Tasks(), ref)
}

// resolveUsers maps user names or ids to ids, creating users named for the
// first time.
func (s *session) resolveUsers(ctx context.Context, refs []string) ([]string, error) {
	ids := make([]string, 0, len(refs))
	created := false
	for _, ref := range refs {
		id, err := board.ResolveUser(s.engine.Users(), ref)
		if err != nil {
			u, uerr := s.store.EnsureUser(ctx, ref, "")
			if uerr != nil {
				return nil, uerr
			}
			id, created = u.ID, true
		}
		ids = append(ids, id)
	}
	if created {
		// Reload so the new names resolve in output.
		if err := s.engine.Load(ctx); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// activityLog selects the activity sink configured by activity.mode.
func activityLog(cfg *config.Config, store *sqlstore.Store) board.ActivityLog {
	switch cfg.Activity.Mode {
	case config.ActivityFile:
		return board.NewFileLog(cfg.ActivityPath())
	case config.ActivityOff:
		return board.NopLog{}
	default:
		return store
	}
}

// actorName is the configured actor, or the login name of the current user.
func actorName(cfg *config.Config) string {
	if name := strings.TrimSpace(cfg.Actor); name != "" {
		return name
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "local"
}
