package daemon

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/caresync/caresync/internal/bus"
	"github.com/caresync/caresync/internal/config"
	"github.com/caresync/caresync/internal/conversation"
	"github.com/caresync/caresync/internal/docstore"
	"github.com/caresync/caresync/internal/lock"
	"github.com/caresync/caresync/internal/logging"
	"github.com/caresync/caresync/internal/notify"
	"github.com/caresync/caresync/internal/presence"
	"github.com/caresync/caresync/internal/readtrack"
	"github.com/caresync/caresync/internal/session"
	"github.com/caresync/caresync/internal/status"
	"github.com/caresync/caresync/internal/store"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile string
}

// Module returns the fx module for the daemon, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideConfig,
			provideSession,
			provideStore,
			provideDocstore,
			providePresence,
			provideReadTracker,
			provideScheduler,
			provideNotifier,
			provideWatcher,
			provideManager,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.Profile), p.Profile)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(session.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideConfig() (*config.Config, error) {
	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.UserID == "" {
		return nil, fmt.Errorf("config: user_id is required")
	}
	if cfg.MongoURI == "" {
		return nil, fmt.Errorf("config: mongo_uri is required")
	}
	return cfg, nil
}

func provideSession(p Params, cfg *config.Config) (*session.Session, error) {
	return session.New(p.Profile, cfg.UserID)
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.LocalDBPath(p.Profile)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("local store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideDocstore(cfg *config.Config, machine *status.Machine, logger *zap.Logger) (*docstore.Mongo, error) {
	_ = machine.Transition(status.Connecting)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	m, err := docstore.Connect(ctx, cfg.MongoURI, cfg.Database, logger)
	if err != nil {
		_ = machine.Transition(status.Error)
		return nil, err
	}
	return m, nil
}

func providePresence(m *docstore.Mongo, b *bus.Bus, logger *zap.Logger) *presence.Tracker {
	return presence.NewTracker(m, b, logger)
}

func provideReadTracker(m *docstore.Mongo, db *store.DB, b *bus.Bus, logger *zap.Logger) *readtrack.Tracker {
	return readtrack.NewTracker(m, db, b, logger)
}

func provideScheduler(logger *zap.Logger) notify.Scheduler {
	return notify.NewLogScheduler(logger)
}

func provideNotifier(sched notify.Scheduler, db *store.DB, b *bus.Bus, logger *zap.Logger) *notify.Notifier {
	return notify.NewNotifier(sched, db, b, logger)
}

func provideWatcher(m *docstore.Mongo, notifier *notify.Notifier, db *store.DB, sess *session.Session, logger *zap.Logger) *notify.Watcher {
	return notify.NewWatcher(m, notifier, db, sess, logger)
}

func provideManager(m *docstore.Mongo, typing *presence.Tracker, reads *readtrack.Tracker, notifier *notify.Notifier, sess *session.Session, b *bus.Bus, logger *zap.Logger) *conversation.Manager {
	return conversation.NewManager(m, typing, reads, notifier, sess, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, m *docstore.Mongo, tracker *presence.Tracker, watcher *notify.Watcher, manager *conversation.Manager, sess *session.Session, machine *status.Machine, db *store.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := machine.Transition(status.Live); err != nil {
				return err
			}
			if err := tracker.SetOnline(ctx, sess.UserID, true); err != nil {
				logger.Warn("presence publish failed", zap.Error(err))
			}
			if err := watcher.Start(context.Background()); err != nil {
				return err
			}
			logger.Info("daemon live",
				zap.String("profile", sess.Profile),
				zap.String("user_id", sess.UserID))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			watcher.Stop()
			manager.CloseAll()
			if err := tracker.SetOnline(ctx, sess.UserID, false); err != nil {
				logger.Warn("presence clear failed", zap.Error(err))
			}
			tracker.Close()
			if err := m.Close(ctx); err != nil {
				logger.Warn("store link close failed", zap.Error(err))
			}
			if err := db.Close(); err != nil {
				logger.Warn("local store close failed", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
