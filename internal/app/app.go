package app

import (
	"context"
	"errors"
	"io"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gitlab.com/nevasik7/alerting"

	"engagehub/internal/leaderboard"
	"engagehub/internal/notify"
	"engagehub/internal/stream"
)

// App wires the Event Stream Processor and Leaderboard Engine into a single
// Start/Shutdown lifecycle, with no HTTP surface of its own: the host
// process decides how to expose the processor, the leaderboard and the
// metrics registry.
type App struct {
	alert alerting.Alerting

	processor   *stream.Processor
	leaderboard *leaderboard.Engine
	notifier    notify.Publisher
	sinkCloser  io.Closer
	redisStore  *leaderboard.RedisStore

	snapshotInterval time.Duration
	snapshotPath     string

	stopSnapshots chan struct{}
	snapshotsDone chan struct{}
}

// New builds an App. sinkCloser and redisStore may be nil when those
// backends are not configured. snapshotPath may be empty to skip the local
// JSON snapshot entirely.
func New(
	lg alerting.Alerting,
	processor *stream.Processor,
	lb *leaderboard.Engine,
	notifier notify.Publisher,
	sinkCloser io.Closer,
	redisStore *leaderboard.RedisStore,
	snapshotInterval time.Duration,
	snapshotPath string,
) *App {
	if notifier == nil {
		notifier = notify.NoopPublisher{}
	}
	return &App{
		alert:            lg,
		processor:        processor,
		leaderboard:      lb,
		notifier:         notifier,
		sinkCloser:       sinkCloser,
		redisStore:       redisStore,
		snapshotInterval: snapshotInterval,
		snapshotPath:     snapshotPath,
	}
}

func (a *App) Start() error {
	a.alert.Debug("App started begin...")

	if a.snapshotInterval > 0 && (a.redisStore != nil || a.snapshotPath != "") {
		a.stopSnapshots = make(chan struct{})
		a.snapshotsDone = make(chan struct{})
		go a.runSnapshotLoop()
	}

	a.alert.Info("App started")
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	a.alert.Debug("App stopped begin...")

	if a.stopSnapshots != nil {
		close(a.stopSnapshots)
		<-a.snapshotsDone
	}

	a.takeSnapshot(ctx)

	a.processor.Shutdown()

	if err := a.notifier.Close(); err != nil {
		a.alert.Errorf("Failed to close notifier: %v", err)
	}

	if a.sinkCloser != nil {
		if err := a.sinkCloser.Close(); err != nil {
			a.alert.Errorf("Failed to close sink: %v", err)
		}
	}

	a.alert.Info("App stopped")
	return nil
}

func (a *App) runSnapshotLoop() {
	defer close(a.snapshotsDone)

	ticker := time.NewTicker(a.snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopSnapshots:
			return
		case <-ticker.C:
			a.takeSnapshot(context.Background())
		}
	}
}

func (a *App) takeSnapshot(ctx context.Context) {
	if a.redisStore != nil {
		if err := a.redisStore.Save(ctx, a.leaderboard); err != nil {
			a.alert.Errorf("Failed to save leaderboard snapshot to redis: %v", err)
		}
	}

	if a.snapshotPath != "" {
		if err := a.leaderboard.SaveToJSON(a.snapshotPath); err != nil {
			a.alert.Errorf("Failed to save leaderboard snapshot to %s: %v", a.snapshotPath, err)
		}
	}
}

// restoreOnBoot warms the leaderboard from whichever snapshot source is
// configured, before App.Start runs. Redis is tried first since it reflects
// the most recent cross-restart state; the local file is tried when no
// Redis store is configured or when Redis yields no snapshot.
func restoreOnBoot(ctx context.Context, lb *leaderboard.Engine, redisStore *leaderboard.RedisStore, snapshotPath string, lg alerting.Alerting) {
	if redisStore != nil {
		if err := redisStore.Restore(ctx, lb); err != nil {
			if errors.Is(err, goredis.Nil) {
				lg.Info("No leaderboard snapshot found in redis, starting empty")
			} else {
				lg.Errorf("Failed to restore leaderboard snapshot from redis: %v", err)
			}
		} else {
			lg.Info("Successfully restored leaderboard snapshot from redis")
			return
		}
	}

	if snapshotPath != "" {
		if err := lb.LoadFromJSON(snapshotPath); err != nil {
			lg.Errorf("Failed to restore leaderboard snapshot from %s: %v", snapshotPath, err)
		} else {
			lg.Info("Successfully restored leaderboard snapshot from local file")
		}
	}
}
