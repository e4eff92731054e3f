package leaderboard

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"gitlab.com/nevasik7/alerting/logger"
)

// redisSnapshot is the gob-encoded wire shape stored in Redis, grounded on
// the warm-start snapshot pattern used elsewhere for window state: a
// version tag plus the same fields the text codec carries.
type redisSnapshot struct {
	Version     int
	DecayFactor float64
	MaxUsers    int
	Entries     []snapshotEntry
}

const redisSnapshotVersion = 1

// RedisStore mirrors the leaderboard's full state to a single Redis key as
// a gob blob, for millisecond warm-start after a process restart — the
// same "warm start" role as Window.Snapshot/Restore, but fronting an
// Engine instead of a windowed aggregate.
type RedisStore struct {
	client *goredis.Client
	key    string
	log    logger.Logger
}

// NewRedisStore builds a RedisStore using an existing client.
func NewRedisStore(client *goredis.Client, key string, log logger.Logger) *RedisStore {
	return &RedisStore{client: client, key: key, log: log}
}

// Save serialises the engine's full state to the configured Redis key.
func (r *RedisStore) Save(ctx context.Context, e *Engine) error {
	e.mu.Lock()
	snap := redisSnapshot{
		Version:     redisSnapshotVersion,
		DecayFactor: e.decayFactor,
		MaxUsers:    e.maxUsers,
	}
	e.sl.forEach(func(n *skipNode) {
		snap.Entries = append(snap.Entries, snapshotEntry{
			UserID:     n.userID,
			Score:      n.score,
			LastUpdate: n.lastUpdate,
		})
	})
	e.mu.Unlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return fmt.Errorf("leaderboard: redis snapshot encode: %w", err)
	}

	if err := r.client.Set(ctx, r.key, buf.Bytes(), 0).Err(); err != nil {
		return fmt.Errorf("leaderboard: redis snapshot save: %w", err)
	}

	if r.log != nil {
		r.log.Infof("leaderboard: saved redis snapshot: %d users, %d bytes", len(snap.Entries), buf.Len())
	}
	return nil
}

// Restore replaces e's state with whatever is stored at the configured
// Redis key. A missing key is returned unwrapped as goredis.Nil, leaving e
// untouched, so the caller can tell "no snapshot yet" on first boot apart
// from a real failure.
func (r *RedisStore) Restore(ctx context.Context, e *Engine) error {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return err
		}
		return fmt.Errorf("leaderboard: redis snapshot fetch: %w", err)
	}

	var snap redisSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return fmt.Errorf("leaderboard: redis snapshot decode: %w", err)
	}
	if snap.Version != redisSnapshotVersion {
		return fmt.Errorf("leaderboard: unsupported redis snapshot version %d", snap.Version)
	}
	if err := validateDecayFactor(snap.DecayFactor); err != nil {
		return fmt.Errorf("leaderboard: redis snapshot: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.sl = newSkipList(DefaultMaxLevel, DefaultProbability)
	e.decayFactor = snap.DecayFactor
	e.maxUsers = snap.MaxUsers
	for _, entry := range snap.Entries {
		e.sl.upsert(entry.UserID, entry.Score, entry.LastUpdate)
	}

	if r.log != nil {
		r.log.Infof("leaderboard: restored redis snapshot: %d users", len(snap.Entries))
	}
	return nil
}
