// Package leaderboard implements the Leaderboard Engine: an in-memory,
// mutex-guarded ordered structure over (decayed score, user id) supporting
// upsert, top-k, rank lookup, exponential time-decay, and crash-recoverable
// snapshotting.
package leaderboard

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// DefaultMaxLevel and DefaultProbability are typical skip-list tuning
// values (L_max up to 32, p=0.5).
const (
	DefaultMaxLevel    = 32
	DefaultProbability = 0.5
)

// ErrUserNotFound is returned by GetUserRank for an absent user id.
var ErrUserNotFound = errors.New("leaderboard: user not found")

// Config configures the Leaderboard Engine at construction.
type Config struct {
	// DecayFactor is the per-day multiplicative score retention, in (0,1].
	DecayFactor float64
	// MaxUsers bounds the number of resident entries; 0 means unbounded.
	MaxUsers int
}

// RankEntry is a ranked leaderboard row returned by queries.
type RankEntry struct {
	UserID     string
	Score      float64
	Rank       int
	LastUpdate int64
}

// Clock returns the current time as integer seconds since epoch. The
// default is the system wall clock; tests inject a fixed or steppable one.
type Clock func() int64

// SystemClock is the default Clock.
func SystemClock() int64 { return time.Now().Unix() }

// Engine is the Leaderboard Engine. All operations are serialized behind a
// single coarse-grained mutex — operations are microsecond-scale so
// contention is expected to be negligible.
type Engine struct {
	mu          sync.Mutex
	sl          *skipList
	decayFactor float64
	maxUsers    int
	clock       Clock
}

// New builds a Leaderboard Engine. Returns an error if DecayFactor is
// outside (0,1].
func New(cfg Config) (*Engine, error) {
	if err := validateDecayFactor(cfg.DecayFactor); err != nil {
		return nil, err
	}
	if cfg.MaxUsers < 0 {
		cfg.MaxUsers = 0
	}

	return &Engine{
		sl:          newSkipList(DefaultMaxLevel, DefaultProbability),
		decayFactor: cfg.DecayFactor,
		maxUsers:    cfg.MaxUsers,
		clock:       SystemClock,
	}, nil
}

// SetClock overrides the engine's time source, for deterministic tests or
// host-driven clocks.
func (e *Engine) SetClock(clock Clock) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if clock != nil {
		e.clock = clock
	}
}

// now returns the engine's current time, caller must hold e.mu.
func (e *Engine) now() int64 {
	return e.clock()
}

// UpdateUser applies points to userID's score, decaying any existing score
// up to ts first. If points is zero and the user is not already present,
// this is a no-op. Negative points are permitted and may drive the score
// negative.
func (e *Engine) UpdateUser(userID string, points float64, ts int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	existing, exists := e.sl.find(userID)
	if points == 0 && !exists {
		return
	}

	var newScore float64
	if exists {
		newScore = decay(existing.score, existing.lastUpdate, ts, e.decayFactor) + points
	} else {
		newScore = points
	}

	e.sl.upsert(userID, newScore, ts)
	e.evictIfOverCapacity(userID)
}

// evictIfOverCapacity enforces MaxUsers after an insert, never evicting
// justInsertedUserID itself. Caller must hold e.mu.
func (e *Engine) evictIfOverCapacity(justInsertedUserID string) {
	if e.maxUsers <= 0 || e.sl.size() <= e.maxUsers {
		return
	}

	tail := e.sl.tail()
	if tail == nil {
		return
	}

	if tail.userID != justInsertedUserID {
		e.sl.erase(tail.userID)
		return
	}

	// The newly written user is itself the worst-ranked entry. It is
	// never evicted; evict the next-worst entry instead so the cap
	// still holds.
	if second := e.secondToLastLocked(); second != nil {
		e.sl.erase(second.userID)
	}
}

// secondToLastLocked returns the node immediately before the tail at
// level 0, or nil if there are fewer than two entries. Caller must hold
// e.mu.
func (e *Engine) secondToLastLocked() *skipNode {
	x := e.sl.header.forward[0]
	if x == nil || x.forward[0] == nil {
		return nil
	}
	for x.forward[0].forward[0] != nil {
		x = x.forward[0]
	}
	return x
}

// refreshAllLocked rewrites every entry's score to its decayed value as of
// now, preserving the ordering invariant. Entries whose decayed value
// equals their stored value are left untouched. Caller must hold e.mu.
func (e *Engine) refreshAllLocked(now int64) {
	type pending struct {
		userID string
		score  float64
	}

	var stale []pending
	e.sl.forEach(func(n *skipNode) {
		d := decay(n.score, n.lastUpdate, now, e.decayFactor)
		if d != n.score {
			stale = append(stale, pending{userID: n.userID, score: d})
		}
	})

	for _, p := range stale {
		e.sl.erase(p.userID)
		e.sl.upsert(p.userID, p.score, now)
	}
}

// GetTopUsers refreshes every entry to its decayed score, then returns the
// first min(k, size) entries with 1-based ranks.
func (e *Engine) GetTopUsers(k int) []RankEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.refreshAllLocked(e.now())

	nodes := e.sl.topK(k)
	out := make([]RankEntry, len(nodes))
	for i, n := range nodes {
		out[i] = RankEntry{
			UserID:     n.userID,
			Score:      n.score,
			Rank:       i + 1,
			LastUpdate: n.lastUpdate,
		}
	}
	return out
}

// GetUserRank refreshes every entry to its decayed score, then returns
// userID's rank entry, or ErrUserNotFound if absent.
func (e *Engine) GetUserRank(userID string) (RankEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.refreshAllLocked(e.now())

	node, ok := e.sl.find(userID)
	if !ok {
		return RankEntry{}, ErrUserNotFound
	}

	return RankEntry{
		UserID:     node.userID,
		Score:      node.score,
		Rank:       e.sl.rankOf(userID),
		LastUpdate: node.lastUpdate,
	}, nil
}

// Size returns the number of resident users.
func (e *Engine) Size() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sl.size()
}

// DecayFactor returns the engine's configured decay factor.
func (e *Engine) DecayFactor() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.decayFactor
}

// MaxUsers returns the engine's configured capacity (0 = unbounded).
func (e *Engine) MaxUsers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxUsers
}

// SaveToJSON writes the engine's entire user set, decay factor, and
// max-users setting to path as a text document. Raw, un-decayed (score,
// last_update) pairs are persisted directly — a snapshot does not apply
// decay, it just serialises current state.
func (e *Engine) SaveToJSON(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc := snapshotDocument{
		DecayFactor: e.decayFactor,
		MaxUsers:    e.maxUsers,
	}

	e.sl.forEach(func(n *skipNode) {
		doc.Entries = append(doc.Entries, snapshotEntry{
			UserID:     n.userID,
			Score:      n.score,
			LastUpdate: n.lastUpdate,
		})
	})

	if err := os.WriteFile(path, marshalSnapshot(doc), 0o644); err != nil {
		return fmt.Errorf("leaderboard: save to %s: %w", path, err)
	}
	return nil
}

// LoadFromJSON replaces the engine's user set, decay factor, and max-users
// setting with the contents of path. The document is fully parsed and
// validated before any engine state is touched, so a malformed document
// leaves the engine exactly as it was.
func (e *Engine) LoadFromJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("leaderboard: load from %s: %w", path, err)
	}

	doc, err := unmarshalSnapshot(data)
	if err != nil {
		return fmt.Errorf("leaderboard: load from %s: %w", path, err)
	}

	if err := validateDecayFactor(doc.DecayFactor); err != nil {
		return fmt.Errorf("leaderboard: load from %s: %w", path, err)
	}
	if doc.MaxUsers < 0 {
		return fmt.Errorf("leaderboard: load from %s: max_users must be non-negative", path)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.sl = newSkipList(DefaultMaxLevel, DefaultProbability)
	e.decayFactor = doc.DecayFactor
	e.maxUsers = doc.MaxUsers
	for _, entry := range doc.Entries {
		e.sl.upsert(entry.UserID, entry.Score, entry.LastUpdate)
	}

	return nil
}
