package leaderboard

import (
	"errors"
	"math"
)

// secondsPerDay is the decay time unit: f is the per-day retention factor.
const secondsPerDay = 86400.0

// ErrInvalidDecayFactor is returned when constructing a leaderboard with a
// decay factor outside (0,1].
var ErrInvalidDecayFactor = errors.New("leaderboard: decay factor must be in (0,1]")

// validateDecayFactor enforces f in (0,1].
func validateDecayFactor(f float64) error {
	if f <= 0 || f > 1 {
		return ErrInvalidDecayFactor
	}
	return nil
}

// decay applies exponential time-decay to score: score * f^d, where d is
// the fractional number of days elapsed since lastUpdate. If now is at or
// before lastUpdate, score is returned unchanged (decay never runs
// backwards). f=1 disables decay entirely.
func decay(score float64, lastUpdate, now int64, f float64) float64 {
	if now <= lastUpdate || f == 1 {
		return score
	}
	days := float64(now-lastUpdate) / secondsPerDay
	return score * math.Pow(f, days)
}
