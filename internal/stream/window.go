package stream

import (
	"sort"

	"engagehub/internal/sketch/cardinality"
)

// bucketSeconds is the width of one Hourly Window Ring slot.
const bucketSeconds = 60

// windowSeconds is how far back the ring retains buckets.
const windowSeconds = 3600

// minuteBucket is one (bucket_start_seconds, CardinalitySketch) pair.
type minuteBucket struct {
	bucketStart int64
	sketch      *cardinality.Sketch
}

// hourlyWindowRing is an ordered deque of per-minute cardinality sketches
// spanning the last hour, kept as a plain sorted slice rather than a
// fixed-size modular array, since bucket_start values here are wall-clock
// seconds rather than a bounded minute-of-day index.
type hourlyWindowRing struct {
	precision uint8
	buckets   []minuteBucket
}

func newHourlyWindowRing(precision uint8) *hourlyWindowRing {
	return &hourlyWindowRing{precision: precision}
}

// bucketStartFor floors ts to the start of its minute bucket.
func bucketStartFor(ts int64) int64 {
	return ts - (ts % bucketSeconds)
}

// evict drops every bucket older than now-windowSeconds. Caller must hold
// whatever lock guards the ring.
func (r *hourlyWindowRing) evict(now int64) {
	cutoff := now - windowSeconds
	i := 0
	for i < len(r.buckets) && r.buckets[i].bucketStart < cutoff {
		i++
	}
	if i > 0 {
		r.buckets = r.buckets[i:]
	}
}

// add records userID as present in ts's minute bucket, creating the bucket
// if needed and keeping buckets sorted ascending by bucket_start.
func (r *hourlyWindowRing) add(userID string, ts int64) {
	start := bucketStartFor(ts)

	if n := len(r.buckets); n > 0 && r.buckets[n-1].bucketStart == start {
		r.buckets[n-1].sketch.Add(userID)
		return
	}

	idx := sort.Search(len(r.buckets), func(i int) bool {
		return r.buckets[i].bucketStart >= start
	})

	if idx < len(r.buckets) && r.buckets[idx].bucketStart == start {
		r.buckets[idx].sketch.Add(userID)
		return
	}

	sk, err := cardinality.New(r.precision)
	if err != nil {
		// precision was already validated at construction time.
		panic(err)
	}
	sk.Add(userID)

	bucket := minuteBucket{bucketStart: start, sketch: sk}
	r.buckets = append(r.buckets, minuteBucket{})
	copy(r.buckets[idx+1:], r.buckets[idx:])
	r.buckets[idx] = bucket
}

// uniqueUsers evicts stale buckets relative to now, then merges the
// survivors and returns the estimated distinct-user cardinality over the
// last hour.
func (r *hourlyWindowRing) uniqueUsers(now int64) (uint64, error) {
	r.evict(now)

	merged, err := cardinality.New(r.precision)
	if err != nil {
		return 0, err
	}
	for _, b := range r.buckets {
		if err := merged.Merge(b.sketch); err != nil {
			return 0, err
		}
	}
	return merged.Estimate(), nil
}

// bucketCount reports how many live buckets remain, for diagnostics/tests.
func (r *hourlyWindowRing) bucketCount() int {
	return len(r.buckets)
}
