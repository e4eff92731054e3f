// Package stream implements the Event Stream Processor: a bounded queue
// feeding a single consumer that maintains approximate frequency and
// cardinality statistics and batches events out to a durable-sink
// callback via a worker pool.
package stream

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"engagehub/internal/domain"
	"engagehub/internal/sketch/cardinality"
	"engagehub/internal/sketch/frequency"
	"engagehub/internal/workerpool"

	"gitlab.com/nevasik7/alerting/logger"
)

// pollInterval bounds how long the consumer waits on an empty queue before
// re-checking for shutdown or a forced flush.
const pollInterval = 5 * time.Millisecond

// ErrInvalidConfig is returned by New when a required configuration field
// is out of range.
var ErrInvalidConfig = errors.New("stream: invalid processor configuration")

// ChannelCount is one entry of GetTopChannels' result: an exact running
// total of events seen for a channel.
type ChannelCount struct {
	ChannelID string
	Count     uint64
}

// FlushFunc is the durable-sink callback invoked with each dispatched
// batch. It is free to block; it runs on a worker-pool goroutine. A panic
// inside it is recovered by the worker pool and otherwise discarded — the
// sink owns retry/durability for events it has already received.
type FlushFunc func(batch []domain.Event)

// Config configures the Event Stream Processor at construction.
type Config struct {
	// BufferSize is the bounded queue's capacity, rounded up to a power
	// of two.
	BufferSize int
	// NumThreads sizes the worker pool; 0 means "hardware concurrency".
	NumThreads int
	// BatchSize is the pending-batch size threshold that triggers a
	// dispatch.
	BatchSize int
	// FlushIntervalMs is the elapsed-time threshold that triggers a
	// dispatch even below BatchSize.
	FlushIntervalMs int
	// FrequencyDepth/FrequencyWidth size the Count-Min Sketch.
	FrequencyDepth uint32
	FrequencyWidth uint32
	// CardinalityPrecision sizes each per-minute HyperLogLog bucket.
	CardinalityPrecision uint8
}

func (c Config) validate() error {
	if c.BufferSize <= 0 || c.BatchSize <= 0 || c.FlushIntervalMs <= 0 || c.NumThreads < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Processor is the Event Stream Processor.
type Processor struct {
	cfg Config

	queue *boundedEventQueue
	pool  *workerpool.Pool

	statsMu       sync.Mutex
	freq          *frequency.Sketch
	channelCounts map[string]uint64
	ring          *hourlyWindowRing

	batchMu     sync.Mutex
	pending     []domain.Event
	lastFlushAt time.Time

	callbackMu sync.Mutex
	callback   FlushFunc

	totalProcessed atomic.Uint64
	dropped        atomic.Uint64
	pendingFlushes atomic.Int64

	running  atomic.Bool
	wake     chan struct{}
	shutdown chan struct{}
	done     chan struct{}

	forceFlush atomic.Bool

	clock func() int64
	log   logger.Logger
}

// New builds and starts an Event Stream Processor: its consumer thread and
// worker pool are both running when New returns.
func New(cfg Config, log logger.Logger) (*Processor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	freq, err := frequency.New(cfg.FrequencyDepth, cfg.FrequencyWidth)
	if err != nil {
		return nil, err
	}

	if cfg.CardinalityPrecision == 0 {
		cfg.CardinalityPrecision = 14
	}
	if _, err := cardinality.New(cfg.CardinalityPrecision); err != nil {
		return nil, err
	}

	numThreads := cfg.NumThreads
	if numThreads == 0 {
		numThreads = runtime.NumCPU()
	}

	p := &Processor{
		cfg:           cfg,
		queue:         newBoundedEventQueue(cfg.BufferSize),
		pool:          workerpool.New(numThreads, cfg.BatchSize*4),
		freq:          freq,
		channelCounts: make(map[string]uint64),
		ring:          newHourlyWindowRing(cfg.CardinalityPrecision),
		wake:          make(chan struct{}, 1),
		shutdown:      make(chan struct{}),
		done:          make(chan struct{}),
		clock:         func() int64 { return time.Now().Unix() },
		log:           log,
	}
	p.running.Store(true)
	p.lastFlushAt = time.Now()

	go p.consume()

	return p, nil
}

// PushEvent enqueues an event for asynchronous processing. It never
// blocks: on queue-full it returns false and increments EventsDropped.
// A non-positive Timestamp is left as-is; it is resolved to wall-clock
// time by the consumer at the moment it is processed.
func (p *Processor) PushEvent(eventType, userID, channelID string, ts int64) bool {
	ok := p.queue.push(domain.Event{
		EventType: eventType,
		UserID:    userID,
		ChannelID: channelID,
		Timestamp: ts,
	})
	if !ok {
		p.dropped.Add(1)
		return false
	}

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return true
}

// SetFlushCallback installs or clears (pass nil) the durable-sink
// callback. Safe to call concurrently with PushEvent.
func (p *Processor) SetFlushCallback(cb FlushFunc) {
	p.callbackMu.Lock()
	p.callback = cb
	p.callbackMu.Unlock()
}

// GetUniqueUsersLastHour returns the estimated distinct user_id count over
// the last 3600 wall-clock seconds.
func (p *Processor) GetUniqueUsersLastHour() (uint64, error) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.ring.uniqueUsers(p.clock())
}

// GetTopChannels returns up to k (channel_id, count) pairs in descending
// exact-count order, ties broken by channel id ascending for determinism.
func (p *Processor) GetTopChannels(k int) []ChannelCount {
	p.statsMu.Lock()
	counts := make([]ChannelCount, 0, len(p.channelCounts))
	for ch, n := range p.channelCounts {
		counts = append(counts, ChannelCount{ChannelID: ch, Count: n})
	}
	p.statsMu.Unlock()

	sortChannelCounts(counts)
	if k < len(counts) {
		counts = counts[:k]
	}
	return counts
}

// TotalEventsProcessed is a monotone counter of events the consumer has
// fully processed (sketch-updated and batched).
func (p *Processor) TotalEventsProcessed() uint64 {
	return p.totalProcessed.Load()
}

// EventsDropped is a monotone counter of PushEvent calls rejected because
// the queue was full.
func (p *Processor) EventsDropped() uint64 {
	return p.dropped.Load()
}

// FlushNow blocks until the queue is drained, the pending batch (if any)
// has been handed to the worker pool, and every in-flight flush task has
// completed.
func (p *Processor) FlushNow() {
	p.forceFlush.Store(true)
	select {
	case p.wake <- struct{}{}:
	default:
	}

	for {
		if p.queue.empty() && p.pendingBatchEmpty() && p.pendingFlushes.Load() == 0 {
			return
		}
		// The consumer clears the request when it dispatches, which can
		// happen before the queue is drained; keep asking until done.
		p.forceFlush.Store(true)
		select {
		case p.wake <- struct{}{}:
		default:
		}
		time.Sleep(time.Millisecond)
	}
}

func (p *Processor) pendingBatchEmpty() bool {
	p.batchMu.Lock()
	defer p.batchMu.Unlock()
	return len(p.pending) == 0
}

// Shutdown stops the consumer, drains any residual events straight into
// the sink callback, and shuts down the worker pool. It blocks until
// everything has stopped.
func (p *Processor) Shutdown() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}

	close(p.shutdown)
	<-p.done

	for {
		ev, ok := p.queue.pop()
		if !ok {
			break
		}
		p.processEvent(ev)
	}
	p.dispatchPendingLocked(p.takePending())

	p.pool.Shutdown()
}

// consume is the single dedicated consumer goroutine: drain, process,
// append to the pending batch, maybe dispatch, wait.
func (p *Processor) consume() {
	defer close(p.done)

	for {
		select {
		case <-p.shutdown:
			return
		default:
		}

		ev, ok := p.queue.pop()
		if ok {
			p.processEvent(ev)
			p.maybeDispatch()
			continue
		}

		p.maybeDispatch()

		select {
		case <-p.shutdown:
			return
		case <-p.wake:
		case <-time.After(pollInterval):
		}
	}
}

// processEvent resolves a non-positive timestamp to wall clock time,
// updates the exact channel counter, the frequency sketch, and the hourly
// cardinality ring, then appends the event to the pending batch.
func (p *Processor) processEvent(ev domain.Event) {
	if ev.Timestamp <= 0 {
		ev.Timestamp = p.clock()
	}

	p.statsMu.Lock()
	p.channelCounts[ev.ChannelID]++
	p.freq.Increment(ev.ChannelID, 1)
	p.ring.add(ev.UserID, ev.Timestamp)
	p.ring.evict(p.clock())
	p.statsMu.Unlock()

	p.batchMu.Lock()
	p.pending = append(p.pending, ev)
	p.batchMu.Unlock()

	p.totalProcessed.Add(1)
}

// maybeDispatch swaps the pending batch out and hands it to the worker
// pool if the size threshold, the flush-interval threshold, or a forced
// flush request is satisfied.
func (p *Processor) maybeDispatch() {
	forced := p.forceFlush.Load()

	p.batchMu.Lock()
	elapsed := time.Since(p.lastFlushAt) >= time.Duration(p.cfg.FlushIntervalMs)*time.Millisecond
	ready := len(p.pending) >= p.cfg.BatchSize || (elapsed && len(p.pending) > 0) || (forced && len(p.pending) > 0)
	var batch []domain.Event
	if ready {
		batch = p.pending
		p.pending = nil
		p.lastFlushAt = time.Now()
	}
	p.batchMu.Unlock()

	if forced {
		p.forceFlush.Store(false)
	}

	if batch != nil {
		p.dispatchPendingLocked(batch)
	}
}

func (p *Processor) takePending() []domain.Event {
	p.batchMu.Lock()
	defer p.batchMu.Unlock()
	batch := p.pending
	p.pending = nil
	return batch
}

// dispatchPendingLocked hands batch to the worker pool, or holds onto it
// if no callback is installed.
func (p *Processor) dispatchPendingLocked(batch []domain.Event) {
	if len(batch) == 0 {
		return
	}

	p.callbackMu.Lock()
	cb := p.callback
	p.callbackMu.Unlock()

	if cb == nil {
		// No sink installed: retain the batch so it is not lost.
		p.batchMu.Lock()
		p.pending = append(batch, p.pending...)
		p.batchMu.Unlock()
		return
	}

	p.pendingFlushes.Add(1)
	err := p.pool.Enqueue(func() {
		defer func() {
			p.pendingFlushes.Add(-1)
		}()
		cb(batch)
	})
	if err != nil {
		// Pool already shut down; run synchronously so the batch is not
		// silently lost during shutdown drain.
		if p.log != nil {
			p.log.Warnf("stream: worker pool closed, running flush of %d events inline: %v", len(batch), err)
		}
		p.pendingFlushes.Add(-1)
		cb(batch)
	}
}

// sortChannelCounts orders counts by descending Count, ties broken by
// ascending ChannelID for determinism.
func sortChannelCounts(counts []ChannelCount) {
	for i := 1; i < len(counts); i++ {
		for j := i; j > 0; j-- {
			a, b := counts[j-1], counts[j]
			if a.Count > b.Count || (a.Count == b.Count && a.ChannelID <= b.ChannelID) {
				break
			}
			counts[j-1], counts[j] = counts[j], counts[j-1]
		}
	}
}
