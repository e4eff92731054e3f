// Package sink provides concrete durable-sink adapters matching the
// Event Stream Processor's flush-callback contract: func(batch []Event).
// The core never depends on this package; it is an example of a host
// wiring a callback.
package sink

import (
	"context"
	"fmt"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"gitlab.com/nevasik7/alerting/logger"

	"engagehub/internal/domain"
)

// ClickHouseConfig configures a ClickHouseSink.
type ClickHouseConfig struct {
	DSN          string
	Table        string
	MaxRetries   int
	RetryBackoff time.Duration
}

func (c *ClickHouseConfig) applyDefaults() {
	if c.Table == "" {
		c.Table = "engagement_events"
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 200 * time.Millisecond
	}
}

// ClickHouseSink writes flushed batches of domain.Event into a ClickHouse
// table: a DSN-parse-and-ping connect sequence plus an exponential-backoff
// retry loop around each insert, invoked directly from the Event Stream
// Processor's worker pool rather than through its own background queue.
type ClickHouseSink struct {
	conn ch.Conn
	cfg  ClickHouseConfig
	log  logger.Logger
}

// NewClickHouseSink opens and pings a ClickHouse connection.
func NewClickHouseSink(ctx context.Context, cfg ClickHouseConfig, log logger.Logger) (*ClickHouseSink, error) {
	cfg.applyDefaults()

	opts, err := ch.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sink: parse clickhouse dsn: %w", err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.Compression == nil {
		opts.Compression = &ch.Compression{Method: ch.CompressionLZ4}
	}

	conn, err := ch.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("sink: open clickhouse: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("sink: ping clickhouse: %w", err)
	}

	return &ClickHouseSink{conn: conn, cfg: cfg, log: log}, nil
}

// Flush matches stream.FlushFunc: it is installed via
// Processor.SetFlushCallback and runs on a worker-pool goroutine.
func (s *ClickHouseSink) Flush(batch []domain.Event) {
	if len(batch) == 0 {
		return
	}

	if err := s.insertWithRetry(context.Background(), batch); err != nil {
		if s.log != nil {
			s.log.Errorf("sink: failed to insert %d events into clickhouse: %v", len(batch), err)
		}
	}
}

func (s *ClickHouseSink) insertWithRetry(ctx context.Context, batch []domain.Event) error {
	backoff := s.cfg.RetryBackoff
	var lastErr error

	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if err := s.insertBatch(ctx, batch); err != nil {
			lastErr = err
			if attempt == s.cfg.MaxRetries {
				break
			}
			time.Sleep(backoff)
			backoff *= 2
			continue
		}
		return nil
	}

	return lastErr
}

func (s *ClickHouseSink) insertBatch(ctx context.Context, batch []domain.Event) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (
			event_type,
			user_id,
			channel_id,
			event_time
		)
	`, s.cfg.Table)

	b, err := s.conn.PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for i := range batch {
		ev := &batch[i]
		if err := b.Append(ev.EventType, ev.UserID, ev.ChannelID, time.Unix(ev.Timestamp, 0).UTC()); err != nil {
			_ = b.Abort()
			return fmt.Errorf("append row: %w", err)
		}
	}

	if err := b.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// Close releases the underlying ClickHouse connection.
func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}
