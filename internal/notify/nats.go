package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"gitlab.com/nevasik7/alerting/logger"
)

// NATSPublisher publishes BatchFlushedNotice/RankChangedNotice messages to
// NATS subjects.
type NATSPublisher struct {
	nc            *nats.Conn
	log           logger.Logger
	subjectPrefix string
}

// Config configures a NATSPublisher.
type Config struct {
	URL           string
	SubjectPrefix string
}

// Connect dials a NATS server and returns a ready-to-use publisher.
func Connect(cfg Config, log logger.Logger) (*NATSPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("notify: nats url is required")
	}

	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "engagehub"
	}

	opts := []nats.Option{
		nats.Name("engagehub"),
		nats.Timeout(5 * time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: connect to nats: %w", err)
	}

	return &NATSPublisher{nc: nc, log: log, subjectPrefix: prefix}, nil
}

func (p *NATSPublisher) batchFlushedSubject() string {
	return p.subjectPrefix + ".batch.flushed"
}

func (p *NATSPublisher) rankChangedSubject() string {
	return p.subjectPrefix + ".leaderboard.rank_changed"
}

// PublishBatchFlushed fires a best-effort notice after a batch reaches the
// durable sink. A failed publish is logged as a warning and also returned
// to the caller; a marshal failure is returned without logging.
func (p *NATSPublisher) PublishBatchFlushed(ctx context.Context, notice BatchFlushedNotice) error {
	return p.publish(ctx, p.batchFlushedSubject(), notice)
}

// PublishRankChanged fires a best-effort notice when a user's leaderboard
// rank changes.
func (p *NATSPublisher) PublishRankChanged(ctx context.Context, notice RankChangedNotice) error {
	return p.publish(ctx, p.rankChangedSubject(), notice)
}

func (p *NATSPublisher) publish(ctx context.Context, subject string, payload interface{}) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal payload for %s: %w", subject, err)
	}

	if err := p.nc.Publish(subject, data); err != nil {
		if p.log != nil {
			p.log.Warnf("notify: publish to %s failed: %v", subject, err)
		}
		return fmt.Errorf("notify: publish to %s: %w", subject, err)
	}
	return nil
}

// Health reports whether the underlying connection is currently connected.
func (p *NATSPublisher) Health(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if p.nc == nil || p.nc.Status() != nats.CONNECTED {
		return fmt.Errorf("notify: nats not connected (status=%v)", p.statusOrUnknown())
	}
	return nil
}

func (p *NATSPublisher) statusOrUnknown() nats.Status {
	if p.nc == nil {
		return nats.DISCONNECTED
	}
	return p.nc.Status()
}

// Close drains and closes the underlying connection.
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if p.nc.Status() == nats.CLOSED {
		return nil
	}

	if err := p.nc.Drain(); err != nil {
		if p.log != nil {
			p.log.Errorf("notify: drain nats connection: %v", err)
		}
		p.nc.Close()
		return fmt.Errorf("notify: drain nats connection: %w", err)
	}

	p.nc.Close()
	if p.log != nil {
		p.log.Infof("notify: nats connection closed gracefully")
	}
	return nil
}
