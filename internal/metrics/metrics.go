// Package metrics exposes a Prometheus registry describing the Event
// Stream Processor and Leaderboard Engine's live state. This module never
// starts an HTTP server or registers promhttp handlers itself — HTTP
// surfaces belong to the external host. Callers mount the returned
// *prometheus.Registry wherever they like.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"engagehub/internal/leaderboard"
	"engagehub/internal/stream"
)

// Collector is a pull-based prometheus.Collector: it reads the live
// processor/leaderboard state on every scrape rather than mirroring it
// into separately-maintained counters, avoiding a second source of truth.
type Collector struct {
	processor   *stream.Processor
	leaderboard *leaderboard.Engine

	totalProcessed  *prometheus.Desc
	eventsDropped   *prometheus.Desc
	uniqueUsers     *prometheus.Desc
	leaderboardSize *prometheus.Desc
}

// NewCollector builds a Collector over an Event Stream Processor and a
// Leaderboard Engine. Either may be nil if that component isn't wired in
// this process; its metrics are simply omitted from the scrape.
func NewCollector(namespace string, processor *stream.Processor, lb *leaderboard.Engine) *Collector {
	return &Collector{
		processor:   processor,
		leaderboard: lb,
		totalProcessed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "stream", "events_processed_total"),
			"Total events fully processed by the stream consumer.",
			nil, nil,
		),
		eventsDropped: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "stream", "events_dropped_total"),
			"Total events rejected because the bounded queue was full.",
			nil, nil,
		),
		uniqueUsers: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "stream", "unique_users_last_hour"),
			"Estimated distinct user_id count over the last 3600 seconds.",
			nil, nil,
		),
		leaderboardSize: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "leaderboard", "size"),
			"Number of users currently resident in the leaderboard.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalProcessed
	ch <- c.eventsDropped
	ch <- c.uniqueUsers
	ch <- c.leaderboardSize
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.processor != nil {
		ch <- prometheus.MustNewConstMetric(c.totalProcessed, prometheus.CounterValue, float64(c.processor.TotalEventsProcessed()))
		ch <- prometheus.MustNewConstMetric(c.eventsDropped, prometheus.CounterValue, float64(c.processor.EventsDropped()))
		if unique, err := c.processor.GetUniqueUsersLastHour(); err == nil {
			ch <- prometheus.MustNewConstMetric(c.uniqueUsers, prometheus.GaugeValue, float64(unique))
		}
	}

	if c.leaderboard != nil {
		ch <- prometheus.MustNewConstMetric(c.leaderboardSize, prometheus.GaugeValue, float64(c.leaderboard.Size()))
	}
}

// NewRegistry builds a registry carrying a single Collector over
// processor and lb.
func NewRegistry(namespace string, processor *stream.Processor, lb *leaderboard.Engine) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(namespace, processor, lb))
	return reg
}
