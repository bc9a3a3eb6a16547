// Package metrics defines the Prometheus collectors shared by the
// orchestration core. Collectors are registered once on the default
// registry and exposed by the HTTP surface at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActionsProcessed counts reducer transitions by action kind.
	ActionsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "basketd",
		Name:      "actions_processed_total",
		Help:      "Reducer transitions processed, by action kind.",
	}, []string{"kind"})

	// StreamEvents counts inbound channel events by channel name.
	StreamEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "basketd",
		Name:      "stream_events_total",
		Help:      "Inbound realtime events, by channel.",
	}, []string{"channel"})

	// StreamReconnects counts scheduled reconnects by channel name.
	StreamReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "basketd",
		Name:      "stream_reconnects_total",
		Help:      "Reconnect attempts scheduled after abnormal closure, by channel.",
	}, []string{"channel"})

	// JournalAppendFailures counts journal writes that were logged and
	// skipped. The dispatch loop never retries them.
	JournalAppendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "basketd",
		Name:      "journal_append_failures_total",
		Help:      "Journal appends that failed and were skipped.",
	})
)
