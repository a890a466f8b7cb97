package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Send outcomes recorded by Metrics.Sends.
const (
	SendConfirmed  = "confirmed"
	SendRolledBack = "rolled_back"
)

// Metrics are the store's counters.
type Metrics struct {
	Sends                *prometheus.CounterVec
	DuplicatesSuppressed prometheus.Counter
	Events               *prometheus.CounterVec
	Notices              *prometheus.CounterVec
	TypingExpired        prometheus.Counter
}

// newMetrics builds the counters and registers them on reg. A nil reg leaves
// them unregistered.
func newMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Sends: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatsync_optimistic_sends_total",
				Help: "Optimistic text sends by outcome",
			},
			[]string{"outcome"},
		),
		DuplicatesSuppressed: f.NewCounter(
			prometheus.CounterOpts{
				Name: "chatsync_duplicate_messages_total",
				Help: "Message inserts skipped because the id was already present",
			},
		),
		Events: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatsync_events_total",
				Help: "Push events handled by type",
			},
			[]string{"type"},
		),
		Notices: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatsync_notices_total",
				Help: "User-facing failure notices by action",
			},
			[]string{"action"},
		),
		TypingExpired: f.NewCounter(
			prometheus.CounterOpts{
				Name: "chatsync_typing_expired_total",
				Help: "Typing indicators dropped after their TTL",
			},
		),
	}
}
