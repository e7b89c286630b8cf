package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "livequiz"

var (
	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_processed_total",
		Help:      "Client messages handled by the engine, by message type and outcome.",
	}, []string{"type", "outcome"})

	VotesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "votes_recorded_total",
		Help:      "Votes recorded, by correctness.",
	}, []string{"correct"})

	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_connections",
		Help:      "Participant connections currently registered.",
	})

	BroadcastFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broadcast_send_failures_total",
		Help:      "Sends to a single recipient that failed during a broadcast.",
	})

	TimerExpirations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "timer_expirations_total",
		Help:      "Question timers that moved a session to RESULTS.",
	})

	ArchiveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "archive_failures_total",
		Help:      "Finished sessions that could not be archived.",
	})
)
