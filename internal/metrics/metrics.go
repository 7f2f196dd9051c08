package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QuestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_questions_total",
			Help: "Total number of questions answered, by intent and routing branch",
		},
		[]string{"intent", "branch"},
	)

	RejectedQuestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_rejected_questions_total",
			Help: "Total number of questions rejected by validation or internal errors",
		},
		[]string{"transport", "reason"},
	)

	FallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_fallback_total",
			Help: "Routing fallback transitions between pipeline layers",
		},
		[]string{"from", "to"},
	)

	IntentConfidence = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatbot_intent_confidence",
			Help:    "Confidence reported by the intent classifier",
			Buckets: []float64{0.1, 0.3, 0.5, 0.7, 0.8, 0.85, 0.9, 0.95, 1},
		},
		[]string{"source"},
	)

	RouteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "chatbot_route_duration_seconds",
			Help: "Duration of the routing pipeline in seconds",
		},
		[]string{"transport"},
	)

	EventCatalogSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatbot_event_catalog_size",
			Help: "Number of events in the current catalog snapshot",
		},
	)

	EventFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_event_fetch_total",
			Help: "Event catalog refresh attempts by result",
		},
		[]string{"result"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatbot_active_sessions",
			Help: "Number of open persistent sessions",
		},
	)
)
