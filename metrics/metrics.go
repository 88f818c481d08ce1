package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Payment attempts (client side)
	// ============================================
	AttemptsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skills_attempts_started_total",
			Help: "Total number of payment attempts started",
		},
		[]string{"skill"},
	)

	AttemptsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skills_attempts_finished_total",
			Help: "Total number of payment attempts that reached a terminal state",
		},
		[]string{"skill", "outcome", "error_code"},
	)

	AttemptsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skills_attempts_rejected_total",
			Help: "Total number of triggers rejected because an attempt was already in flight",
		},
		[]string{"skill"},
	)

	AttemptsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "skills_attempts_in_flight",
		Help: "Number of payment attempts not yet terminal",
	})

	StateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skills_state_transitions_total",
			Help: "Total number of payment state transitions",
		},
		[]string{"from", "to"},
	)

	AttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "skills_attempt_duration_seconds",
			Help:    "Wall-clock duration of payment attempts",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	// ============================================
	// Settlement
	// ============================================
	SettlementPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skills_settlement_polls_total",
			Help: "Total number of transaction status polls",
		},
		[]string{"result"},
	)

	ConfirmationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "skills_confirmation_duration_seconds",
		Help:    "Time from broadcast acceptance to confirmation",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
	})

	// ============================================
	// Skill backend
	// ============================================
	SkillRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skills_backend_requests_total",
			Help: "Total number of skill endpoint requests by outcome",
		},
		[]string{"skill", "outcome"},
	)

	SkillExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "skills_backend_execution_duration_seconds",
			Help:    "Skill handler execution duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"skill"},
	)

	ReplayedProofs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skills_backend_replayed_proofs_total",
		Help: "Total number of settlement proofs rejected as replays",
	})

	// ============================================
	// Devnet facilitator
	// ============================================
	FacilitatorBroadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skills_facilitator_broadcasts_total",
			Help: "Total number of broadcast requests by result",
		},
		[]string{"result"},
	)

	FacilitatorVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skills_facilitator_verifications_total",
			Help: "Total number of proof verifications by result",
		},
		[]string{"result"},
	)

	MempoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "skills_facilitator_mempool_size",
		Help: "Number of transactions still pending confirmation",
	})
)
