package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for LendView.
type Metrics struct {
	// --- Chain reads ---
	ChainReads        *prometheus.CounterVec
	ChainReadErrors   *prometheus.CounterVec
	ChainReadDuration *prometheus.HistogramVec

	// --- Session refresh ---
	RefreshDuration  prometheus.Histogram
	RefreshErrors    prometheus.Counter
	SessionsActive   prometheus.Gauge
	SessionsOpened   prometheus.Counter
	SessionsClosed   prometheus.Counter

	// --- Event ledger ---
	EventsObserved     *prometheus.CounterVec
	EventsDeduplicated *prometheus.CounterVec
	EventsDecodeErrors prometheus.Counter
	EventsDiscarded    *prometheus.CounterVec
	HistorySize        prometheus.Gauge
	SubscriptionErrors *prometheus.CounterVec

	// --- Action guard ---
	GuardVerdicts *prometheus.CounterVec

	// --- Submissions ---
	SubmissionsAttempted *prometheus.CounterVec
	SubmissionsRejected  *prometheus.CounterVec
	SubmissionsFailed    *prometheus.CounterVec
	SubmissionDuration   *prometheus.HistogramVec

	// --- HTTP API ---
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// --- Archive & publish ---
	ArchiveRowsWritten prometheus.Counter
	ArchiveErrors      prometheus.Counter
	PublishDrops       prometheus.Counter
	RecordsPublished   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	rpcBuckets := []float64{
		0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5,
	}

	refreshBuckets := []float64{
		0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
	}

	return &Metrics{
		// Chain reads
		ChainReads: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lendview_chain_reads_total",
			Help: "Contract read calls issued",
		}, []string{"method"}),

		ChainReadErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lendview_chain_read_errors_total",
			Help: "Contract read calls that failed",
		}, []string{"method"}),

		ChainReadDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lendview_chain_read_duration_seconds",
			Help:    "Contract read round-trip latency",
			Buckets: rpcBuckets,
		}, []string{"method"}),

		// Session refresh
		RefreshDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lendview_refresh_duration_seconds",
			Help:    "Full session snapshot refresh duration",
			Buckets: refreshBuckets,
		}),

		RefreshErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lendview_refresh_errors_total",
			Help: "Snapshot refreshes that ended with an error",
		}),

		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lendview_sessions_active",
			Help: "Wallet sessions currently open",
		}),

		SessionsOpened: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lendview_sessions_opened_total",
			Help: "Wallet sessions opened",
		}),

		SessionsClosed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lendview_sessions_closed_total",
			Help: "Wallet sessions closed",
		}),

		// Event ledger
		EventsObserved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lendview_events_observed_total",
			Help: "Position events decoded from subscriptions",
		}, []string{"kind"}),

		EventsDeduplicated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lendview_events_deduplicated_total",
			Help: "Events dropped as duplicates of a recorded coordinate",
		}, []string{"kind"}),

		EventsDecodeErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lendview_events_decode_errors_total",
			Help: "Raw logs that failed to decode",
		}),

		EventsDiscarded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lendview_events_discarded_total",
			Help: "Decoded events not concerning the session user",
		}, []string{"kind"}),

		HistorySize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lendview_history_size",
			Help: "Entries currently held in the bounded history",
		}),

		SubscriptionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lendview_subscription_errors_total",
			Help: "Errors surfaced by event subscriptions",
		}, []string{"kind"}),

		// Action guard
		GuardVerdicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lendview_guard_verdicts_total",
			Help: "Validation verdicts by action and reason",
		}, []string{"action", "verdict", "reason"}),

		// Submissions
		SubmissionsAttempted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lendview_submissions_attempted_total",
			Help: "Transactions handed to the submitter",
		}, []string{"action"}),

		SubmissionsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lendview_submissions_rejected_total",
			Help: "Submissions refused locally before any transaction",
		}, []string{"action", "reason"}),

		SubmissionsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lendview_submissions_failed_total",
			Help: "Submissions that failed on chain",
		}, []string{"action"}),

		SubmissionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lendview_submission_duration_seconds",
			Help:    "Submit to confirmation latency",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
		}, []string{"action"}),

		// HTTP API
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lendview_http_requests_total",
			Help: "HTTP API requests",
		}, []string{"route", "status"}),

		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lendview_http_request_duration_seconds",
			Help:    "HTTP API latency",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}, []string{"route"}),

		// Archive & publish
		ArchiveRowsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lendview_archive_rows_written_total",
			Help: "History rows written to Postgres",
		}),

		ArchiveErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lendview_archive_errors_total",
			Help: "Postgres archive write errors",
		}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lendview_publish_drops_total",
			Help: "Records dropped due to a full publish channel",
		}),

		RecordsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lendview_records_published_total",
			Help: "History records published to NATS",
		}, []string{"kind"}),
	}
}

// RecordVerdict counts one guard outcome.
func (m *Metrics) RecordVerdict(action, verdict, reason string) {
	m.GuardVerdicts.WithLabelValues(action, verdict, reason).Inc()
}
