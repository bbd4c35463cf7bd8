package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// deliveriesTotal counts transport attempts by mode and result.
	// Labels:
	// - mode: sync | queued
	// - result: success | failure
	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailrelay",
			Subsystem: "delivery",
			Name:      "attempts_total",
			Help:      "Transport attempts by delivery mode and result.",
		},
		[]string{"mode", "result"},
	)

	// deliverySeconds observes transport latency in seconds.
	deliverySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mailrelay",
			Subsystem: "delivery",
			Name:      "send_seconds",
			Help:      "Transport send latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mailrelay",
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Jobs waiting in the delivery queue.",
	})

	// auditRecordFailures counts messages that were delivered but could not
	// be written to the audit log.
	auditRecordFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mailrelay",
		Subsystem: "audit",
		Name:      "record_failures_total",
		Help:      "Delivered messages whose audit entry could not be written.",
	})

	auditPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mailrelay",
		Subsystem: "audit",
		Name:      "purged_entries_total",
		Help:      "Audit entries removed by retention sweeps and purges.",
	})

	// verificationOutcomes counts domain verification attempts.
	// Labels:
	// - outcome: verified | not_verified_yet | resolution_failed
	verificationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailrelay",
			Subsystem: "verification",
			Name:      "outcomes_total",
			Help:      "Domain verification outcomes.",
		},
		[]string{"outcome"},
	)

	// authRejections counts send requests refused by the authorization gate.
	// Labels:
	// - reason: missing_credential | invalid_credential | invalid_sender | unverified_domain
	authRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailrelay",
			Subsystem: "gate",
			Name:      "rejections_total",
			Help:      "Send requests rejected by the authorization gate.",
		},
		[]string{"reason"},
	)

	// rateLimitExceeded counts HTTP 429 events from the rate limit middleware.
	rateLimitExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailrelay",
			Subsystem: "http",
			Name:      "rate_limit_exceeded_total",
			Help:      "Number of requests rejected due to rate limiting (HTTP 429)",
		},
		[]string{"endpoint", "source"},
	)
)

// IncDelivery increments the delivery attempt counter.
func IncDelivery(mode, result string) {
	if mode == "" {
		mode = "unknown"
	}
	if result == "" {
		result = "unknown"
	}
	deliveriesTotal.WithLabelValues(mode, result).Inc()
}

// ObserveDelivery records a transport send latency in seconds.
func ObserveDelivery(mode string, seconds float64) {
	if mode == "" {
		mode = "unknown"
	}
	deliverySeconds.WithLabelValues(mode).Observe(seconds)
}

func SetQueueDepth(n int) { queueDepth.Set(float64(n)) }

func IncAuditRecordFailure() { auditRecordFailures.Inc() }

func AddPurged(n int64) {
	if n > 0 {
		auditPurgedTotal.Add(float64(n))
	}
}

// IncVerification increments the verification outcome counter.
func IncVerification(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	verificationOutcomes.WithLabelValues(outcome).Inc()
}

// IncAuthRejection increments the gate rejection counter.
func IncAuthRejection(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	authRejections.WithLabelValues(reason).Inc()
}

// IncRateLimitExceeded increments the 429 counter for the given endpoint and source.
func IncRateLimitExceeded(endpoint, source string) {
	if endpoint == "" {
		endpoint = "unknown"
	}
	if source == "" {
		source = "unknown"
	}
	rateLimitExceeded.WithLabelValues(endpoint, source).Inc()
}
