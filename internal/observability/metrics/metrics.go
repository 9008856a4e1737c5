package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "soc_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	catalogRequests *prometheus.CounterVec
	catalogLatency  *prometheus.HistogramVec
	catalogCache    *prometheus.CounterVec

	submissionTotal   *prometheus.CounterVec
	submissionLatency *prometheus.HistogramVec
	submissionRecords prometheus.Counter

	resolverSuperseded *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
)

// Init registers metrics on reg, or on the default registerer when reg is nil.
// Only the first call registers.
func Init(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		catalogRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "catalog_requests_total",
				Help: "Total catalog requests by operation and result",
			},
			[]string{"op", "result"},
		)
		catalogLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "catalog_latency_seconds",
				Help:    "Catalog request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		)
		catalogCache = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "catalog_cache_total",
				Help: "Catalog cache lookups by operation and outcome",
			},
			[]string{"op", "outcome"},
		)
		submissionTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "submissions_total",
				Help: "Total submissions by outcome",
			},
			[]string{"outcome"},
		)
		submissionLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "submission_latency_seconds",
				Help:    "Submission latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		)
		submissionRecords = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "submitted_records_total",
			Help: "Total override records accepted by the remote system",
		})
		resolverSuperseded = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "resolver_superseded_total",
				Help: "Catalog results discarded because the selection changed",
			},
			[]string{"slot"},
		)
		validationFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "validation_failures_total",
				Help: "Validation failures by kind",
			},
			[]string{"kind"},
		)

		reg.MustRegister(
			catalogRequests,
			catalogLatency,
			catalogCache,
			submissionTotal,
			submissionLatency,
			submissionRecords,
			resolverSuperseded,
			validationFailures,
		)
	})
}

// ObserveCatalog records one catalog request.
func ObserveCatalog(op string, err error, duration time.Duration) {
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	if catalogRequests != nil {
		catalogRequests.WithLabelValues(op, result).Inc()
	}
	if catalogLatency != nil {
		catalogLatency.WithLabelValues(op).Observe(duration.Seconds())
	}
}

// IncCatalogCache records a cache hit or miss.
func IncCatalogCache(op string, hit bool) {
	if catalogCache == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	catalogCache.WithLabelValues(op, outcome).Inc()
}

// ObserveSubmission records one submission attempt.
func ObserveSubmission(outcome string, records int, duration time.Duration) {
	if submissionTotal != nil {
		submissionTotal.WithLabelValues(outcome).Inc()
	}
	if submissionLatency != nil {
		submissionLatency.WithLabelValues(outcome).Observe(duration.Seconds())
	}
	if submissionRecords != nil && outcome == "submitted" {
		submissionRecords.Add(float64(records))
	}
}

// IncSuperseded records a discarded catalog result.
func IncSuperseded(slot string) {
	if resolverSuperseded != nil {
		resolverSuperseded.WithLabelValues(slot).Inc()
	}
}

// IncValidationFailure records one validation error.
func IncValidationFailure(kind string) {
	if validationFailures != nil {
		validationFailures.WithLabelValues(kind).Inc()
	}
}
