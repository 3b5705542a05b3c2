// Package metrics holds the Prometheus collectors for the translation core:
// request outcomes, provider calls, and window purges. HTTP-level metrics
// live in the middleware package.
//
// Labels are bounded enums (outcome, provider name, error kind) so the
// series count stays small regardless of traffic.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for TranslationOutcomes.
const (
	OutcomeCreated        = "created"
	OutcomeCached         = "cached"
	OutcomeRaceRecovered  = "race_recovered"
	OutcomeLanguageLocked = "language_locked"
	OutcomeQuotaExceeded  = "quota_exceeded"
	OutcomeBadRequest     = "bad_request"
	OutcomeProviderError  = "provider_error"
	OutcomeStorageError   = "storage_error"
)

var (
	// TranslationOutcomes counts orchestrator results by outcome.
	TranslationOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "translation_requests_total",
			Help: "Translation requests by outcome.",
		},
		[]string{"outcome"},
	)

	// ProviderLatency records provider call duration. result is "ok" or the
	// provider error kind.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "translation_provider_duration_seconds",
			Help:    "Duration of translation provider calls in seconds.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 4, 8, 15},
		},
		[]string{"provider", "result"},
	)

	// ProviderTokens counts tokens reported by the provider.
	ProviderTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "translation_provider_tokens_total",
			Help: "Tokens consumed by translation provider calls.",
		},
		[]string{"provider", "direction"},
	)

	// WindowsPurged counts expired windows deleted by the reaper.
	WindowsPurged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "translation_windows_purged_total",
			Help: "Expired translation windows removed by the reaper.",
		},
	)
)

func init() {
	prometheus.MustRegister(TranslationOutcomes, ProviderLatency, ProviderTokens, WindowsPurged)
}

// Outcome increments the outcome counter.
func Outcome(outcome string) {
	TranslationOutcomes.WithLabelValues(outcome).Inc()
}

// ProviderCall records one provider call. Token counts of zero are skipped.
func ProviderCall(provider, result string, d time.Duration, tokensIn, tokensOut int) {
	ProviderLatency.WithLabelValues(provider, result).Observe(d.Seconds())
	if tokensIn > 0 {
		ProviderTokens.WithLabelValues(provider, "in").Add(float64(tokensIn))
	}
	if tokensOut > 0 {
		ProviderTokens.WithLabelValues(provider, "out").Add(float64(tokensOut))
	}
}

// Purged adds n to the purge counter.
func Purged(n int64) {
	if n > 0 {
		WindowsPurged.Add(float64(n))
	}
}
