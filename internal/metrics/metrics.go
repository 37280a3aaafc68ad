package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"newswire/internal/types"
)

var (
	recordsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newswire_records_fetched_total",
			Help: "Records returned by providers after the lower bound check",
		},
		[]string{"source", "provider"},
	)

	recordsStaged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newswire_records_staged_total",
			Help: "Records written to the staging store",
		},
		[]string{"source", "provider", "result"},
	)

	providerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newswire_provider_errors_total",
			Help: "Failed provider fetches",
		},
		[]string{"source", "provider"},
	)

	watermark = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "newswire_watermark_timestamp_seconds",
			Help: "Last observed event time per source and provider",
		},
		[]string{"source", "provider"},
	)

	outcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newswire_classification_outcomes_total",
			Help: "Classification outcomes by path",
		},
		[]string{"path", "outcome"},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "newswire_run_duration_seconds",
			Help:    "Duration of pipeline runs",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{"kind"},
	)

	pendingRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "newswire_pending_records",
			Help: "Staged records waiting for classification",
		},
	)
)

func ObserveFetch(source string, provider types.Provider, fetched int) {
	recordsFetched.WithLabelValues(source, string(provider)).Add(float64(fetched))
}

func ObserveStage(source string, provider types.Provider, result types.StageResult) {
	recordsStaged.WithLabelValues(source, string(provider), result.String()).Inc()
}

func ObserveProviderError(source string, provider types.Provider) {
	providerErrors.WithLabelValues(source, string(provider)).Inc()
}

func SetWatermark(source string, provider types.Provider, t time.Time) {
	watermark.WithLabelValues(source, string(provider)).Set(float64(t.Unix()))
}

func SetPending(n int) {
	pendingRecords.Set(float64(n))
}

// ObserveRun records the duration and outcome counts of a finished run.
func ObserveRun(summary *types.RunSummary) {
	runDuration.WithLabelValues(string(summary.Kind)).Observe(summary.Duration.Seconds())

	if summary.Kind != types.RunClassify && summary.Kind != types.RunReclassify {
		return
	}

	path := string(summary.Kind)
	for outcome, n := range map[string]int{
		"classified":    summary.Classified,
		"excluded":      summary.Excluded,
		"uncategorized": summary.Uncategorized,
		"errored":       summary.Errored,
		"failed":        summary.Failed,
		"prefiltered":   summary.Prefiltered,
		"normalized":    summary.Normalized,
	} {
		if n > 0 {
			outcomes.WithLabelValues(path, outcome).Add(float64(n))
		}
	}
}
