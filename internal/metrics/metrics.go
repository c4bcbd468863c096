package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liamcoop/pricerules/internal/logger"
)

var (
	Registry = prometheus.NewRegistry()

	Quotes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pricerules",
		Name:      "quotes_total",
		Help:      "Price computations by outcome.",
	}, []string{"store", "outcome"})

	Suppressions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pricerules",
		Name:      "suppressed_rules_total",
		Help:      "Rules skipped because the request excluded them.",
	}, []string{"store"})

	Diagnostics = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pricerules",
		Name:      "diagnostics_total",
		Help:      "Non-fatal normalizations applied while combining adjustments.",
	}, []string{"code"})

	ConfigurationErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pricerules",
		Name:      "configuration_errors_total",
		Help:      "Enabled settings that reference an unregistered rule.",
	}, []string{"store"})

	RenderCache = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pricerules",
		Name:      "render_cache_requests_total",
		Help:      "Render cache lookups by result.",
	}, []string{"result"})

	EvaluationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pricerules",
		Name:      "evaluation_seconds",
		Help:      "Time spent evaluating and combining rules for one line item.",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1},
	})

	LogWarnings = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "pricerules",
		Name:      "log_warnings_total",
		Help:      "Warnings logged, before sampling.",
	}, func() float64 { return float64(logger.TotalWarnings.Load()) })

	LogErrors = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "pricerules",
		Name:      "log_errors_total",
		Help:      "Errors logged, before sampling.",
	}, func() float64 { return float64(logger.TotalErrors.Load()) })
)

func init() {
	Registry.MustRegister(
		Quotes,
		Suppressions,
		Diagnostics,
		ConfigurationErrors,
		RenderCache,
		EvaluationSeconds,
		LogWarnings,
		LogErrors,
		collectors.NewGoCollector(),
	)
}

// Handler serves the metrics registry in the Prometheus text format
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
