package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/grussorusso/serverledge-estimator/internal/benders"
	"github.com/grussorusso/serverledge-estimator/internal/config"
	"github.com/grussorusso/serverledge-estimator/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var Enabled bool
var registry = prometheus.NewRegistry()

var (
	estimations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "estimator_estimations_total",
		Help: "Completed estimations by method and outcome",
	}, []string{"method", "outcome"})
	estimationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "estimator_estimation_seconds",
		Help:    "Wall time of an estimation",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"method"})
	iterations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "estimator_benders_iterations_total",
		Help: "Decomposition iterations run",
	})
	liveCuts = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "estimator_benders_live_cuts",
		Help: "Cuts in the master of the latest iteration",
	})
	liveIntervals = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "estimator_benders_live_intervals",
		Help: "Interval indicators in the master of the latest iteration",
	})
	cutsAdded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "estimator_benders_cuts_total",
		Help: "Cuts added by separator",
	}, []string{"separator"})
	bestBound = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "estimator_benders_best_bound",
		Help: "Best bound of the latest decomposition iteration",
	})
	iterationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "estimator_benders_iteration_seconds",
		Help:    "Wall time of one decomposition iteration",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})
)

func init() {
	registry.MustRegister(estimations, estimationSeconds, iterations, liveCuts, liveIntervals,
		cutsAdded, bestBound, iterationSeconds)
}

// Init reads the configuration and sets Enabled. It does not block; call
// it before any estimator is built and run Serve afterwards.
func Init() bool {
	log := logging.GetLogger()
	Enabled = config.GetBool(config.METRICS_ENABLED, false)
	if Enabled {
		log.Info("Metrics enabled.")
	} else {
		log.Info("Metrics disabled.")
	}
	return Enabled
}

// Serve exposes the registry on the metrics port. It blocks, so callers run
// it in its own goroutine once Init has returned true.
func Serve() {
	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true})
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	addr := fmt.Sprintf(":%d", config.GetInt(config.METRICS_PORT, 2112))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logging.GetLogger().WithError(err).Error("metrics endpoint stopped")
	}
}

// Registry exposes the collectors, e.g. for tests.
func Registry() *prometheus.Registry {
	return registry
}

// ObserveIteration is a benders.Observer.
func ObserveIteration(it benders.Iteration) {
	iterations.Inc()
	liveCuts.Set(float64(it.Cuts))
	liveIntervals.Set(float64(it.Intervals))
	bestBound.Set(float64(it.Best))
	iterationSeconds.Observe(it.Elapsed.Seconds())
	cutsAdded.WithLabelValues("packing").Add(float64(it.PackingCuts))
	if it.CoreSize > 0 {
		cutsAdded.WithLabelValues("verifier").Inc()
	}
}

// RecordEstimation counts a finished estimation.
func RecordEstimation(method string, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	estimations.WithLabelValues(method, outcome).Inc()
	estimationSeconds.WithLabelValues(method).Observe(elapsed.Seconds())
}
