// Package metrics exposes Prometheus counters for the stream catalog.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ---- Read path ---------------------------------------

	readRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamcatalog_read_requests_total",
		Help: "Stream read requests by operation and result",
	}, []string{"op", "result"})

	// ---- Delete workflow ---------------------------------

	deleteOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamcatalog_stream_deletes_total",
		Help: "Stream delete workflow outcomes",
	}, []string{"result"})

	deleteStageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamcatalog_delete_stage_failures_total",
		Help: "Delete workflow failures by stage",
	}, []string{"stage"})

	// ---- Settings ----------------------------------------

	settingsWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamcatalog_settings_writes_total",
		Help: "Stream settings writes by result",
	}, []string{"result"})

	// ---- Compaction purge --------------------------------

	purgedStreams = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamcatalog_purged_streams_total",
		Help: "Streams whose data was purged after deletion",
	})

	purgedObjects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamcatalog_purged_objects_total",
		Help: "Objects removed from storage by the purge daemon",
	})
)

// Result labels shared by the counters.
const (
	ResultOK        = "ok"
	ResultNotFound  = "not_found"
	ResultConflict  = "conflict"
	ResultFailed    = "failed"
	ResultMalformed = "malformed"
)

// ObserveRead counts a read-path request.
func ObserveRead(op, result string) {
	readRequests.WithLabelValues(op, result).Inc()
}

// ObserveDelete counts a delete workflow outcome.
func ObserveDelete(result string) {
	deleteOutcomes.WithLabelValues(result).Inc()
}

// ObserveStageFailure counts a delete workflow failure at stage.
func ObserveStageFailure(stage string) {
	deleteStageFailures.WithLabelValues(stage).Inc()
}

// ObserveSettingsWrite counts a settings write outcome.
func ObserveSettingsWrite(result string) {
	settingsWrites.WithLabelValues(result).Inc()
}

// ObservePurge counts one purged stream and the objects removed for it.
func ObservePurge(objects int) {
	purgedStreams.Inc()
	purgedObjects.Add(float64(objects))
}

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
