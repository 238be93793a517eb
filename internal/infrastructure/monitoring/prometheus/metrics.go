package prometheus

import (
	"strconv"
	"time"

	"github.com/turtacn/dockpipe/internal/domain/docking"
)

// AppMetrics holds all application metrics.
type AppMetrics struct {
	// Pipeline
	LigandsDockedTotal   CounterVec
	DockDuration         HistogramVec
	StageDuration        HistogramVec
	RunsTotal            CounterVec
	RunDuration          HistogramVec
	BestScore            GaugeVec
	LigandsRanked        GaugeVec
	ComplexesBuiltTotal  CounterVec
	ExternalCommandTotal CounterVec

	// HTTP
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec

	// Sinks
	SinkPublishTotal CounterVec
}

// Default buckets
var (
	DefaultDockDurationBuckets = []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800}
	DefaultRunDurationBuckets  = []float64{60, 300, 900, 1800, 3600, 7200, 14400, 43200, 86400}
	DefaultHTTPDurationBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}
)

// NewAppMetrics registers all metrics and returns AppMetrics struct.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	m.LigandsDockedTotal = collector.RegisterCounter("ligands_docked_total", "Ligands submitted to the docking engine", "status")
	m.DockDuration = collector.RegisterHistogram("dock_duration_seconds", "Per-ligand docking duration", DefaultDockDurationBuckets)
	m.StageDuration = collector.RegisterHistogram("stage_duration_seconds", "Pipeline stage duration", DefaultDockDurationBuckets, "stage")
	m.RunsTotal = collector.RegisterCounter("runs_total", "Completed pipeline runs", "status")
	m.RunDuration = collector.RegisterHistogram("run_duration_seconds", "Pipeline run duration", DefaultRunDurationBuckets)
	m.BestScore = collector.RegisterGauge("best_score_kcal_mol", "Best docking score of the last run", "receptor")
	m.LigandsRanked = collector.RegisterGauge("ligands_ranked", "Ligands in the ranking of the last run", "receptor")
	m.ComplexesBuiltTotal = collector.RegisterCounter("complexes_built_total", "Complex structures written", "status")
	m.ExternalCommandTotal = collector.RegisterCounter("external_commands_total", "External program invocations", "program", "status")

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")

	m.SinkPublishTotal = collector.RegisterCounter("sink_publish_total", "Run summary publications", "sink", "status")

	return m
}

func statusLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// Helpers

func RecordDock(metrics *AppMetrics, ok bool, duration time.Duration) {
	metrics.LigandsDockedTotal.WithLabelValues(statusLabel(ok)).Inc()
	metrics.DockDuration.WithLabelValues().Observe(duration.Seconds())
}

func RecordStage(metrics *AppMetrics, stage string, duration time.Duration) {
	metrics.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

func RecordCommand(metrics *AppMetrics, program string, ok bool) {
	metrics.ExternalCommandTotal.WithLabelValues(program, statusLabel(ok)).Inc()
}

func RecordSinkPublish(metrics *AppMetrics, sink string, ok bool) {
	metrics.SinkPublishTotal.WithLabelValues(sink, statusLabel(ok)).Inc()
}

// RecordRun records the outcome of a finished run.
func RecordRun(metrics *AppMetrics, s *docking.RunSummary) {
	metrics.RunsTotal.WithLabelValues(string(s.Status)).Inc()
	metrics.RunDuration.WithLabelValues().Observe(s.Duration.Seconds())
	metrics.LigandsRanked.WithLabelValues(s.Receptor).Set(float64(len(s.Ranking)))
	if best, ok := s.Best(); ok {
		metrics.BestScore.WithLabelValues(s.Receptor).Set(best.Score)
	}
	metrics.ComplexesBuiltTotal.WithLabelValues("success").Add(float64(len(s.Complexes)))
	metrics.ComplexesBuiltTotal.WithLabelValues("failure").Add(float64(s.ComplexFailed))
}

func RecordHTTPRequest(metrics *AppMetrics, method, path string, statusCode int, duration time.Duration) {
	metrics.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
