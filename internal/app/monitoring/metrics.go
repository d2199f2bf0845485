package monitoring

import (
	appmetrics "whisperclient/pkg/metrics"
	"whisperclient/pkg/whisperx"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Runs           *prometheus.CounterVec
	RunTime        *prometheus.HistogramVec
	BatchFiles     *prometheus.CounterVec
	LastRunSuccess prometheus.Gauge
}

var AppMetrics = &Metrics{
	Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transcriber",
		Subsystem: "run",
		Name:      "total",
	}, []string{"mode", "outcome"}),
	RunTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "transcriber",
		Subsystem: "run",
		Name:      "seconds",
		Buckets:   appmetrics.RequestSecondsBuckets,
	}, []string{"mode"}),
	BatchFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transcriber",
		Subsystem: "batch",
		Name:      "files_total",
	}, []string{"state"}),
	LastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "transcriber",
		Subsystem: "run",
		Name:      "last_success_timestamp_seconds",
	}),
}

func RegisterMetrics(reg prometheus.Registerer) {
	whisperx.RegisterMetrics(reg)

	reg.MustRegister(AppMetrics.Runs)
	reg.MustRegister(AppMetrics.RunTime)
	reg.MustRegister(AppMetrics.BatchFiles)
	reg.MustRegister(AppMetrics.LastRunSuccess)
}

func ObserveBatch(report *whisperx.BatchReport) {
	if report == nil {
		return
	}

	AppMetrics.BatchFiles.WithLabelValues("submitted").Add(float64(report.Submitted))
	AppMetrics.BatchFiles.WithLabelValues("launched").Add(float64(report.Launched))
	AppMetrics.BatchFiles.WithLabelValues("completed").Add(float64(report.Completed))
	AppMetrics.BatchFiles.WithLabelValues("failed").Add(float64(len(report.Failures)))
}
