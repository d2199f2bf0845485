package whisperx

import (
	appmetrics "whisperclient/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	RequestTime  *prometheus.HistogramVec
	Errors       *prometheus.CounterVec
	Uploads      prometheus.Counter
	DedupHits    prometheus.Counter
	PollRetries  prometheus.Counter
	ResultWrites *prometheus.CounterVec
}

var metrics = &Metrics{
	RequestTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Subsystem: "whisper",
		Name:      "request_seconds",
		Buckets:   appmetrics.RequestSecondsBuckets,
	}, []string{"endpoint"}),
	Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "whisper",
		Name:      "errors_total",
	}, []string{"err_code"}),
	Uploads: prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: "whisper",
		Name:      "uploads_total",
	}),
	DedupHits: prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: "whisper",
		Name:      "dedup_hits_total",
	}),
	PollRetries: prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: "whisper",
		Name:      "poll_retries_total",
	}),
	ResultWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "whisper",
		Name:      "result_writes_total",
	}, []string{"view", "outcome"}),
}

func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(metrics.RequestTime)
	reg.MustRegister(metrics.Errors)
	reg.MustRegister(metrics.Uploads)
	reg.MustRegister(metrics.DedupHits)
	reg.MustRegister(metrics.PollRetries)
	reg.MustRegister(metrics.ResultWrites)
}
