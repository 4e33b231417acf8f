package metrics

import "github.com/prometheus/client_golang/prometheus"

// UploadMetrics tracks orchestrator outcomes per storage backend.
type UploadMetrics struct {
	completed *prometheus.CounterVec
	bytes     *prometheus.CounterVec
}

// NewUploadMetrics registers the upload metrics on the provided registerer.
func NewUploadMetrics(reg prometheus.Registerer) *UploadMetrics {
	if reg == nil {
		return &UploadMetrics{}
	}
	completed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uploads_total",
		Help: "Completed upload tasks by backend and terminal status.",
	}, []string{"backend", "status"})
	bytes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "upload_bytes_total",
		Help: "Bytes successfully stored, by backend.",
	}, []string{"backend"})
	reg.MustRegister(completed, bytes)
	return &UploadMetrics{completed: completed, bytes: bytes}
}

// IncCompleted counts one finished task.
func (u *UploadMetrics) IncCompleted(backend, status string) {
	if u == nil || u.completed == nil {
		return
	}
	u.completed.WithLabelValues(normalizeLabel(backend), normalizeLabel(status)).Inc()
}

// AddBytes accumulates stored payload size.
func (u *UploadMetrics) AddBytes(backend string, n int64) {
	if u == nil || u.bytes == nil || n <= 0 {
		return
	}
	u.bytes.WithLabelValues(normalizeLabel(backend)).Add(float64(n))
}
