package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	documentRenderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "samaj",
			Subsystem: "docgen",
			Name:      "render_duration_seconds",
			Help:      "文档渲染耗时分布（秒）。",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"doc_type"},
	)

	documentRenderFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "samaj",
			Subsystem: "docgen",
			Name:      "render_failed_total",
			Help:      "文档渲染失败总数。",
		},
		[]string{"doc_type"},
	)
)

// ObserveDocumentRender 记录一次文档渲染的耗时与结果。
func ObserveDocumentRender(docType string, start time.Time, err error) {
	documentRenderDuration.WithLabelValues(docType).Observe(time.Since(start).Seconds())
	if err != nil {
		documentRenderFailed.WithLabelValues(docType).Inc()
	}
}
