package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragbot_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ragbot_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// IngestFiles 上传文件处理结果，status: ok, failed
	IngestFiles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragbot_ingest_files_total",
			Help: "Uploaded files by processing outcome",
		},
		[]string{"status"},
	)

	IngestChunks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ragbot_ingest_chunks_total",
			Help: "Chunks written to the vector store",
		},
	)

	// StageDuration 查询各阶段耗时，stage: retrieve, answer
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ragbot_query_stage_duration_seconds",
			Help:    "Duration of query stages",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	LLMRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ragbot_llm_retries_total",
			Help: "Retried LLM calls after transient provider errors",
		},
	)

	// CacheLookups result: hit, miss, error
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragbot_answer_cache_lookups_total",
			Help: "Answer cache lookups by result",
		},
		[]string{"result"},
	)

	TenantPurges = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ragbot_tenant_purges_total",
			Help: "Tenant data deletions",
		},
	)
)

// ObserveStage 记录阶段耗时
func ObserveStage(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Middleware 按路由模板统计请求数与耗时，未匹配路由统一记为 unmatched
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
