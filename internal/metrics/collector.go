package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 简报装配指标
	briefsAssembledTotal  *prometheus.CounterVec
	briefAssemblyDuration *prometheus.HistogramVec
	briefTokens           *prometheus.HistogramVec
	briefSnippets         prometheus.Histogram
	budgetPrunesTotal     *prometheus.CounterVec

	// 检索指标
	retrievalsTotal       *prometheus.CounterVec
	retrievalDuration     *prometheus.HistogramVec
	indexUnavailableTotal prometheus.Counter

	// 记忆指标
	memoryItems            *prometheus.GaugeVec
	memoryEvictionsTotal   *prometheus.CounterVec
	memoryPromotionsTotal  *prometheus.CounterVec
	consolidationDuration  prometheus.Histogram
	consolidationMergesTotal prometheus.Counter

	// 回合引擎指标
	turnsTotal    *prometheus.CounterVec
	turnDuration  prometheus.Histogram
	agentsPerTurn prometheus.Histogram

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbQueryDuration   *prometheus.HistogramVec

	// 推送指标
	streamSubscribers  prometheus.Gauge
	streamFramesTotal  prometheus.Counter
	streamDroppedTotal prometheus.Counter

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 简报装配指标
	c.briefsAssembledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "briefs_assembled_total",
			Help:      "Total number of turn briefs assembled",
		},
		[]string{"agent_id", "status"}, // status: ok, degraded, fallback
	)

	c.briefAssemblyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "brief_assembly_duration_seconds",
			Help:      "Turn brief assembly duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"agent_id"},
	)

	c.briefTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "brief_tokens",
			Help:      "Token count of assembled briefs",
			Buckets:   []float64{250, 500, 1000, 1500, 2000, 2500, 3000, 4000},
		},
		[]string{"agent_id"},
	)

	c.briefSnippets = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "brief_snippets",
			Help:      "Number of knowledge snippets included per brief",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 6, 7, 8},
		},
	)

	c.budgetPrunesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_prunes_total",
			Help:      "Total number of budget pruning passes by stage",
		},
		[]string{"stage"}, // stage: snippets, summaries, world
	)

	// 检索指标
	c.retrievalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrievals_total",
			Help:      "Total number of knowledge retrievals",
		},
		[]string{"backend", "status"},
	)

	c.retrievalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Knowledge retrieval duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"backend"},
	)

	c.indexUnavailableTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_unavailable_total",
			Help:      "Total number of retrievals degraded by an unavailable index",
		},
	)

	// 记忆指标
	c.memoryItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_items",
			Help:      "Number of memory items held per agent and tier",
		},
		[]string{"agent_id", "tier"},
	)

	c.memoryEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_evictions_total",
			Help:      "Total number of memory items evicted by tier",
		},
		[]string{"tier"},
	)

	c.memoryPromotionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_promotions_total",
			Help:      "Total number of memory items promoted between tiers",
		},
		[]string{"from", "to"},
	)

	c.consolidationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "consolidation_duration_seconds",
			Help:      "Memory consolidation pass duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	c.consolidationMergesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consolidation_merges_total",
			Help:      "Total number of memory items merged during consolidation",
		},
	)

	// 回合引擎指标
	c.turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of turns executed",
		},
		[]string{"status"}, // status: committed, cancelled, failed
	)

	c.turnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "End-to-end turn execution duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	c.agentsPerTurn = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agents_per_turn",
			Help:      "Number of agents briefed per turn",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128},
		},
	)

	// 缓存指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// 数据库指标
	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"database", "operation"},
	)

	// 推送指标
	c.streamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_subscribers",
			Help:      "Number of connected stream subscribers",
		},
	)

	c.streamFramesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_frames_total",
			Help:      "Total number of frames broadcast to subscribers",
		},
	)

	c.streamDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_dropped_total",
			Help:      "Total number of subscribers dropped for slow consumption",
		},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 📋 简报指标记录
// =============================================================================

// RecordBriefAssembly 记录一次简报装配
func (c *Collector) RecordBriefAssembly(agentID, status string, duration time.Duration, tokens, snippets int) {
	c.briefsAssembledTotal.WithLabelValues(agentID, status).Inc()
	c.briefAssemblyDuration.WithLabelValues(agentID).Observe(duration.Seconds())
	c.briefTokens.WithLabelValues(agentID).Observe(float64(tokens))
	c.briefSnippets.Observe(float64(snippets))
}

// RecordBudgetPrune 记录一次预算裁剪
func (c *Collector) RecordBudgetPrune(stage string) {
	c.budgetPrunesTotal.WithLabelValues(stage).Inc()
}

// =============================================================================
// 🔍 检索指标记录
// =============================================================================

// RecordRetrieval 记录一次知识检索
func (c *Collector) RecordRetrieval(backend, status string, duration time.Duration) {
	c.retrievalsTotal.WithLabelValues(backend, status).Inc()
	c.retrievalDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordIndexUnavailable 记录一次索引不可用降级
func (c *Collector) RecordIndexUnavailable() {
	c.indexUnavailableTotal.Inc()
}

// =============================================================================
// 🧠 记忆指标记录
// =============================================================================

// SetMemoryItems 更新某代理某层的条目数
func (c *Collector) SetMemoryItems(agentID, tier string, count int) {
	c.memoryItems.WithLabelValues(agentID, tier).Set(float64(count))
}

// RecordEviction 记录一次记忆淘汰
func (c *Collector) RecordEviction(tier string) {
	c.memoryEvictionsTotal.WithLabelValues(tier).Inc()
}

// RecordPromotion 记录一次跨层晋升
func (c *Collector) RecordPromotion(from, to string) {
	c.memoryPromotionsTotal.WithLabelValues(from, to).Inc()
}

// RecordConsolidation 记录一次归并压缩
func (c *Collector) RecordConsolidation(duration time.Duration, merged int) {
	c.consolidationDuration.Observe(duration.Seconds())
	c.consolidationMergesTotal.Add(float64(merged))
}

// =============================================================================
// ⚙️ 回合指标记录
// =============================================================================

// RecordTurn 记录一次回合执行
func (c *Collector) RecordTurn(status string, duration time.Duration, agents int) {
	c.turnsTotal.WithLabelValues(status).Inc()
	c.turnDuration.Observe(duration.Seconds())
	c.agentsPerTurn.Observe(float64(agents))
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// RecordDBQuery 记录数据库查询
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// =============================================================================
// 📡 推送指标记录
// =============================================================================

// SetStreamSubscribers 更新订阅者数
func (c *Collector) SetStreamSubscribers(count int) {
	c.streamSubscribers.Set(float64(count))
}

// RecordStreamFrame 记录一帧广播
func (c *Collector) RecordStreamFrame() {
	c.streamFramesTotal.Inc()
}

// RecordStreamDropped 记录一次慢订阅者丢弃
func (c *Collector) RecordStreamDropped() {
	c.streamDroppedTotal.Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码归类为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
