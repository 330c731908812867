// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
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
	// 阶段指标
	stageExecutionsTotal *prometheus.CounterVec
	stageDuration        *prometheus.HistogramVec

	// 评审指标
	criticDecisionsTotal *prometheus.CounterVec

	// 检查点指标
	checkpointWritesTotal   *prometheus.CounterVec
	checkpointWriteDuration *prometheus.HistogramVec

	// 任务指标
	tasksFinishedTotal *prometheus.CounterVec
	taskResumesTotal   *prometheus.CounterVec

	// LLM 指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建注册到默认 Registry 的指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWithRegistry 创建注册到指定 Registerer 的指标收集器
func NewCollectorWithRegistry(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.stageExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_executions_total",
			Help:      "Total number of pipeline stage executions",
		},
		[]string{"stage", "status"},
	)

	c.stageDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.005, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	c.criticDecisionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "critic_decisions_total",
			Help:      "Total number of mapped critic decisions",
		},
		[]string{"status"},
	)

	c.checkpointWritesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_writes_total",
			Help:      "Total number of checkpoint writes",
		},
		[]string{"backend", "result"},
	)

	c.checkpointWriteDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkpoint_write_duration_seconds",
			Help:      "Checkpoint write duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		},
		[]string{"backend"},
	)

	c.tasksFinishedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_finished_total",
			Help:      "Total number of finished tasks by outcome",
		},
		[]string{"outcome"},
	)

	c.taskResumesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_resumes_total",
			Help:      "Total number of resume attempts by result",
		},
		[]string{"result"},
	)

	c.llmRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests",
		},
		[]string{"model", "status"},
	)

	c.llmRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"model"},
	)

	c.cacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	c.logger.Debug("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🎯 记录方法
// =============================================================================

// RecordStage 记录一次阶段执行
func (c *Collector) RecordStage(stage, status string, duration time.Duration) {
	c.stageExecutionsTotal.WithLabelValues(stage, status).Inc()
	c.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordCriticDecision 记录映射后的评审状态
func (c *Collector) RecordCriticDecision(status string) {
	c.criticDecisionsTotal.WithLabelValues(status).Inc()
}

// ObserveCheckpointWrite 记录检查点写入，实现 checkpoint.WriteObserver
func (c *Collector) ObserveCheckpointWrite(backend string, duration time.Duration, err error) {
	c.checkpointWritesTotal.WithLabelValues(backend, resultLabel(err)).Inc()
	c.checkpointWriteDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordTaskFinished 记录任务结束（passed / failed / aborted）
func (c *Collector) RecordTaskFinished(outcome string) {
	c.tasksFinishedTotal.WithLabelValues(outcome).Inc()
}

// RecordResume 记录续跑结果（resumed / no_checkpoint / completed / error）
func (c *Collector) RecordResume(result string) {
	c.taskResumesTotal.WithLabelValues(result).Inc()
}

// RecordLLMRequest 记录 LLM 请求
func (c *Collector) RecordLLMRequest(model string, duration time.Duration, err error) {
	c.llmRequestsTotal.WithLabelValues(model, resultLabel(err)).Inc()
	c.llmRequestDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
