package metrics

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector.stageExecutionsTotal)
	assert.NotNil(t, collector.criticDecisionsTotal)
	assert.NotNil(t, collector.checkpointWritesTotal)
	assert.NotNil(t, collector.llmRequestsTotal)
}

func TestCollector_RecordStage(t *testing.T) {
	collector := NewCollectorWithRegistry("askflow", prometheus.NewRegistry(), nil)

	collector.RecordStage("retrieve", "success", 20*time.Millisecond)
	collector.RecordStage("retrieve", "success", 30*time.Millisecond)
	collector.RecordStage("critique", "warning", time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(collector.stageExecutionsTotal.WithLabelValues("retrieve", "success")))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.stageExecutionsTotal))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.stageDuration))
}

func TestCollector_RecordCriticDecision(t *testing.T) {
	collector := NewCollectorWithRegistry("askflow", prometheus.NewRegistry(), nil)

	collector.RecordCriticDecision("revise_retry")
	collector.RecordCriticDecision("revise_retry")
	collector.RecordCriticDecision("pass")

	assert.Equal(t, float64(2), testutil.ToFloat64(collector.criticDecisionsTotal.WithLabelValues("revise_retry")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.criticDecisionsTotal.WithLabelValues("pass")))
}

func TestCollector_ObserveCheckpointWrite(t *testing.T) {
	collector := NewCollectorWithRegistry("askflow", prometheus.NewRegistry(), nil)

	collector.ObserveCheckpointWrite("file", time.Millisecond, nil)
	collector.ObserveCheckpointWrite("file", time.Millisecond, errors.New("disk full"))

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.checkpointWritesTotal.WithLabelValues("file", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.checkpointWritesTotal.WithLabelValues("file", "error")))
}

func TestCollector_TaskAndResume(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := NewCollectorWithRegistry("askflow", reg, nil)

	collector.RecordTaskFinished("passed")
	collector.RecordResume("no_checkpoint")
	collector.RecordLLMRequest("gpt-4o-mini", time.Second, nil)
	collector.RecordCacheHit("retrieval")
	collector.RecordCacheMiss("retrieval")

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"askflow_tasks_finished_total",
		"askflow_task_resumes_total",
		"askflow_llm_requests_total",
		"askflow_llm_request_duration_seconds",
		"askflow_cache_hits_total",
		"askflow_cache_misses_total",
	} {
		assert.True(t, names[want], want)
	}
}

func TestCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewCollectorWithRegistry("dup", reg, nil)

	assert.Panics(t, func() {
		_ = NewCollectorWithRegistry("dup", reg, nil)
	})
}
