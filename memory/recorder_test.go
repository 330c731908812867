package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BaSui01/askflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_RecordsOrderedEntries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewInMemoryStore()
	require.NoError(t, store.Put(ctx, testMemory("task-r")))

	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.FixedZone("CST", 8*3600))
	rec := NewRecorder(store, nil).WithClock(func() time.Time { return fixed })

	first, err := rec.Record(ctx, "task-r", Record{
		Stage:  types.StageRetrieve,
		Tool:   "retriever",
		Input:  map[string]any{"query": "订单", "top_k": 3},
		Output: []types.Hit{{ID: "a"}},
		Next:   types.StageExecute,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Seq)
	assert.Equal(t, types.TraceSuccess, first.Status)
	assert.JSONEq(t, `{"query":"订单","top_k":3}`, string(first.Input))
	assert.Equal(t, fixed.UTC(), first.RecordedAt)

	second, err := rec.Record(ctx, "task-r", Record{
		Stage:       types.StageCritique,
		Tool:        "critic",
		Err:         errors.New("judge unavailable"),
		CriticRound: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Seq)
	assert.Equal(t, types.TraceError, second.Status)
	assert.Equal(t, "judge unavailable", second.Error)
	assert.Nil(t, second.Output)

	trace, err := rec.Trace(ctx, "task-r")
	require.NoError(t, err)
	assert.Equal(t, []types.TraceEntry{first, second}, trace)
}

func TestRecorder_RejectsUnknownStageAndMissingTask(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rec := NewRecorder(NewInMemoryStore(), nil)

	_, err := rec.Record(ctx, "x", Record{Stage: "bogus"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = rec.Record(ctx, "x", Record{Stage: types.StagePlan})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = rec.Record(ctx, "x", Record{Stage: types.StagePlan, Input: make(chan int)})
	assert.Error(t, err)
}

func TestRecorder_WarningKeepsDetail(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewInMemoryStore()
	require.NoError(t, store.Put(ctx, testMemory("task-w")))

	entry, err := NewRecorder(store, nil).Record(ctx, "task-w", Record{
		Stage:  types.StageCritique,
		Tool:   "critic",
		Status: types.TraceWarning,
		Err:    errors.New("no JSON object in critic output"),
		Next:   types.StageRetrieve,
	})
	require.NoError(t, err)
	assert.Equal(t, types.TraceWarning, entry.Status)
	assert.Equal(t, "no JSON object in critic output", entry.Error)
}
