package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BaSui01/askflow/internal/database"
	"github.com/BaSui01/askflow/types"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleCheckpoint(taskID string, next types.Stage) *Checkpoint {
	created := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	mem := types.NewTaskMemory(taskID, "查询订单接口说明", created)
	mem.Intent = &types.IntentContext{Topic: "订单", Intent: "qa", TaskPlan: []string{"检索", "回答"}}
	mem.Retrieval.Hits = []types.Hit{{ID: "orders-api-001", Title: "订单查询接口", Chunk: "GET /api/orders/{order_id} <json>", Score: 0.75}}
	input, _ := types.NewSnapshot(map[string]any{"query": "查询订单接口说明", "top_k": 3})
	mem.Trace = []types.TraceEntry{{
		Seq:        1,
		Stage:      types.StagePlan,
		Tool:       "planner",
		Input:      input,
		Status:     types.TraceSuccess,
		NextStep:   types.StageRetrieve,
		RecordedAt: created.Add(time.Second),
	}}

	state := types.NewTaskState(taskID, "查询订单接口说明")
	state.Intent = mem.Intent.Clone()
	state.Retrieval = mem.Retrieval.Clone()
	state.TraceCount = 1
	state.Route = next

	return &Checkpoint{
		TaskID:   taskID,
		LastStep: types.StageRetrieve,
		NextStep: next,
		State:    *state,
		Memory:   *mem,
	}
}

func storeBackends(t *testing.T) map[string]Store {
	t.Helper()

	fileStore, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	pool, err := database.Open(database.Config{Driver: "sqlite"}, zap.NewNop())
	require.NoError(t, err)
	sqlStore, err := NewSQLStore(pool, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlStore.Close() })

	return map[string]Store{
		"file":     fileStore,
		"redis":    NewRedisStore(client, "test:", 0, nil),
		"database": sqlStore,
	}
}

func TestStore_SaveLoadOverwrite(t *testing.T) {
	for name, store := range storeBackends(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Load(ctx, "task-1")
			assert.ErrorIs(t, err, ErrNotFound)

			first := sampleCheckpoint("task-1", types.StageExecute)
			require.NoError(t, store.Save(ctx, first))

			loaded, err := store.Load(ctx, "task-1")
			require.NoError(t, err)
			assert.Equal(t, first, loaded)

			// 同一任务只保留最新一份
			second := sampleCheckpoint("task-1", types.StageCritique)
			second.LastStep = types.StageExecute
			second.State.Answer = "draft"
			require.NoError(t, store.Save(ctx, second))

			loaded, err = store.Load(ctx, "task-1")
			require.NoError(t, err)
			assert.Equal(t, second, loaded)

			require.NoError(t, store.Delete(ctx, "task-1"))
			require.NoError(t, store.Delete(ctx, "task-1"))
			_, err = store.Load(ctx, "task-1")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestFileStore_WritesReadableJSON(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(context.Background(), sampleCheckpoint("task-json", types.StageExecute)))

	data, err := os.ReadFile(filepath.Join(dir, "task-json.json"))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, `"task_id": "task-json"`)
	assert.Contains(t, content, `"next_step": "execute"`)
	assert.Contains(t, content, "查询订单接口说明")
	assert.Contains(t, content, "<json>")
}

func TestFileStore_RejectsPathTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, id := range []string{"", ".", "..", "../escape", "a/b"} {
		cp := sampleCheckpoint("x", types.StageExecute)
		cp.TaskID = id
		assert.ErrorIs(t, store.Save(ctx, cp), ErrInvalidTaskID, id)
		_, err := store.Load(ctx, id)
		assert.ErrorIs(t, err, ErrInvalidTaskID, id)
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{"task_id": "bro`), 0o644))

	_, err = store.Load(context.Background(), "broken")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestFileStore_Closed(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.Save(context.Background(), sampleCheckpoint("t", types.StageExecute)), ErrStoreClosed)
	_, err = store.Load(context.Background(), "t")
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestRedisStore_TTL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client, "", time.Hour, nil)
	require.NoError(t, store.Save(context.Background(), sampleCheckpoint("ttl", types.StageExecute)))

	assert.True(t, mr.Exists("askflow:checkpoint:ttl"))
	assert.Equal(t, time.Hour, mr.TTL("askflow:checkpoint:ttl"))
}

func TestNewStore_Factory(t *testing.T) {
	store, err := NewStore(Config{Type: StoreTypeFile, Dir: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	dbStore, err := NewStore(Config{Type: StoreTypeDatabase, Database: database.Config{Driver: "sqlite"}}, nil)
	require.NoError(t, err)
	require.IsType(t, &SQLStore{}, dbStore)
	assert.NoError(t, dbStore.(*SQLStore).Ping(context.Background()))
	require.NoError(t, dbStore.Close())

	_, err = NewStore(Config{Type: StoreTypeRedis}, nil)
	assert.Error(t, err, "redis store without a client")

	_, err = NewStore(Config{Type: "s3"}, nil)
	assert.Error(t, err)
}

func TestNewStore_RedisSharesClient(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store, err := NewStore(Config{Type: StoreTypeRedis, KeyPrefix: "shared:", TTL: time.Minute, Client: client}, nil)
	require.NoError(t, err)
	require.IsType(t, &RedisStore{}, store)

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, sampleCheckpoint("factory", types.StageRetrieve)))
	assert.True(t, mr.Exists("shared:checkpoint:factory"))
	assert.Equal(t, time.Minute, mr.TTL("shared:checkpoint:factory"))

	require.NoError(t, store.Close())
	assert.NoError(t, client.Ping(ctx).Err())
}
