// Package ctxkeys 定义跨包传递的 context 键。
package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	taskIDKey contextKey = "task_id"
	stageKey  contextKey = "stage"
	roundKey  contextKey = "round"
)

// WithTaskID 设置 TaskID
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, taskIDKey, taskID)
}

// TaskID 获取 TaskID
func TaskID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(taskIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithStage 设置当前阶段
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}

// Stage 获取当前阶段
func Stage(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(stageKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithRound 设置检索轮次
func WithRound(ctx context.Context, round int) context.Context {
	return context.WithValue(ctx, roundKey, round)
}

// Round 获取检索轮次
func Round(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(roundKey).(int)
	if !ok || v <= 0 {
		return 0, false
	}
	return v, true
}
