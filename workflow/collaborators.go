package workflow

import (
	"context"
	"encoding/json"

	"github.com/BaSui01/askflow/types"
)

// Planner produces an intent context for a query. The payload is parsed
// by the planner node; unparseable output falls back to a default intent.
type Planner interface {
	Plan(ctx context.Context, query string) (json.RawMessage, error)
}

// Retriever returns ranked evidence. It must be idempotent per
// (query, topK) within a session.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]types.Hit, error)
}

// Judge returns a raw verdict payload for a draft answer.
type Judge interface {
	Judge(ctx context.Context, req types.JudgeRequest) (json.RawMessage, error)
}

// Generator drafts an answer from evidence.
type Generator interface {
	Generate(ctx context.Context, req types.GenerateRequest) (string, error)
}
