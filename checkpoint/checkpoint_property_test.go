package checkpoint

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/BaSui01/askflow/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// 任意检查点经文件存储保存再加载后与原值完全一致。
func TestProperty_CheckpointRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	stages := types.AllStages()

	properties.Property("save then load preserves the checkpoint", prop.ForAll(
		func(taskID, query, answer string, round int, score float64, retry int, next types.Stage, withCritic bool) bool {
			ctx := context.Background()
			cp := sampleCheckpoint(taskID, next)
			cp.State.UserQuery = query
			cp.State.Answer = answer
			cp.Memory.Meta.UserQuery = query
			cp.Memory.Retrieval.Round = round
			cp.Memory.Retrieval.Hits[0].Score = score
			cp.Memory.Meta.CreatedAt = time.Unix(int64(round)*1000, 0).UTC()
			if withCritic {
				cp.Memory.Critic = &types.CriticResult{
					Decision:   types.RetryWithRewrite{Query: query},
					Reason:     "off topic",
					RetryCount: retry,
					Verdict:    &types.Verdict{Status: types.VerdictRevise, Action: types.ActionQueryRewrite, RewriteQuery: query},
				}
				cp.State.Critic = cp.Memory.Critic.Clone()
				cp.Memory.RetrievalHistory = []types.RetrievalRound{{
					Round:  round,
					Query:  query,
					Source: types.SourceUser,
					Critic: cp.Memory.Critic.Clone(),
				}}
			}

			if err := store.Save(ctx, cp); err != nil {
				t.Logf("save failed: %v", err)
				return false
			}
			loaded, err := store.Load(ctx, taskID)
			if err != nil {
				t.Logf("load failed: %v", err)
				return false
			}
			return reflect.DeepEqual(cp, loaded)
		},
		gen.Identifier(),
		gen.AlphaString(),
		gen.AlphaString(),
		gen.IntRange(1, 50),
		gen.Float64Range(0, 1),
		gen.IntRange(0, 5),
		gen.IntRange(0, len(stages)-1).Map(func(i int) types.Stage { return stages[i] }),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
