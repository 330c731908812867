package workflow

import (
	"errors"
	"testing"

	"github.com/BaSui01/askflow/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultGraph_Transitions(t *testing.T) {
	g := DefaultGraph()
	assert.Equal(t, types.StagePlan, g.Entry())

	fixed := []struct {
		from, to types.Stage
	}{
		{types.StagePlan, types.StageRetrieve},
		{types.StageRetrieve, types.StageExecute},
		{types.StageExecute, types.StageCritique},
		{types.StageRewrite, types.StageRetrieve},
		{types.StageFail, types.StageDone},
	}
	for _, tt := range fixed {
		got, err := g.Next(tt.from, nil)
		require.NoError(t, err, tt.from)
		assert.Equal(t, tt.to, got, tt.from)
	}

	routed := []struct {
		decision types.Decision
		to       types.Stage
	}{
		{types.Pass{}, types.StageDone},
		{types.RetryRetrieve{}, types.StageRetrieve},
		{types.RetryWithRewrite{Query: "q"}, types.StageRewrite},
		{types.Fail{Reason: "x"}, types.StageFail},
	}
	for _, tt := range routed {
		got, err := g.Next(types.StageCritique, tt.decision)
		require.NoError(t, err)
		assert.Equal(t, tt.to, got, tt.decision.Status())
	}

	_, err := g.Next(types.StageCritique, nil)
	assert.Error(t, err)
	_, err = g.Next(types.StageDone, nil)
	assert.Error(t, err)

	assert.Equal(t, []types.Stage{
		types.StagePlan, types.StageRetrieve, types.StageExecute,
		types.StageCritique, types.StageRewrite, types.StageFail,
	}, g.Stages())
}

func TestGraphBuilder_RejectsIncompleteTables(t *testing.T) {
	tests := []struct {
		name    string
		builder func() *GraphBuilder
		want    string
	}{
		{
			name: "missing route",
			builder: func() *GraphBuilder {
				return NewGraphBuilder().
					Edge(types.StagePlan, types.StageRetrieve).
					Edge(types.StageRetrieve, types.StageExecute).
					Edge(types.StageExecute, types.StageCritique).
					Edge(types.StageRewrite, types.StageRetrieve).
					Edge(types.StageFail, types.StageDone).
					Route(types.StageCritique, types.StatusPass, types.StageDone).
					Route(types.StageCritique, types.StatusReviseRetry, types.StageRetrieve).
					Route(types.StageCritique, types.StatusFail, types.StageFail)
			},
			want: "status revise_rewrite has no route",
		},
		{
			name: "missing edge",
			builder: func() *GraphBuilder {
				b := defaultBuilder()
				delete(b.edges, types.StageFail)
				return b
			},
			want: "stage fail has no outgoing transition",
		},
		{
			name: "terminal edge",
			builder: func() *GraphBuilder {
				return defaultBuilder().Edge(types.StageDone, types.StagePlan)
			},
			want: "terminal stage done has an outgoing edge",
		},
		{
			name: "unknown target",
			builder: func() *GraphBuilder {
				b := defaultBuilder()
				b.edges[types.StageRewrite] = "nowhere"
				return b
			},
			want: `transitions to unknown stage "nowhere"`,
		},
		{
			name: "duplicate edge",
			builder: func() *GraphBuilder {
				return defaultBuilder().Edge(types.StagePlan, types.StageExecute)
			},
			want: "stage plan already transitions to retrieve",
		},
		{
			name: "routes from two stages",
			builder: func() *GraphBuilder {
				return defaultBuilder().Route(types.StageExecute, types.StatusPass, types.StageDone)
			},
			want: "routes already leave critique",
		},
		{
			name: "unreachable stage",
			builder: func() *GraphBuilder {
				b := defaultBuilder()
				b.routes[types.StatusReviseRewrite] = types.StageRetrieve
				return b
			},
			want: "stage rewrite is unreachable from plan",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := tt.builder().Build()
			require.Error(t, err)
			assert.Nil(t, g)
			assert.True(t, errors.Is(err, ErrIncompleteGraph))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// 删除默认转移表中的任意一条转移都必须导致构建失败
func TestProperty_GraphRejectsAnyMissingTransition(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	edgeCount := len(defaultBuilder().edges)
	total := edgeCount + len(types.AllCriticStatuses())

	properties.Property("removing one transition yields ErrIncompleteGraph", prop.ForAll(
		func(idx int) bool {
			b := defaultBuilder()
			if idx < edgeCount {
				stages := []types.Stage{}
				for _, s := range types.AllStages() {
					if _, ok := b.edges[s]; ok {
						stages = append(stages, s)
					}
				}
				delete(b.edges, stages[idx])
			} else {
				delete(b.routes, types.AllCriticStatuses()[idx-edgeCount])
			}
			_, err := b.Build()
			return errors.Is(err, ErrIncompleteGraph)
		},
		gen.IntRange(0, total-1),
	))

	properties.TestingRun(t)
}
