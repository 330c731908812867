package critic

import (
	"testing"

	"github.com/BaSui01/askflow/types"
	"github.com/stretchr/testify/assert"
)

func TestPolicy_Map(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		verdict    types.Verdict
		retry      int
		wantStatus types.CriticStatus
		wantRetry  int
		wantReason string
	}{
		{
			name:       "pass resets counter",
			verdict:    types.Verdict{Status: types.VerdictPass, Reason: "ok"},
			retry:      1,
			wantStatus: types.StatusPass,
			wantRetry:  0,
			wantReason: "ok",
		},
		{
			name:       "rewrite with query",
			verdict:    types.Verdict{Status: types.VerdictRevise, Action: types.ActionQueryRewrite, RewriteQuery: "订单查询接口"},
			retry:      0,
			wantStatus: types.StatusReviseRewrite,
			wantRetry:  1,
		},
		{
			name:       "rewrite without query is unrecoverable",
			verdict:    types.Verdict{Status: types.VerdictRevise, Action: types.ActionQueryRewrite, RewriteQuery: "  "},
			retry:      0,
			wantStatus: types.StatusFail,
			wantRetry:  1,
			wantReason: UnrecoverableReason,
		},
		{
			name:       "redo retriever",
			verdict:    types.Verdict{Status: types.VerdictRevise, Action: types.ActionRedoRetriever, Reason: "no evidence"},
			retry:      1,
			wantStatus: types.StatusReviseRetry,
			wantRetry:  2,
			wantReason: "no evidence",
		},
		{
			name:       "stop is unrecoverable with reason",
			verdict:    types.Verdict{Status: types.VerdictFail, Action: types.ActionStop, Reason: "out of scope"},
			retry:      0,
			wantStatus: types.StatusFail,
			wantRetry:  1,
			wantReason: "unrecoverable: out of scope",
		},
		{
			name:       "ceiling beats pass",
			verdict:    types.Verdict{Status: types.VerdictPass, Reason: "ok"},
			retry:      DefaultMaxRetry,
			wantStatus: types.StatusFail,
			wantRetry:  DefaultMaxRetry,
			wantReason: RetryLimitReason,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := DefaultPolicy().Map(tt.verdict, tt.retry)
			assert.Equal(t, tt.wantStatus, got.Status())
			assert.Equal(t, tt.wantRetry, got.RetryCount)
			assert.Equal(t, tt.wantReason, got.Reason)
			if assert.NotNil(t, got.Verdict) {
				assert.Equal(t, tt.verdict, *got.Verdict)
			}
		})
	}
}

func TestPolicy_MapFailKinds(t *testing.T) {
	t.Parallel()

	p := Policy{MaxRetry: 2}

	limited := p.Map(types.Verdict{Status: types.VerdictRevise, Action: types.ActionRedoRetriever}, 2)
	fail, ok := limited.Decision.(types.Fail)
	assert.True(t, ok)
	assert.Equal(t, types.FailRetryLimit, fail.Kind)
	assert.Equal(t, RetryLimitReason, fail.Reason)

	stopped := p.Map(types.Verdict{Status: types.VerdictFail}, 0)
	fail, ok = stopped.Decision.(types.Fail)
	assert.True(t, ok)
	assert.Equal(t, types.FailUnrecoverable, fail.Kind)
}

func TestPolicy_RewriteCarriesTrimmedQuery(t *testing.T) {
	t.Parallel()

	got := DefaultPolicy().Map(types.Verdict{
		Status:       types.VerdictRevise,
		Action:       types.ActionQueryRewrite,
		RewriteQuery: "  订单列表查询接口 ",
	}, 0)
	assert.Equal(t, types.RetryWithRewrite{Query: "订单列表查询接口"}, got.Decision)
}

func TestPolicy_ZeroMaxRetryUsesDefault(t *testing.T) {
	t.Parallel()

	got := Policy{}.Map(types.Verdict{Status: types.VerdictRevise, Action: types.ActionRedoRetriever}, 1)
	assert.Equal(t, types.StatusReviseRetry, got.Status())
}
