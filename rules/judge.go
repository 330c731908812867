package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/askflow/critic"
	"github.com/BaSui01/askflow/types"
)

// Judge is the offline judgment collaborator.
type Judge struct{}

// NewJudge 创建规则评审
func NewJudge() *Judge {
	return &Judge{}
}

// Judge implements the judgment collaborator.
func (j *Judge) Judge(ctx context.Context, req types.JudgeRequest) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return critic.EncodeVerdict(j.Evaluate(req)), nil
}

// Evaluate returns the verdict for req.
func (j *Judge) Evaluate(req types.JudgeRequest) types.Verdict {
	if len(req.Evidence) == 0 {
		return types.Verdict{
			Status: types.VerdictRevise,
			Reason: "no evidence retrieved",
			Action: types.ActionRedoRetriever,
		}
	}

	topic := strings.TrimSpace(req.Intent.Topic)
	if topic != "" && topic != types.UnknownTopic && !covers(req.Evidence[0], topic) {
		if strings.EqualFold(strings.TrimSpace(req.Query), topic) {
			return types.Verdict{
				Status: types.VerdictFail,
				Reason: fmt.Sprintf("evidence still does not cover topic %q", topic),
				Action: types.ActionStop,
			}
		}
		return types.Verdict{
			Status:       types.VerdictRevise,
			Reason:       fmt.Sprintf("top evidence %q does not cover topic %q", req.Evidence[0].Title, topic),
			Action:       types.ActionQueryRewrite,
			RewriteQuery: topic,
		}
	}

	if strings.TrimSpace(req.Draft) == "" {
		return types.Verdict{
			Status: types.VerdictRevise,
			Reason: "draft answer is empty",
			Action: types.ActionRedoRetriever,
		}
	}

	return types.Verdict{
		Status: types.VerdictPass,
		Reason: "evidence matches the query topic",
	}
}

func covers(h types.Hit, topic string) bool {
	topic = strings.ToLower(topic)
	return strings.Contains(strings.ToLower(h.Title), topic) ||
		strings.Contains(strings.ToLower(h.Chunk), topic)
}
