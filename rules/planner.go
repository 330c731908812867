package rules

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/BaSui01/askflow/types"
)

// Intent labels produced by the keyword planner.
const (
	IntentSummarize = "summarize"
	IntentCompare   = "compare"
	IntentRewrite   = "rewrite"
	IntentQA        = "qa"
)

// intentRule 按顺序匹配，先命中先生效
type intentRule struct {
	intent string
	zh     []string
	en     []string
}

var intentRules = []intentRule{
	{
		intent: IntentSummarize,
		zh:     []string{"总结", "概括", "归纳", "精简一下", "提炼一下"},
		en:     []string{"summarize", "summary", "tl;dr"},
	},
	{
		intent: IntentCompare,
		zh:     []string{"对比", "比较", "区别", "差异", "不同点", "相同点"},
		en:     []string{"compare", "difference", "similarities", "vs "},
	},
	{
		intent: IntentRewrite,
		zh:     []string{"改写", "润色", "优化这段话", "换一种说法", "翻译成"},
		en:     []string{"rewrite", "paraphrase", "polish", "rephrase", "translate"},
	},
}

var taskPlans = map[string][]string{
	IntentSummarize: {"retrieve", "summarize"},
	IntentCompare:   {"retrieve", "compare"},
	IntentRewrite:   {"retrieve", "rewrite"},
	IntentQA:        {"retrieve", "answer"},
}

// Topic maps query keywords to the term that relevant documents are
// expected to contain.
type Topic struct {
	Name     string
	Keywords []string
}

// DefaultTopics 与示例语料配套的主题表，按优先级排列
func DefaultTopics() []Topic {
	return []Topic{
		{Name: "页面", Keywords: []string{"页面", "布局", "界面"}},
		{Name: "退款", Keywords: []string{"退款", "refund"}},
		{Name: "物流", Keywords: []string{"物流", "快递", "shipping"}},
		{Name: "token", Keywords: []string{"token", "令牌", "鉴权", "auth"}},
		{Name: "订单", Keywords: []string{"订单", "order"}},
	}
}

// DetectIntent 领域无关的意图识别，默认问答型
func DetectIntent(query string) string {
	lower := strings.ToLower(strings.TrimSpace(query))
	for _, r := range intentRules {
		if containsAny(query, r.zh) || containsAny(lower, r.en) {
			return r.intent
		}
	}
	return IntentQA
}

// KeywordPlanner is the offline planning collaborator.
type KeywordPlanner struct {
	topics []Topic
}

// NewKeywordPlanner 创建关键词规划器，topics 为空时使用 DefaultTopics
func NewKeywordPlanner(topics []Topic) *KeywordPlanner {
	if len(topics) == 0 {
		topics = DefaultTopics()
	}
	return &KeywordPlanner{topics: topics}
}

// DetectTopic returns the first matching topic, or types.UnknownTopic.
func (p *KeywordPlanner) DetectTopic(query string) string {
	lower := strings.ToLower(query)
	for _, t := range p.topics {
		if containsAny(lower, t.Keywords) {
			return t.Name
		}
	}
	return types.UnknownTopic
}

// Plan implements the planning collaborator.
func (p *KeywordPlanner) Plan(ctx context.Context, query string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	intent := DetectIntent(query)
	return json.Marshal(types.IntentContext{
		Topic:    p.DetectTopic(query),
		Intent:   intent,
		TaskPlan: taskPlans[intent],
	})
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
