package rules

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/askflow/types"
)

// maxLinesPerHit bounds how much of each chunk the template quotes.
const maxLinesPerHit = 3

// TemplateGenerator is the offline answer generation collaborator.
type TemplateGenerator struct{}

// NewTemplateGenerator 创建模板生成器
func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{}
}

// Generate implements the generation collaborator. An empty evidence list
// still yields a draft.
func (g *TemplateGenerator) Generate(ctx context.Context, req types.GenerateRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(req.Evidence) == 0 {
		return fmt.Sprintf("未找到与“%s”相关的资料。", req.Query), nil
	}

	var b strings.Builder
	switch req.Intent.Intent {
	case IntentSummarize:
		b.WriteString("资料要点总结：\n")
	case IntentCompare:
		b.WriteString("相关资料对比：\n")
	default:
		fmt.Fprintf(&b, "关于“%s”，检索到以下资料：\n", req.Query)
	}
	for i, h := range req.Evidence {
		fmt.Fprintf(&b, "%d. %s\n", i+1, h.Title)
		for _, line := range leadingLines(h.Chunk, maxLinesPerHit) {
			fmt.Fprintf(&b, "   %s\n", line)
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func leadingLines(s string, n int) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == n {
			break
		}
	}
	return out
}
