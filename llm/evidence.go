package llm

import (
	"github.com/BaSui01/askflow/llm/tokenizer"
	"github.com/BaSui01/askflow/types"
)

// ClipEvidence 按 Token 预算截断证据文本。预算按顺序分配，
// 用尽后其余证据被丢弃；budget <= 0 表示不截断。返回副本。
func ClipEvidence(tok tokenizer.Tokenizer, hits []types.Hit, budget int) ([]types.Hit, error) {
	out := make([]types.Hit, 0, len(hits))
	if budget <= 0 || tok == nil {
		return append(out, hits...), nil
	}

	remaining := budget
	for _, h := range hits {
		if remaining <= 0 {
			break
		}
		n, err := tok.CountTokens(h.Chunk)
		if err != nil {
			return nil, err
		}
		if n > remaining {
			h.Chunk, err = tok.Truncate(h.Chunk, remaining)
			if err != nil {
				return nil, err
			}
			n = remaining
		}
		remaining -= n
		out = append(out, h)
	}
	return out, nil
}
