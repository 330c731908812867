package rag

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/BaSui01/askflow/types"
	"go.uber.org/zap"
)

// KeywordRetrieverConfig BM25 参数
type KeywordRetrieverConfig struct {
	K1 float64 `json:"k1"` // 词频饱和参数 (1.2-2.0)
	B  float64 `json:"b"`  // 长度归一化参数 (0.75)
	// 标题命中权重，标题词按该倍数计入词频
	TitleBoost int     `json:"title_boost"`
	MinScore   float64 `json:"min_score"`
}

// DefaultKeywordRetrieverConfig 返回默认参数
func DefaultKeywordRetrieverConfig() KeywordRetrieverConfig {
	return KeywordRetrieverConfig{
		K1:         1.5,
		B:          0.75,
		TitleBoost: 2,
		MinScore:   0,
	}
}

type indexedDoc struct {
	doc   Document
	terms map[string]int
	len   int
}

// KeywordRetriever 关键词检索器（BM25）
//
// 结果按分数降序、ID 升序排列，同一输入总是得到同一输出。
type KeywordRetriever struct {
	config    KeywordRetrieverConfig
	mu        sync.RWMutex
	docs      []indexedDoc
	idf       map[string]float64
	avgDocLen float64
	logger    *zap.Logger
}

// NewKeywordRetriever 创建关键词检索器并索引 docs
func NewKeywordRetriever(config KeywordRetrieverConfig, docs []Document, logger *zap.Logger) *KeywordRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &KeywordRetriever{
		config: config,
		logger: logger.With(zap.String("component", "keyword_retriever")),
	}
	r.Index(docs)
	return r
}

// Index 替换索引中的全部文档
func (r *KeywordRetriever) Index(docs []Document) {
	indexed := make([]indexedDoc, 0, len(docs))
	termDocCount := make(map[string]int)
	totalLen := 0

	boost := r.config.TitleBoost
	if boost < 1 {
		boost = 1
	}
	for _, d := range docs {
		freq := make(map[string]int)
		n := 0
		for _, t := range Tokenize(d.Text) {
			freq[t]++
			n++
		}
		for _, t := range Tokenize(d.Title) {
			freq[t] += boost
			n += boost
		}
		for t := range freq {
			termDocCount[t]++
		}
		totalLen += n
		indexed = append(indexed, indexedDoc{doc: d, terms: freq, len: n})
	}

	idf := make(map[string]float64, len(termDocCount))
	N := float64(len(indexed))
	for term, df := range termDocCount {
		idf[term] = math.Log((N-float64(df)+0.5)/(float64(df)+0.5) + 1.0)
	}

	r.mu.Lock()
	r.docs = indexed
	r.idf = idf
	r.avgDocLen = 0
	if len(indexed) > 0 {
		r.avgDocLen = float64(totalLen) / float64(len(indexed))
	}
	r.mu.Unlock()

	r.logger.Info("documents indexed", zap.Int("count", len(indexed)))
}

// Retrieve 返回与 query 最相关的至多 topK 条证据
func (r *KeywordRetriever) Retrieve(ctx context.Context, query string, topK int) ([]types.Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	queryTerms := uniqueTerms(Tokenize(query))
	hits := make([]types.Hit, 0)
	for _, d := range r.docs {
		score := r.score(queryTerms, d)
		if score <= r.config.MinScore {
			continue
		}
		hits = append(hits, types.Hit{
			ID:    d.doc.ID,
			Title: d.doc.Title,
			Chunk: strings.TrimSpace(d.doc.Text),
			Score: math.Round(score*1e4) / 1e4,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}

	r.logger.Debug("keyword retrieval",
		zap.String("query", query),
		zap.Int("top_k", topK),
		zap.Int("hits", len(hits)),
	)
	return hits, nil
}

func (r *KeywordRetriever) score(queryTerms []string, d indexedDoc) float64 {
	if r.avgDocLen == 0 {
		return 0
	}
	k1, b := r.config.K1, r.config.B
	docLen := float64(d.len)

	score := 0.0
	for _, q := range queryTerms {
		tf, ok := d.terms[q]
		if !ok {
			continue
		}
		numerator := float64(tf) * (k1 + 1.0)
		denominator := float64(tf) + k1*(1.0-b+b*(docLen/r.avgDocLen))
		score += r.idf[q] * (numerator / denominator)
	}
	return score
}

// Tokenize 分词：英文与数字按连续片段小写切分，中日韩文字按相邻二元组切分，
// 单个汉字片段保留为一元词
func Tokenize(text string) []string {
	var (
		tokens []string
		word   []rune
		han    []rune
	)
	flushWord := func() {
		if len(word) > 0 {
			tokens = append(tokens, strings.ToLower(string(word)))
			word = word[:0]
		}
	}
	flushHan := func() {
		switch {
		case len(han) == 1:
			tokens = append(tokens, string(han))
		case len(han) > 1:
			for i := 0; i+1 < len(han); i++ {
				tokens = append(tokens, string(han[i:i+2]))
			}
		}
		han = han[:0]
	}

	for _, c := range text {
		switch {
		case unicode.Is(unicode.Han, c):
			flushWord()
			han = append(han, c)
		case unicode.IsLetter(c) || unicode.IsDigit(c):
			flushHan()
			word = append(word, c)
		default:
			flushWord()
			flushHan()
		}
	}
	flushWord()
	flushHan()
	return tokens
}

func uniqueTerms(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := terms[:0:0]
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
