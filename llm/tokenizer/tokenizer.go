package tokenizer

// Tokenizer 是统一的 Token 计数接口.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// Truncate 返回不超过 maxTokens 的文本前缀.
	Truncate(text string, maxTokens int) (string, error)

	// Name 返回分词器的名称.
	Name() string
}

// New 返回 encoding 对应的 tiktoken 分词器；编码不可用时自动退回估算器。
// 编码数据在首次使用时才加载。
func New(encoding string) Tokenizer {
	return &fallbackTokenizer{
		primary:  NewTiktokenTokenizer(encoding),
		fallback: NewEstimatorTokenizer(),
	}
}

// fallbackTokenizer uses primary until it fails once, then sticks to the
// estimator.
type fallbackTokenizer struct {
	primary  *TiktokenTokenizer
	fallback *EstimatorTokenizer
}

func (f *fallbackTokenizer) active() Tokenizer {
	if f.primary.init() != nil {
		return f.fallback
	}
	return f.primary
}

func (f *fallbackTokenizer) CountTokens(text string) (int, error) {
	return f.active().CountTokens(text)
}

func (f *fallbackTokenizer) Truncate(text string, maxTokens int) (string, error) {
	return f.active().Truncate(text, maxTokens)
}

func (f *fallbackTokenizer) Name() string {
	return f.active().Name()
}
