package tokenizer

// EstimatorTokenizer is a character-count-based token estimator.
// It distinguishes CJK and ASCII characters for better accuracy
// compared to a naive len/4 approach.
type EstimatorTokenizer struct{}

// NewEstimatorTokenizer creates a generic estimator.
func NewEstimatorTokenizer() *EstimatorTokenizer {
	return &EstimatorTokenizer{}
}

// runeCost is measured in twelfths of a token: CJK characters ~1.5
// chars/token, ASCII ~4 chars/token.
func runeCost(r rune) int {
	if isCJK(r) {
		return 8
	}
	return 3
}

func (e *EstimatorTokenizer) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	total := 0
	for _, r := range text {
		total += runeCost(r)
	}
	if total < 12 {
		return 1, nil
	}
	return total / 12, nil
}

func (e *EstimatorTokenizer) Truncate(text string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		return "", nil
	}
	total := 0
	for i, r := range text {
		total += runeCost(r)
		if total > maxTokens*12 {
			return text[:i], nil
		}
	}
	return text, nil
}

func (e *EstimatorTokenizer) Name() string {
	return "estimator"
}

// isCJK returns true if the rune is a CJK character.
func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || // CJK Unified Ideographs
		(r >= 0x3400 && r <= 0x4DBF) || // CJK Extension A
		(r >= 0x20000 && r <= 0x2A6DF) || // CJK Extension B
		(r >= 0xF900 && r <= 0xFAFF) || // CJK Compatibility Ideographs
		(r >= 0x3000 && r <= 0x303F) || // CJK Symbols and Punctuation
		(r >= 0xFF00 && r <= 0xFFEF) // Halfwidth and Fullwidth Forms
}
