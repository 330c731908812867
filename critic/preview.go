package critic

import "github.com/BaSui01/askflow/types"

// DefaultPreviewSize bounds how many hits the judge sees.
const DefaultPreviewSize = 3

// Preview returns at most n leading hits as a copy. n <= 0 uses
// DefaultPreviewSize.
func Preview(hits []types.Hit, n int) []types.Hit {
	if n <= 0 {
		n = DefaultPreviewSize
	}
	if len(hits) < n {
		n = len(hits)
	}
	out := make([]types.Hit, n)
	copy(out, hits[:n])
	return out
}
