package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Provider generates vector embeddings for text. Embed returns one vector per
// input, in input order, and must accept empty strings.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimensions() int
}

// ErrMalformed reports a provider response that does not line up with its
// input.
var ErrMalformed = errors.New("malformed embedding response")

// CheckBatch verifies that vecs holds one non-empty vector of finite values per
// text and that all vectors share a dimension.
func CheckBatch(texts []string, vecs [][]float32) error {
	if len(vecs) != len(texts) {
		return fmt.Errorf("%w: %d vectors for %d texts", ErrMalformed, len(vecs), len(texts))
	}
	dim := -1
	for i, v := range vecs {
		if len(v) == 0 {
			return fmt.Errorf("%w: empty vector at index %d", ErrMalformed, i)
		}
		for j, x := range v {
			if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
				return fmt.Errorf("%w: non-finite value %v at vector %d, component %d", ErrMalformed, x, i, j)
			}
		}
		if dim == -1 {
			dim = len(v)
		} else if len(v) != dim {
			return fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrMalformed, i, len(v), dim)
		}
	}
	return nil
}
