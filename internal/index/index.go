// Package index holds embedded phrases and answers nearest-neighbour queries
// over them by cosine similarity.
package index

import (
	"context"
	"fmt"

	"murmur/internal/embedding"
)

// Entry is one phrase to index. Label is what a match resolves to; several
// entries may share a label.
type Entry struct {
	Label  string
	Phrase string
}

// Match is the best-scoring entry for a query.
type Match struct {
	Label  string
	Phrase string
	Score  float64
}

// Index is immutable once built and safe for concurrent use.
type Index struct {
	entries []Entry
	vectors [][]float32
}

// Build embeds every phrase in one batched call. Entry order is kept and
// decides ties in Nearest.
func Build(ctx context.Context, p embedding.Provider, entries []Entry) (*Index, error) {
	idx := &Index{entries: entries}
	if len(entries) == 0 {
		return idx, nil
	}
	phrases := make([]string, len(entries))
	for i, e := range entries {
		phrases[i] = e.Phrase
	}
	vecs, err := p.Embed(ctx, phrases)
	if err != nil {
		return nil, fmt.Errorf("embedding %d phrases: %w", len(phrases), err)
	}
	if err := embedding.CheckBatch(phrases, vecs); err != nil {
		return nil, err
	}
	idx.vectors = vecs
	return idx, nil
}

func (x *Index) Len() int { return len(x.entries) }

// Dimensions is the vector size of the indexed phrases, 0 when empty.
func (x *Index) Dimensions() int {
	if len(x.vectors) == 0 {
		return 0
	}
	return len(x.vectors[0])
}

// Nearest returns the entry most similar to vec. The earliest entry wins a
// tie. ok is false only for an empty index.
func (x *Index) Nearest(vec []float32) (m Match, ok bool) {
	for i, v := range x.vectors {
		score := embedding.CosineSimilarity(vec, v)
		if !ok || score > m.Score {
			m = Match{Label: x.entries[i].Label, Phrase: x.entries[i].Phrase, Score: score}
			ok = true
		}
	}
	return m, ok
}
