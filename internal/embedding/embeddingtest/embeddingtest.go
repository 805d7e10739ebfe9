// Package embeddingtest provides deterministic embedding providers for tests.
package embeddingtest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"murmur/internal/catalog"
)

// Lexicon embeds text as word counts over a fixed vocabulary split into two
// orthogonal blocks. Each block is normalized to unit length on its own, so a
// text carrying an action word and a document phrase scores 1/sqrt(2) against
// either part alone. Words outside the vocabulary are ignored; a text with no
// known words lands on a dedicated out-of-vocabulary axis.
type Lexicon struct {
	head map[string]int
	tail map[string]int
	dim  int

	mu    sync.Mutex
	calls int
	texts int
}

func NewLexicon(headWords, tailWords []string) *Lexicon {
	l := &Lexicon{head: map[string]int{}, tail: map[string]int{}}
	for _, w := range headWords {
		if _, ok := l.head[w]; !ok {
			l.head[w] = l.dim
			l.dim++
		}
	}
	for _, w := range tailWords {
		_, inHead := l.head[w]
		if _, ok := l.tail[w]; !ok && !inHead {
			l.tail[w] = l.dim
			l.dim++
		}
	}
	l.dim++ // out of vocabulary
	return l
}

// ForCatalog builds a Lexicon whose head block holds actionWords and whose
// tail block holds every word used in c's reference phrases.
func ForCatalog(c *catalog.Catalog, actionWords ...string) *Lexicon {
	seen := map[string]bool{}
	var tail []string
	for _, a := range c.Actions {
		for _, ref := range a.Files {
			for _, p := range ref.Phrases {
				for _, w := range Tokenize(p) {
					if !seen[w] {
						seen[w] = true
						tail = append(tail, w)
					}
				}
			}
		}
	}
	sort.Strings(tail)
	return NewLexicon(actionWords, tail)
}

// DefaultCatalog is the Lexicon used against catalog.Default.
func DefaultCatalog() *Lexicon {
	return ForCatalog(catalog.Default(), "print", "generate", "hard", "copy", "publish", "upload", "scan")
}

func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func (l *Lexicon) Model() string   { return "lexicon" }
func (l *Lexicon) Dimensions() int { return l.dim }

func (l *Lexicon) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.calls++
	l.texts += len(texts)
	l.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = l.vector(t)
	}
	return out, nil
}

func (l *Lexicon) vector(text string) []float32 {
	counts := make([]float64, l.dim)
	var headHit, tailHit bool
	for _, w := range Tokenize(text) {
		if i, ok := l.head[w]; ok {
			counts[i]++
			headHit = true
		} else if i, ok := l.tail[w]; ok {
			counts[i]++
			tailHit = true
		}
	}

	vec := make([]float32, l.dim)
	if !headHit && !tailHit {
		vec[l.dim-1] = 1
		return vec
	}
	normalize := func(idx map[string]int) {
		var sum float64
		for _, i := range idx {
			sum += counts[i] * counts[i]
		}
		if sum == 0 {
			return
		}
		norm := math.Sqrt(sum)
		for _, i := range idx {
			vec[i] = float32(counts[i] / norm)
		}
	}
	normalize(l.head)
	normalize(l.tail)
	return vec
}

// Calls is the number of Embed invocations so far.
func (l *Lexicon) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// Texts is the number of texts embedded so far.
func (l *Lexicon) Texts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.texts
}

// Static returns fixed vectors per text and Fallback for anything else.
type Static struct {
	Vectors  map[string][]float32
	Fallback []float32
}

func (s Static) Model() string { return "static" }

func (s Static) Dimensions() int { return len(s.Fallback) }

func (s Static) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := s.Vectors[t]
		if !ok {
			if s.Fallback == nil {
				return nil, fmt.Errorf("static embedder: no vector for %q", t)
			}
			v = s.Fallback
		}
		out[i] = v
	}
	return out, nil
}

// Func adapts a function to the Provider interface.
type Func func(ctx context.Context, texts []string) ([][]float32, error)

func (f Func) Model() string   { return "func" }
func (f Func) Dimensions() int { return 0 }

func (f Func) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return f(ctx, texts)
}
