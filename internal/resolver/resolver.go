// Package resolver turns an utterance into a device action and, for actions
// that act on a document, the document the speaker meant.
//
// Resolution runs in two stages over one embedding of the utterance. Stage one
// finds the nearest trigger phrase across all actions. Stage two, only for
// actions that declare references, finds the nearest reference phrase of that
// action. Each stage must beat its threshold strictly.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"murmur/internal/catalog"
	"murmur/internal/embedding"
	"murmur/internal/index"
	"murmur/internal/trace"
)

const (
	DefaultActionThreshold = 0.6
	DefaultFileThreshold   = 0.5
)

// Resolution is a successful outcome. Filename is empty for actions without
// references. The trailing fields describe the winning phrases and are not
// serialized.
type Resolution struct {
	Action     string  `json:"action"`
	Output     string  `json:"output"`
	Confidence float64 `json:"confidence"`
	Filename   string  `json:"filename,omitempty"`

	Trigger     string  `json:"-"`
	ActionScore float64 `json:"-"`
	Reference   string  `json:"-"`
	FileScore   float64 `json:"-"`
}

type Option func(*Resolver)

func WithActionThreshold(t float64) Option {
	return func(r *Resolver) { r.actionThreshold = t }
}

func WithFileThreshold(t float64) Option {
	return func(r *Resolver) { r.fileThreshold = t }
}

// Resolver is immutable after New and safe for concurrent use.
type Resolver struct {
	catalog  *catalog.Catalog
	provider embedding.Provider

	actionThreshold float64
	fileThreshold   float64

	actions *index.Index
	byName  map[string]catalog.Action
	files   map[string]*index.Index
}

// New embeds every trigger and reference phrase of c. The catalog is used as
// given; callers validate it first (catalog.Load does).
func New(ctx context.Context, c *catalog.Catalog, p embedding.Provider, opts ...Option) (*Resolver, error) {
	r := &Resolver{
		catalog:         c,
		provider:        p,
		actionThreshold: DefaultActionThreshold,
		fileThreshold:   DefaultFileThreshold,
		byName:          map[string]catalog.Action{},
		files:           map[string]*index.Index{},
	}
	for _, opt := range opts {
		opt(r)
	}

	var triggers []index.Entry
	for _, a := range c.Actions {
		if _, dup := r.byName[a.Name]; dup {
			continue
		}
		r.byName[a.Name] = a
		for _, pattern := range a.Patterns {
			triggers = append(triggers, index.Entry{Label: a.Name, Phrase: pattern})
		}
	}

	var err error
	if r.actions, err = index.Build(ctx, p, triggers); err != nil {
		return nil, fmt.Errorf("building action index: %w", err)
	}

	for _, a := range c.Actions {
		if !a.HasReferences() || r.files[a.Name] != nil {
			continue
		}
		var refs []index.Entry
		for _, ref := range a.Files {
			for _, phrase := range ref.Phrases {
				refs = append(refs, index.Entry{Label: ref.Filename, Phrase: phrase})
			}
		}
		idx, err := index.Build(ctx, p, refs)
		if err != nil {
			return nil, fmt.Errorf("building reference index for %q: %w", a.Name, err)
		}
		r.files[a.Name] = idx
	}

	slog.Info("resolver ready",
		"actions", len(r.byName),
		"phrases", c.PhraseCount(),
		"model", p.Model(),
		"action_threshold", r.actionThreshold,
		"file_threshold", r.fileThreshold,
	)
	return r, nil
}

func (r *Resolver) Catalog() *catalog.Catalog { return r.catalog }

// Resolve maps utterance to an action and, when the action takes one, a
// document. Failures are always *Error.
func (r *Resolver) Resolve(ctx context.Context, utterance string) (res Resolution, err error) {
	ctx, span := trace.Tracer().Start(ctx, "resolver.Resolve")
	start := time.Now()
	defer func() {
		outcome, action := "ok", res.Action
		if rerr, ok := err.(*Error); ok {
			outcome, action = string(rerr.Kind), rerr.Action
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(
			attribute.String("resolver.outcome", outcome),
			attribute.String("resolver.action", action),
			attribute.Float64("resolver.confidence", res.Confidence),
		)
		span.End()
		recordResolution(ctx, outcome, action, time.Since(start))
	}()

	vec, err := r.embed(ctx, utterance)
	if err != nil {
		return Resolution{}, err
	}

	am, ok := r.actions.Nearest(vec)
	slog.Debug("action stage", "utterance", utterance, "trigger", am.Phrase, "action", am.Label, "score", am.Score)
	if !ok || !(am.Score > r.actionThreshold) {
		return Resolution{}, noMatchingAction()
	}
	action := r.byName[am.Label]
	res = Resolution{Action: action.Name, Trigger: am.Phrase, ActionScore: am.Score}

	if !action.HasReferences() {
		if action.HasPlaceholder() {
			return Resolution{}, templateMismatch(action.Name, "")
		}
		res.Output = action.Template
		res.Confidence = math.Min(am.Score, 1)
		return res, nil
	}

	fm, ok := r.files[action.Name].Nearest(vec)
	slog.Debug("reference stage", "action", action.Name, "phrase", fm.Phrase, "filename", fm.Label, "score", fm.Score)
	if !ok || !(fm.Score > r.fileThreshold) {
		return Resolution{}, noMatchingReference(action.Name)
	}
	if !action.HasPlaceholder() {
		return Resolution{}, templateMismatch(action.Name, fm.Label)
	}

	res.Output = action.Render(fm.Label)
	res.Filename = fm.Label
	res.Reference = fm.Phrase
	res.FileScore = fm.Score
	res.Confidence = math.Min(math.Min(am.Score, fm.Score), 1)
	return res, nil
}

// embed makes the single provider call of a resolution and checks the vector
// fits the indices.
func (r *Resolver) embed(ctx context.Context, utterance string) ([]float32, error) {
	texts := []string{utterance}
	vecs, err := r.provider.Embed(ctx, texts)
	if err != nil {
		return nil, embeddingFailure(err)
	}
	if err := embedding.CheckBatch(texts, vecs); err != nil {
		return nil, embeddingFailure(err)
	}
	if dim := r.actions.Dimensions(); dim > 0 && len(vecs[0]) != dim {
		return nil, embeddingFailure(fmt.Errorf("%w: utterance has dimension %d, index has %d",
			embedding.ErrMalformed, len(vecs[0]), dim))
	}
	return vecs[0], nil
}
