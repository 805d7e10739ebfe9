// Package history keeps a log of resolution outcomes.
package history

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"murmur/internal/db"
	"murmur/internal/resolver"
)

// Sources of a resolution.
const (
	SourceHTTP      = "http"
	SourceWebSocket = "websocket"
	SourceTelegram  = "telegram"
	SourceCLI       = "cli"
)

// Entry is one recorded resolution attempt. Action, Output, Filename and
// Confidence are set on success; ErrorKind and ErrorMessage on failure.
type Entry struct {
	ID           string    `json:"id"`
	Source       string    `json:"source"`
	Utterance    string    `json:"utterance"`
	Action       string    `json:"action,omitempty"`
	Output       string    `json:"output,omitempty"`
	Filename     string    `json:"filename,omitempty"`
	Confidence   float64   `json:"confidence,omitempty"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store is safe to use as a nil pointer, in which case nothing is recorded.
type Store struct {
	q   *db.Queries
	now func() time.Time
}

func NewStore(database *db.DB) *Store {
	return &Store{q: db.New(database.Conn()), now: time.Now}
}

// Record appends the outcome of resolving utterance. resErr is the error
// returned by Resolve, if any.
func (s *Store) Record(ctx context.Context, source, utterance string, res resolver.Resolution, resErr error) error {
	if s == nil {
		return nil
	}
	arg := db.InsertResolutionParams{
		ID:        uuid.NewString(),
		Source:    source,
		Utterance: utterance,
		CreatedAt: s.now().UTC(),
	}
	if resErr != nil {
		kind := "internal"
		var rerr *resolver.Error
		if errors.As(resErr, &rerr) {
			kind = string(rerr.Kind)
			arg.Action = nullString(rerr.Action)
		}
		arg.ErrorKind = nullString(kind)
		arg.ErrorMessage = nullString(resErr.Error())
	} else {
		arg.Action = nullString(res.Action)
		arg.Output = nullString(res.Output)
		arg.Filename = nullString(res.Filename)
		arg.Confidence = sql.NullFloat64{Float64: res.Confidence, Valid: true}
	}
	return s.q.InsertResolution(ctx, arg)
}

// List returns up to limit entries, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if s == nil {
		return nil, nil
	}
	rows, err := s.q.ListResolutions(ctx, int64(limit))
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, Entry{
			ID:           r.ID,
			Source:       r.Source,
			Utterance:    r.Utterance,
			Action:       r.Action.String,
			Output:       r.Output.String,
			Filename:     r.Filename.String,
			Confidence:   r.Confidence.Float64,
			ErrorKind:    r.ErrorKind.String,
			ErrorMessage: r.ErrorMessage.String,
			CreatedAt:    r.CreatedAt,
		})
	}
	return entries, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
