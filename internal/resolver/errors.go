package resolver

import (
	"fmt"

	"murmur/internal/catalog"
)

// Kind classifies a resolution failure.
type Kind string

const (
	KindNoMatchingAction    Kind = "no_matching_action"
	KindNoMatchingReference Kind = "no_matching_reference"
	KindTemplateMismatch    Kind = "template_mismatch"
	KindEmbeddingFailure    Kind = "embedding_failure"
)

// Error is returned by Resolve for every failed resolution. Action is set
// once stage one has picked an action.
type Error struct {
	Kind    Kind
	Action  string
	Message string
	Err     error
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrNoMatchingAction    = &Error{Kind: KindNoMatchingAction}
	ErrNoMatchingReference = &Error{Kind: KindNoMatchingReference}
	ErrTemplateMismatch    = &Error{Kind: KindTemplateMismatch}
	ErrEmbeddingFailure    = &Error{Kind: KindEmbeddingFailure}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func noMatchingAction() *Error {
	return &Error{Kind: KindNoMatchingAction, Message: "no matching action found"}
}

func noMatchingReference(action string) *Error {
	return &Error{
		Kind:    KindNoMatchingReference,
		Action:  action,
		Message: "no file matched for action: " + action,
	}
}

func templateMismatch(action, filename string) *Error {
	msg := fmt.Sprintf("template of action %q has no %s placeholder for %s", action, catalog.Placeholder, filename)
	if filename == "" {
		msg = fmt.Sprintf("template of action %q expects a file but the action declares none", action)
	}
	return &Error{Kind: KindTemplateMismatch, Action: action, Message: msg}
}

func embeddingFailure(err error) *Error {
	return &Error{Kind: KindEmbeddingFailure, Message: "embedding utterance", Err: err}
}
