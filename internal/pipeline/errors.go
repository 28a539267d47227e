package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies a submission failure by the step that produced it, so the
// HTTP layer can pick a status code without inspecting backend errors.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindStorage     Kind = "storage"
	KindQueue       Kind = "queue"
	KindPersistence Kind = "persistence"
)

type Error struct {
	Kind Kind
	Step string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind carried by err, or the empty string when err did
// not come out of the pipeline.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

func invalid(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Step: "validate", Err: fmt.Errorf(format, args...)}
}
