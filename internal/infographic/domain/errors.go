package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExists      = errors.New("session already exists")
	ErrProjectNotFound    = errors.New("project not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrNoScript           = errors.New("no script available")
	ErrNoStructuredOutput = errors.New("no structured output in model response")
	ErrMissingCredential  = errors.New("missing provider credential")
	ErrInvalidPhase       = errors.New("invalid phase")
)

// Category classifies failures for callers.
type Category string

const (
	CategoryTransient   Category = "transient-provider"
	CategorySemantic    Category = "semantic-extraction"
	CategoryPartial     Category = "partial-batch"
	CategoryPersistence Category = "persistence-unavailable"
	CategoryAuth        Category = "auth-credential"
	CategoryValidation  Category = "validation"
)

// Error attaches a category and the failing operation to a cause.
type Error struct {
	Category Category
	Op       string
	Err      error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Category, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap categorizes err. A nil err stays nil.
func Wrap(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Category: category, Op: op, Err: err}
}

// CategoryOf resolves the category of err, falling back on the sentinel
// errors of this package. Unknown errors are reported as transient.
func CategoryOf(err error) Category {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	switch {
	case errors.Is(err, ErrNoStructuredOutput):
		return CategorySemantic
	case errors.Is(err, ErrMissingCredential), errors.Is(err, ErrPermissionDenied):
		return CategoryAuth
	case errors.Is(err, ErrNoScript), errors.Is(err, ErrInvalidPhase):
		return CategoryValidation
	}
	return CategoryTransient
}
