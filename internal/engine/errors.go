package engine

import (
	"errors"
	"fmt"

	"plenario/internal/repo"
)

// NotFoundError reports a missing session, agenda, item, matter or member.
// It matches repo.ErrNotFound under errors.Is.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e NotFoundError) Is(target error) bool {
	return target == repo.ErrNotFound
}

// ValidationError reports a rejected transition. Quorum failures carry
// required, present and shortfall in Details.
type ValidationError struct {
	Message string
	Details map[string]any
}

func (e ValidationError) Error() string {
	return e.Message
}

func invalid(format string, args ...any) error {
	return ValidationError{Message: fmt.Sprintf(format, args...)}
}

// notFound turns repo.ErrNotFound into a NotFoundError naming the entity.
func notFound(err error, kind, id string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return NotFoundError{Kind: kind, ID: id}
	}
	return err
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v ValidationError
	return errors.As(err, &v)
}
