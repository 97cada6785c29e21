package services

import (
	"errors"
	"fmt"

	"github.com/vnshop/api/internal/repositories"
)

var (
	// ErrNotFound indicates a referenced entity does not exist or is not visible to the caller.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition indicates the current status does not allow the operation.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInsufficientStock indicates a requested quantity exceeds the variant stock.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidSignature indicates a payment callback failed its integrity check.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a duplicate code, email, slug or variant.
	ErrConflict = errors.New("conflict")
	// ErrForbidden indicates the caller does not own the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrUnavailable indicates a backing store could not be reached.
	ErrUnavailable = errors.New("unavailable")
)

// FieldError is a user facing failure. Message is safe to return to clients and Field, when set,
// names the offending input.
type FieldError struct {
	Kind    error
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%v: %s (%s)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

func (e *FieldError) Unwrap() error { return e.Kind }

func failure(kind error, message string) error {
	return &FieldError{Kind: kind, Message: message}
}

func fieldFailure(kind error, field, message string) error {
	return &FieldError{Kind: kind, Field: field, Message: message}
}

func invalidField(field, message string) error {
	return fieldFailure(ErrValidation, field, message)
}

func notFound(message string) error {
	return failure(ErrNotFound, message)
}

// mapRepositoryError translates repository failures into service sentinels. notFoundMessage is
// used when the repository reports a missing document.
func mapRepositoryError(err error, notFoundMessage string) error {
	if err == nil {
		return nil
	}
	var fieldErr *FieldError
	if errors.As(err, &fieldErr) {
		return err
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			if notFoundMessage != "" {
				return notFound(notFoundMessage)
			}
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return err
}

func isRepositoryNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isRepositoryConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
