package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type errorKind uint8

const (
	kindOther errorKind = iota
	kindNotFound
	kindConflict
	kindUnavailable
)

func kindOf(code codes.Code) errorKind {
	switch code {
	case codes.NotFound:
		return kindNotFound
	// Aborted is a lost transaction race; FailedPrecondition a failed Exists/UpdateTime guard.
	case codes.AlreadyExists, codes.Aborted, codes.FailedPrecondition, codes.OutOfRange:
		return kindConflict
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal:
		return kindUnavailable
	default:
		return kindOther
	}
}

// Error is a classified Firestore failure. It satisfies repositories.RepositoryError, which the
// service layer maps onto HTTP statuses.
type Error struct {
	op   string
	kind errorKind
	err  error
}

func (e *Error) Error() string {
	if e.op == "" {
		return e.err.Error()
	}
	return e.op + ": " + e.err.Error()
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) IsNotFound() bool    { return e != nil && e.kind == kindNotFound }
func (e *Error) IsConflict() bool    { return e != nil && e.kind == kindConflict }
func (e *Error) IsUnavailable() bool { return e != nil && e.kind == kindUnavailable }

// NotFoundError reports a missing document found without a driver error, e.g. a non-existent
// snapshot in a transactional GetAll.
func NotFoundError(op, id string) error {
	return &Error{op: op, kind: kindNotFound, err: fmt.Errorf("document %q not found", id)}
}

// WrapError classifies err for op. Cancellation and deadline errors come back as the context
// sentinels so callers can errors.Is them.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.Canceled), status.Code(err) == codes.Canceled:
		return context.Canceled
	case errors.Is(err, context.DeadlineExceeded), status.Code(err) == codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}
	var classified *Error
	if errors.As(err, &classified) {
		if classified.op == "" {
			classified.op = op
		}
		return classified
	}
	return &Error{op: op, kind: kindOf(status.Code(err)), err: err}
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}
