package errs

import (
	"errors"
	"fmt"
)

// Sentinel kinds shared by the orchestrators and the reconciler. Callers
// branch with errors.Is; services wrap these with fmt.Errorf("...: %w", ...)
// to preserve the kind while adding context.
var (
	// ErrStateConflict marks an illegal state transition or a violated
	// uniqueness precondition. The operation is a no-op.
	ErrStateConflict = errors.New("state conflict")

	// ErrValidation marks malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a missing referenced record.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEvent is the successful no-op signal from the webhook
	// idempotency check. It is not a failure.
	ErrDuplicateEvent = errors.New("duplicate event")
)

// GatewayError wraps any failure crossing the payment-provider boundary,
// including call timeouts. Provider-specific error types never leak past
// the adapter.
type GatewayError struct {
	Provider string
	Op       string
	Err      error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Gateway builds a GatewayError for the given provider operation.
func Gateway(provider, op string, err error) *GatewayError {
	return &GatewayError{Provider: provider, Op: op, Err: err}
}

// IsGateway reports whether err crossed the provider boundary.
func IsGateway(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}

// Validationf builds a wrapped validation error.
func Validationf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidation)...)
}

// Conflictf builds a wrapped state-conflict error.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrStateConflict)...)
}
