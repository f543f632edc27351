package domain

import (
	"errors"
	"fmt"
)

// ValidationError marks input that is malformed and must be rejected
// synchronously. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// AuthError marks bad or expired credentials. The server closes the
// connection and never retries; the client must reconnect.
type AuthError struct {
	Code string
}

func (e *AuthError) Error() string {
	return "auth: " + e.Code
}

// TransientInfraError marks shared-state infrastructure (ledger, store,
// mail transport) being unreachable or throttled. Callers retry with
// backoff up to a bound, then surface to monitoring.
type TransientInfraError struct {
	Op  string
	Err error
}

func (e *TransientInfraError) Error() string {
	return fmt.Sprintf("transient: %s: %v", e.Op, e.Err)
}

func (e *TransientInfraError) Unwrap() error { return e.Err }

// DeliveryPermanentError marks a delivery that can never succeed (bounced
// or invalid address). The job moves straight to dead.
type DeliveryPermanentError struct {
	Reason string
}

func (e *DeliveryPermanentError) Error() string {
	return "permanent delivery failure: " + e.Reason
}

// IsTransient reports whether err (or anything it wraps) is a
// TransientInfraError.
func IsTransient(err error) bool {
	var t *TransientInfraError
	return errors.As(err, &t)
}

// IsPermanentDelivery reports whether err is a DeliveryPermanentError.
func IsPermanentDelivery(err error) bool {
	var p *DeliveryPermanentError
	return errors.As(err, &p)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
