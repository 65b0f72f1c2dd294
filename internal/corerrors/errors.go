// Package corerrors defines the stable error taxonomy shared by every
// subsystem in the lead-to-revenue pipeline.
package corerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Type groups errors the way subsystem boundaries are expected to
// pattern-match on them.
type Type string

const (
	TypeValidation  Type = "VALIDATION_ERROR"
	TypeComputation Type = "COMPUTATION_ERROR"
	TypeCapacity    Type = "CAPACITY_EXHAUSTED"
	TypeNoPlatform  Type = "NO_ELIGIBLE_PLATFORM"
	TypeTransport   Type = "TRANSPORT_ERROR"
	TypeLedger      Type = "LEDGER_INVARIANT_VIOLATION"
	TypeInternal    Type = "INTERNAL_ERROR"
)

// Code is a stable, machine-checkable identifier for a specific error
// condition, independent of its human-readable message.
type Code string

const (
	CodeMalformedEvent      Code = "malformed_event"
	CodeMissingSlot         Code = "missing_required_slot"
	CodeWeightMismatch      Code = "weight_sum_mismatch"
	CodeNegativeComponent   Code = "negative_component_score"
	CodeCapacityExhausted   Code = "capacity_exhausted"
	CodeNoEligiblePlatform  Code = "no_eligible_platform"
	CodeTransportTimeout    Code = "transport_timeout"
	CodeTransport5xx        Code = "transport_5xx"
	CodeTransport4xx        Code = "transport_4xx"
	CodeTransportMalformed  Code = "transport_malformed_response"
	CodeLedgerInvalidTrans  Code = "invalid_ledger_transition"
	CodeLedgerConservation  Code = "ledger_conservation_violated"
	CodeInternal            Code = "internal_error"
)

// CoreError is the single error type returned across subsystem
// boundaries. It carries enough structure for callers to decide
// whether to retry, how to log, and what to surface to an inbound
// caller, mirroring the taxonomy in spec §7.
type CoreError struct {
	Type       Type
	Code       Code
	Message    string
	Service    string
	Operation  string
	HTTPStatus int
	Retryable  bool
	Cause      error
}

func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Type, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Code, e.Message)
}

func (e *CoreError) Unwrap() error { return e.Cause }

// IsRetryable reports whether err is a CoreError marked retryable.
func IsRetryable(err error) bool {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// CodeOf extracts the Code from err, or "" if err is not a CoreError.
func CodeOf(err error) Code {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

func newErr(typ Type, code Code, status int, retryable bool, service, op, msg string, cause error) *CoreError {
	return &CoreError{
		Type:       typ,
		Code:       code,
		Message:    msg,
		Service:    service,
		Operation:  op,
		HTTPStatus: status,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// Validation builds a non-retryable input validation error (§7).
func Validation(service, op string, code Code, msg string, cause error) *CoreError {
	return newErr(TypeValidation, code, http.StatusBadRequest, false, service, op, msg, cause)
}

// Computation builds a non-retryable invariant-violation error (§7).
func Computation(service, op string, code Code, msg string, cause error) *CoreError {
	return newErr(TypeComputation, code, http.StatusUnprocessableEntity, false, service, op, msg, cause)
}

// CapacityExhausted builds a retryable-after-reset capacity error (§7).
func CapacityExhausted(service, op, msg string) *CoreError {
	return newErr(TypeCapacity, CodeCapacityExhausted, http.StatusTooManyRequests, true, service, op, msg, nil)
}

// NoEligiblePlatform builds the routing "nowhere to go" signal (§7).
func NoEligiblePlatform(service, op, msg string) *CoreError {
	return newErr(TypeNoPlatform, CodeNoEligiblePlatform, http.StatusUnprocessableEntity, false, service, op, msg, nil)
}

// Transport builds a transport error; retryable reflects the §4.5/§7
// classification. The transports mark timeouts, 5xx and malformed
// success responses retryable and 4xx not; a malformed response is
// retried like any other retryable error, with no separate limit.
func Transport(service, op string, code Code, retryable bool, msg string, cause error) *CoreError {
	return newErr(TypeTransport, code, http.StatusBadGateway, retryable, service, op, msg, cause)
}

// LedgerInvariant builds a non-retryable, fatal-for-the-transaction
// ledger error (§7).
func LedgerInvariant(service, op string, code Code, msg string) *CoreError {
	return newErr(TypeLedger, code, http.StatusConflict, false, service, op, msg, nil)
}

// Internal builds a catch-all internal error.
func Internal(service, op, msg string, cause error) *CoreError {
	return newErr(TypeInternal, CodeInternal, http.StatusInternalServerError, false, service, op, msg, cause)
}
