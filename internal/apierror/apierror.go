package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Reason classifies why a request was refused. Every refusal is a
// per-request outcome; none of them are fatal to the process.
type Reason int

const (
	// ReasonMalformed - proof or request is missing required fields.
	ReasonMalformed Reason = iota
	// ReasonExpired - the proof's validity window does not cover now.
	ReasonExpired
	// ReasonInvalid - the proof failed authenticity checks.
	ReasonInvalid
	// ReasonReplayed - the proof's uniqueness token was already consumed.
	ReasonReplayed
	// ReasonPriceMismatch - amount/currency do not match the catalog.
	ReasonPriceMismatch
	// ReasonQuotaExceeded - the billing period's quota is used up.
	ReasonQuotaExceeded
	// ReasonBackendUnavailable - transient backend or storage failure.
	// Distinct from payment failures so callers don't pay again.
	ReasonBackendUnavailable
)

var reasonNames = map[Reason]string{
	ReasonMalformed:          "malformed",
	ReasonExpired:            "expired",
	ReasonInvalid:            "invalid",
	ReasonReplayed:           "replayed",
	ReasonPriceMismatch:      "price_mismatch",
	ReasonQuotaExceeded:      "quota_exceeded",
	ReasonBackendUnavailable: "backend_unavailable",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return "unknown"
}

// HTTPStatus maps a refusal to its response code. Payment-class
// refusals use 402 per the x402 convention.
func (r Reason) HTTPStatus() int {
	switch r {
	case ReasonMalformed:
		return http.StatusBadRequest
	case ReasonQuotaExceeded, ReasonExpired, ReasonInvalid, ReasonReplayed, ReasonPriceMismatch:
		return http.StatusPaymentRequired
	case ReasonBackendUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified per-request failure.
type Error struct {
	Reason  Reason
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Reason.String()
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// New builds a classified error.
func New(reason Reason, format string, args ...interface{}) *Error {
	return &Error{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// ReasonOf extracts the classification from err, falling back to
// ReasonBackendUnavailable for unclassified (infrastructure) errors.
func ReasonOf(err error) Reason {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return ReasonBackendUnavailable
}

// Is lets errors.Is match on bare reasons via sentinel errors.
func (e *Error) Is(target error) bool {
	var ae *Error
	if errors.As(target, &ae) {
		return ae.Reason == e.Reason
	}
	return false
}
