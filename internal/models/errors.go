package models

import (
	"errors"
	"fmt"
)

// ErrNoMatchingResponse is returned by the download interceptor when no
// network response matched the predicate before the timeout, or when the
// triggering action itself failed.
var ErrNoMatchingResponse = errors.New("no matching network response observed")

// ErrSessionActive is returned when an interactive session is requested while
// another one holds the fixed port triple.
var ErrSessionActive = errors.New("an interactive session is already active")

// ErrSessionNotFound is returned for unknown, expired, or token-mismatched
// session lookups. The three cases are deliberately indistinguishable.
var ErrSessionNotFound = errors.New("session not found")

// ValidationKind discriminates request-validation failures so handlers can
// map them onto status codes without inspecting message text.
type ValidationKind string

const (
	// ValidationMissingField means a required request field was absent.
	ValidationMissingField ValidationKind = "missing_field"
	// ValidationNotPermitted means the request named a vendor the
	// deployment does not allow or support.
	ValidationNotPermitted ValidationKind = "not_permitted"
)

// ValidationError flags a bad or unwhitelisted vendor key in a request.
type ValidationError struct {
	Kind    ValidationKind
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a validation error
func NewValidationError(kind ValidationKind, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotImplementedError flags a whitelisted vendor with no registered
// connector.
type NotImplementedError struct {
	VendorKey string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("vendor '%s' is whitelisted but has no connector implementation", e.VendorKey)
}

// ConfigMissingError flags a whitelisted vendor whose credential or vendor
// configuration is absent, distinct from an automation failure.
type ConfigMissingError struct {
	VendorKey string
	Reason    string
}

func (e *ConfigMissingError) Error() string {
	return fmt.Sprintf("vendor '%s' is not configured: %s", e.VendorKey, e.Reason)
}

// AuthExpiredError signals that stored auth failed post-restore verification.
// The caller should re-run the manual login capture; the operation is not
// retried automatically.
type AuthExpiredError struct {
	VendorKey string
}

func (e *AuthExpiredError) Error() string {
	return fmt.Sprintf("stored auth for vendor '%s' has expired, re-run manual login to capture a fresh session", e.VendorKey)
}

// LoginTimeoutError signals that a manual step or OTP wait exceeded its
// bound.
type LoginTimeoutError struct {
	VendorKey string
	Stage     string
}

func (e *LoginTimeoutError) Error() string {
	return fmt.Sprintf("login for vendor '%s' timed out during %s", e.VendorKey, e.Stage)
}

// ProvisioningError signals that an interactive-session process failed to
// start or exited before its settle delay elapsed.
type ProvisioningError struct {
	Step string
	Err  error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("failed to provision %s: %v", e.Step, e.Err)
}

func (e *ProvisioningError) Unwrap() error {
	return e.Err
}

// APIErrorKind is the fixed taxonomy upstream API error codes map onto.
type APIErrorKind string

const (
	APIErrorPermissionDenied APIErrorKind = "permission_denied"
	APIErrorInvalidArgument  APIErrorKind = "invalid_argument"
	APIErrorUnauthenticated  APIErrorKind = "unauthenticated"
	APIErrorOther            APIErrorKind = "other"
)

// APIError wraps an upstream API failure with a vendor-actionable message.
type APIError struct {
	Kind    APIErrorKind
	Message string
	Err     error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}
