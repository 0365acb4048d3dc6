package ttypes

import (
	"errors"
	"fmt"
)

// Sentinel errors. A NarrateError matches the sentinel of its code under errors.Is.
var (
	// ErrSegmentation indicates the input could not be segmented
	ErrSegmentation = errors.New("text segmentation failed")

	// ErrNoValidCredentials indicates every configured credential failed its probe
	ErrNoValidCredentials = errors.New("no valid credentials")

	// ErrTransientService indicates a retryable service failure
	ErrTransientService = errors.New("transient service error")

	// ErrOversizeInput indicates the service rejected the input as too long
	ErrOversizeInput = errors.New("input exceeds service limit")

	// ErrPermanentCredential indicates the credential can no longer be used
	ErrPermanentCredential = errors.New("permanent credential error")

	// ErrRecursionExhausted indicates oversize re-splitting hit the depth limit
	ErrRecursionExhausted = errors.New("oversize recursion exhausted")

	// ErrAllCredentialsFailed indicates no credential produced a complete narration
	ErrAllCredentialsFailed = errors.New("all credentials failed")

	// ErrAssembly indicates audio segments of different formats
	ErrAssembly = errors.New("audio assembly failed")
)

// ErrorCode identifies a member of the error taxonomy
type ErrorCode string

const (
	ErrorCodeSegmentation         ErrorCode = "SEGMENTATION"
	ErrorCodeNoValidCredentials   ErrorCode = "NO_VALID_CREDENTIALS"
	ErrorCodeTransientService     ErrorCode = "TRANSIENT_SERVICE"
	ErrorCodeOversizeInput        ErrorCode = "OVERSIZE_INPUT"
	ErrorCodePermanentCredential  ErrorCode = "PERMANENT_CREDENTIAL"
	ErrorCodeRecursionExhausted   ErrorCode = "RECURSION_EXHAUSTED"
	ErrorCodeAllCredentialsFailed ErrorCode = "ALL_CREDENTIALS_FAILED"
	ErrorCodeAssembly             ErrorCode = "ASSEMBLY"
)

var sentinels = map[ErrorCode]error{
	ErrorCodeSegmentation:         ErrSegmentation,
	ErrorCodeNoValidCredentials:   ErrNoValidCredentials,
	ErrorCodeTransientService:     ErrTransientService,
	ErrorCodeOversizeInput:        ErrOversizeInput,
	ErrorCodePermanentCredential:  ErrPermanentCredential,
	ErrorCodeRecursionExhausted:   ErrRecursionExhausted,
	ErrorCodeAllCredentialsFailed: ErrAllCredentialsFailed,
	ErrorCodeAssembly:             ErrAssembly,
}

// NarrateError carries a taxonomy code plus the message that triggered it.
type NarrateError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *NarrateError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *NarrateError) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is(err, ErrPermanentCredential) and friends work.
func (e *NarrateError) Is(target error) bool {
	s, ok := sentinels[e.Code]
	return ok && s == target
}

// NewError creates a new error with context
func NewError(code ErrorCode, message string, cause error) *NarrateError {
	return &NarrateError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context to the error
func (e *NarrateError) WithContext(key string, value interface{}) *NarrateError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// IsRetryable returns true if the same call may succeed when repeated
func (e *NarrateError) IsRetryable() bool {
	return e.Code == ErrorCodeTransientService
}

// EndsCredential returns true if the error ends the credential's use for
// the current run.
func (e *NarrateError) EndsCredential() bool {
	switch e.Code {
	case ErrorCodePermanentCredential,
		ErrorCodeRecursionExhausted,
		ErrorCodeTransientService,
		ErrorCodeOversizeInput:
		return true
	default:
		return false
	}
}

// CodeOf returns the taxonomy code of err, or "" if err is not a NarrateError.
func CodeOf(err error) ErrorCode {
	var ne *NarrateError
	if errors.As(err, &ne) {
		return ne.Code
	}
	return ""
}
