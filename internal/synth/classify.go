package synth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dgnsrekt/narrate/internal/ttypes"
)

// Class is the outcome of one synthesis attempt.
type Class int

const (
	// ClassSuccess is a 200 response.
	ClassSuccess Class = iota

	// ClassTransient may succeed if repeated.
	ClassTransient

	// ClassOversize means the service found the input too long.
	ClassOversize

	// ClassPermanent ends the credential for the run.
	ClassPermanent
)

// String returns the string representation of the class
func (c Class) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassTransient:
		return "transient"
	case ClassOversize:
		return "oversize"
	case ClassPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Messages saying the input is longer than the service accepts.
var oversizePatterns = []string{
	"too long",
	"exceeds the limit",
}

// Messages that end a credential whatever the status code, including
// statuses that are otherwise retried.
var permanentPatterns = []string{
	"quota",
	"suspended",
	"billing",
	"permission",
	"api key not valid",
	"api key expired",
}

// Classify maps a response status and error message to a Class. A status
// of 0 stands for a network failure or timeout and is always transient.
// For service responses, message matching is case insensitive and runs
// before the status rules.
func Classify(status int, message string, policy ttypes.RetryPolicy) Class {
	switch status {
	case http.StatusOK:
		return ClassSuccess
	case 0:
		return ClassTransient
	}

	msg := strings.ToLower(message)
	switch {
	case containsAny(msg, oversizePatterns):
		return ClassOversize
	case containsAny(msg, permanentPatterns):
		return ClassPermanent
	}

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ClassPermanent
	case policy.IsRetryableStatus(status), status >= 500:
		return ClassTransient
	default:
		return ClassPermanent
	}
}

// ClassifyError classifies an error returned by an Engine and returns the
// message to keep for diagnostics.
func ClassifyError(err error, policy ttypes.RetryPolicy) (Class, string) {
	if err == nil {
		return ClassSuccess, ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return Classify(apiErr.StatusCode, apiErr.Message, policy), apiErr.Error()
	}
	return Classify(0, err.Error(), policy), err.Error()
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
