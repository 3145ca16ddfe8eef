package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Boundary failure kinds shared by the transcription and minutes clients.
// Callers branch with errors.Is; the concrete HTTP detail stays wrapped.
var (
	// ErrAuth indicates rejected credentials. Never retried.
	ErrAuth = errors.New("authentication rejected")

	// ErrQuotaExceeded indicates the remote quota or rate limit was hit.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrPayloadTooLarge indicates the upload exceeded the remote size limit.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrTransient indicates a failure worth exactly one retry.
	ErrTransient = errors.New("transient failure")
)

// ClassifyStatus maps an HTTP response status to a failure kind. The body
// excerpt is carried in the wrapped message for diagnostics.
func ClassifyStatus(status int, body string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d: %s", ErrAuth, status, body)
	case status == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: HTTP %d: %s", ErrPayloadTooLarge, status, body)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: HTTP %d: %s", ErrQuotaExceeded, status, body)
	case status >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", ErrTransient, status, body)
	default:
		return fmt.Errorf("HTTP error %d: %s", status, body)
	}
}

// Retryable reports whether err deserves the single bounded retry. Timeouts
// count as transient; everything else in the taxonomy is terminal.
func Retryable(err error) bool {
	if errors.Is(err, ErrTransient) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

// Kind returns a short stable label for a failure, used in stage error
// reports and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrPayloadTooLarge):
		return "payload_too_large"
	case errors.Is(err, ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return "transient"
	default:
		return "error"
	}
}
