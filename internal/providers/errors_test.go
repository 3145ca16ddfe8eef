package providers

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{401, ErrAuth},
		{403, ErrAuth},
		{413, ErrPayloadTooLarge},
		{429, ErrQuotaExceeded},
		{500, ErrTransient},
		{503, ErrTransient},
	}

	for _, tt := range tests {
		err := ClassifyStatus(tt.status, "body")
		if !errors.Is(err, tt.want) {
			t.Errorf("ClassifyStatus(%d) = %v, expected kind %v", tt.status, err, tt.want)
		}
	}

	// 4xx outside the taxonomy stays unclassified
	err := ClassifyStatus(400, "bad request")
	for _, kind := range []error{ErrAuth, ErrPayloadTooLarge, ErrQuotaExceeded, ErrTransient} {
		if errors.Is(err, kind) {
			t.Errorf("Expected 400 to stay unclassified, matched %v", kind)
		}
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(ErrTransient) {
		t.Error("Expected transient errors to be retryable")
	}
	if !Retryable(fmt.Errorf("wrapped: %w", ErrTransient)) {
		t.Error("Expected wrapped transient errors to be retryable")
	}
	if !Retryable(context.DeadlineExceeded) {
		t.Error("Expected timeouts to be retryable")
	}
	if Retryable(ErrAuth) {
		t.Error("Expected auth failures to never be retried")
	}
	if Retryable(ErrQuotaExceeded) {
		t.Error("Expected quota failures to not be retryable")
	}
	if Retryable(nil) {
		t.Error("Expected nil to not be retryable")
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrAuth, "auth"},
		{ErrQuotaExceeded, "quota_exceeded"},
		{ErrPayloadTooLarge, "payload_too_large"},
		{ErrTransient, "transient"},
		{context.DeadlineExceeded, "transient"},
		{errors.New("something else"), "error"},
	}

	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, expected %q", tt.err, got, tt.want)
		}
	}
}
