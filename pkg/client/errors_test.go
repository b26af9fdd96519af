package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindForStatus(t *testing.T) {
	tests := []struct {
		code int
		want error
	}{
		{http.StatusUnauthorized, ErrAuth},
		{http.StatusForbidden, ErrAuth},
		{http.StatusTooManyRequests, ErrQuota},
		{http.StatusPaymentRequired, ErrQuota},
		{http.StatusBadGateway, ErrUnavailable},
		{http.StatusBadRequest, nil},
		{http.StatusOK, nil},
	}

	for _, tt := range tests {
		if got := KindForStatus(tt.code); got != tt.want {
			t.Errorf("KindForStatus(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestWrapKeepsBothErrors(t *testing.T) {
	cause := errors.New("status 401")
	err := Wrap(ErrAuth, cause)

	if !errors.Is(err, ErrAuth) {
		t.Error("wrapped error should match ErrAuth")
	}
	if !errors.Is(err, cause) {
		t.Error("wrapped error should keep the cause")
	}

	if got := Wrap(nil, cause); got != cause {
		t.Errorf("Wrap with nil kind should return cause unchanged, got %v", got)
	}
}

func TestSummary(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{Wrap(ErrQuota, errors.New("429")), "quota or rate limit exceeded"},
		{fmt.Errorf("request: %w", context.DeadlineExceeded), "timed out"},
		{errors.New("boom"), "boom"},
	}

	for _, tt := range tests {
		if got := Summary(tt.err); got != tt.want {
			t.Errorf("Summary(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
