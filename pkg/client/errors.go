package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Failure kinds shared by every backend. Backends wrap the provider error with
// one of these so callers can classify without knowing the provider.
var (
	ErrAuth        = errors.New("authentication rejected")
	ErrQuota       = errors.New("quota or rate limit exceeded")
	ErrMalformed   = errors.New("malformed model response")
	ErrUnavailable = errors.New("model service unavailable")
)

// KindForStatus maps an HTTP status code onto a failure kind, or nil when the
// code carries no specific meaning.
func KindForStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrAuth
	case code == http.StatusTooManyRequests || code == http.StatusPaymentRequired:
		return ErrQuota
	case code >= 500:
		return ErrUnavailable
	}
	return nil
}

// Wrap tags err with kind, keeping both in the chain.
func Wrap(kind, err error) error {
	if kind == nil {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// Summary returns a short human-readable cause for err
func Summary(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuth):
		return ErrAuth.Error()
	case errors.Is(err, ErrQuota):
		return ErrQuota.Error()
	case errors.Is(err, ErrMalformed):
		return ErrMalformed.Error()
	case errors.Is(err, ErrUnavailable):
		return ErrUnavailable.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	return err.Error()
}
