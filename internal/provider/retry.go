package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"docqa/internal/rag"
)

// RetryPolicy bounds every outbound provider call.
type RetryPolicy struct {
	Attempts    int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	CallTimeout time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:    3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		CallTimeout: 30 * time.Second,
	}
}

// Do runs fn under the policy. Each attempt gets its own timeout. Only
// transient failures are retried. Errors already classified by the domain
// (validation, configuration, indexing) are returned as is, anything else
// that survives the policy becomes a *rag.ProviderError.
func (p RetryPolicy) Do(ctx context.Context, providerName, op string, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseDelay
	if p.MaxDelay > 0 {
		exp.MaxInterval = p.MaxDelay
	}
	exp.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.CallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, p.CallTimeout)
		}
		defer cancel()

		err := fn(callCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !IsTransient(err) {
			return backoff.Permanent(err)
		}
		slog.WarnContext(ctx, "provider call failed, retrying",
			"provider", providerName, "op", op, "attempt", attempt, "max_attempts", attempts, "error", err)
		return err
	}, policy)

	if err == nil {
		return nil
	}
	if classified(err) {
		return err
	}
	return &rag.ProviderError{Provider: providerName, Op: op, Err: err}
}

// StatusError is a non-2xx response from a provider backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Unwrap marks malformed-request statuses as validation failures.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		return rag.ErrValidation
	}
	return nil
}

// CheckResponse returns a *StatusError for non-2xx responses. The body is
// consumed (up to 4KB) in that case.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	return &StatusError{Code: resp.StatusCode, Body: string(body)}
}

// IsTransient reports whether err is worth retrying: timeouts, rate limiting
// and 5xx responses.
func IsTransient(err error) bool {
	if err == nil || classified(err) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code == http.StatusRequestTimeout || se.Code >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}

func classified(err error) bool {
	return errors.Is(err, rag.ErrValidation) || errors.Is(err, rag.ErrConfiguration) || errors.Is(err, rag.ErrIndexing)
}
