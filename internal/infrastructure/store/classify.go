package store

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/Macrina/Listify-Agent-sub000/internal/core/domain"
	"github.com/Macrina/Listify-Agent-sub000/internal/infrastructure/resilience"
)

// ErrMissingID means an insert succeeded as far as the store said, but no
// generated id could be read back. Whether the row exists is unknown.
var ErrMissingID = errors.New("store returned no inserted id")

// StatementTimeoutError is a single statement running out of its own time
// budget (a transport timeout) while the caller's context was still live.
type StatementTimeoutError struct {
	Err error
}

func (e *StatementTimeoutError) Error() string {
	return "statement timed out: " + e.Err.Error()
}

func (e *StatementTimeoutError) Unwrap() error {
	return e.Err
}

// markStatementTimeout tags a deadline error that did not come from ctx.
func markStatementTimeout(ctx context.Context, err error) error {
	if err == nil || ctx.Err() != nil || !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var already *StatementTimeoutError
	if errors.As(err, &already) {
		return err
	}
	return &StatementTimeoutError{Err: err}
}

var transientMarkers = []string{
	"database is locked",
	"deadlock",
	"lock timeout",
	"could not obtain lock",
	"busy",
	"timeout",
	"timed out",
	"connection reset",
	"temporary",
	"temporarily",
}

// IsTransient reports whether a statement failure is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var timeoutErr *StatementTimeoutError
	if errors.As(err, &timeoutErr) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrMissingID) {
		return false
	}
	if domain.IsKind(err, domain.ErrTemporary) || resilience.IsCircuitOpen(err) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.Status {
		case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return containsTransientMarker(statusErr.Message)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return containsTransientMarker(err.Error())
}

func containsTransientMarker(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range transientMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func classifyStoreError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	var timeoutErr *StatementTimeoutError
	if errors.As(err, &timeoutErr) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}
	if IsTransient(err) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}
	// Constraint violations and bad SQL are caller errors, not store health.
	return resilience.ErrorClassification{
		Retryable:     false,
		RecordFailure: false,
	}
}

func persistenceError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrPersistence) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapError(domain.ErrTimeout, operation, domain.WrapError(domain.ErrPersistence, operation, err))
	}
	wrapped := domain.WrapError(domain.ErrPersistence, operation, err)
	if IsTransient(err) {
		return domain.WrapError(domain.ErrTemporary, operation, wrapped)
	}
	return wrapped
}
