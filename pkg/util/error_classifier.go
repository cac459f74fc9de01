package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"mailpilot/pkg/circuitbreaker"
)

var (
	// ErrTransient marks failures worth retrying (store or provider unavailable).
	ErrTransient = errors.New("transient failure")
	// ErrPermanentInput marks malformed input that no retry can fix.
	ErrPermanentInput = errors.New("permanent input error")
)

// Transient tags err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Permanent tags err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanentInput, err)
}

// IsRetryableError determines if an error is retryable
// Returns: (isRetryable, errorType)
func IsRetryableError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	// 显式标记优先
	if errors.Is(err, ErrPermanentInput) {
		return false, "permanent_input"
	}
	if errors.Is(err, ErrTransient) {
		return true, "transient"
	}

	// JSON decode errors - 不可重试（数据格式错误）
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return false, "json_decode_error"
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return false, "not_found"
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "23"):
			// 约束冲突 - 不可重试
			return false, "integrity_violation"
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "53"), strings.HasPrefix(pgErr.Code, "57"):
			return true, "db_unavailable"
		case pgErr.Code == "40001" || pgErr.Code == "40P01":
			return true, "db_serialization"
		}
		return false, "db_error"
	}
	if pgconn.SafeToRetry(err) {
		return true, "db_connection_error"
	}

	if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) {
		return true, "circuit_open"
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true, "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return true, "context_canceled"
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	// 未知错误：交给有界重试
	return true, "unknown_error"
}

// ShouldRetry checks if an error should be retried based on the attempt number.
func ShouldRetry(attempt, maxAttempts int, isRetryable bool) bool {
	if !isRetryable {
		return false
	}
	return attempt < maxAttempts
}
