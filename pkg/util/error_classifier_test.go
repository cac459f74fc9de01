package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"mailpilot/pkg/circuitbreaker"
)

func TestIsRetryableError(t *testing.T) {
	var syntaxErr error
	if err := json.Unmarshal([]byte("{"), &struct{}{}); err != nil {
		syntaxErr = err
	}

	tests := []struct {
		name      string
		err       error
		retryable bool
		reason    string
	}{
		{"nil", nil, false, ""},
		{"permanent wins over transient", Permanent(Transient(errors.New("x"))), false, "permanent_input"},
		{"transient", Transient(errors.New("x")), true, "transient"},
		{"json", fmt.Errorf("decode: %w", syntaxErr), false, "json_decode_error"},
		{"no rows", pgx.ErrNoRows, false, "not_found"},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false, "integrity_violation"},
		{"connection failure", &pgconn.PgError{Code: "08006"}, true, "db_unavailable"},
		{"serialization", &pgconn.PgError{Code: "40001"}, true, "db_serialization"},
		{"breaker open", fmt.Errorf("agent: %w", circuitbreaker.ErrCircuitBreakerOpen), true, "circuit_open"},
		{"deadline", context.DeadlineExceeded, true, "timeout"},
		{"unknown", errors.New("boom"), true, "unknown_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retryable, reason := IsRetryableError(tt.err)
			if retryable != tt.retryable || reason != tt.reason {
				t.Fatalf("IsRetryableError(%v) = %v, %q; want %v, %q", tt.err, retryable, reason, tt.retryable, tt.reason)
			}
		})
	}
}

func TestShouldRetry(t *testing.T) {
	if !ShouldRetry(1, 3, true) || ShouldRetry(3, 3, true) || ShouldRetry(1, 3, false) {
		t.Fatal("unexpected ShouldRetry result")
	}
}

func TestWrappersKeepCause(t *testing.T) {
	cause := errors.New("cause")
	if !errors.Is(Permanent(cause), cause) || !errors.Is(Transient(cause), cause) {
		t.Fatal("wrapped error lost its cause")
	}
	if Permanent(nil) != nil || Transient(nil) != nil {
		t.Fatal("nil must stay nil")
	}
}
