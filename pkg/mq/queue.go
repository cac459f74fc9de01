package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	mqcontracts "mailpilot/contracts/mq"
	"mailpilot/pkg/util"
)

// Job headers. The trace id travels under trace.HeaderTraceID.
const (
	HeaderJobID   = "x-job-id"
	HeaderAttempt = "x-attempt"
	HeaderKind    = "x-job-kind"
)

// MessageHandler processes one job payload. A nil return acknowledges the
// job; errors are classified by util.IsRetryableError.
type MessageHandler func(ctx context.Context, data json.RawMessage) error

// Enqueuer records jobs for later processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind mqcontracts.JobKind, payload any) error
}

// Queue is a named-channel job queue with at-least-once delivery.
type Queue interface {
	Enqueuer
	// Consume registers the handler of kind. It is called once per kind.
	Consume(kind mqcontracts.JobKind, handler MessageHandler) error
}

// RetryPolicy bounds redelivery of failed jobs.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// Backoff is the delay before attempt+1 after attempt failed (attempt >= 1).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// RetryDelays lists the distinct backoff delays a job can wait, in order.
func (p RetryPolicy) RetryDelays() []time.Duration {
	p = p.withDefaults()
	var out []time.Duration
	for attempt := 1; attempt < p.MaxAttempts; attempt++ {
		d := p.Backoff(attempt)
		if n := len(out); n > 0 && out[n-1] == d {
			continue
		}
		out = append(out, d)
	}
	return out
}

type disposition int

const (
	dispositionAck disposition = iota
	dispositionRetry
	dispositionDead
)

func (d disposition) String() string {
	switch d {
	case dispositionAck:
		return "success"
	case dispositionRetry:
		return "retry"
	}
	return "dead"
}

// decide maps a handler result to what happens to the job.
func (p RetryPolicy) decide(attempt int, err error) (disposition, string) {
	if err == nil {
		return dispositionAck, ""
	}
	retryable, reason := util.IsRetryableError(err)
	if !retryable {
		return dispositionDead, reason
	}
	if !util.ShouldRetry(attempt, p.MaxAttempts, retryable) {
		return dispositionDead, "max_attempts_exceeded"
	}
	return dispositionRetry, reason
}

// runHandler invokes h, turning a panic into a transient error.
func runHandler(ctx context.Context, h MessageHandler, body json.RawMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = util.Transient(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return h(ctx, body)
}

// EncodePayload serializes a job payload. Raw JSON is passed through after
// validation.
func EncodePayload(payload any) (json.RawMessage, error) {
	var raw []byte
	switch p := payload.(type) {
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		return b, nil
	}
	if !json.Valid(raw) {
		return nil, errors.New("payload is not valid JSON")
	}
	return json.RawMessage(raw), nil
}

func attemptFromHeader(v interface{}) int {
	switch a := v.(type) {
	case int:
		return a
	case int8:
		return int(a)
	case int16:
		return int(a)
	case int32:
		return int(a)
	case int64:
		return int(a)
	case float64:
		return int(a)
	case string:
		if n, err := strconv.Atoi(a); err == nil {
			return n
		}
	}
	return 1
}

func stringHeader(headers map[string]interface{}, key string) string {
	if s, ok := headers[key].(string); ok {
		return s
	}
	return ""
}

type attemptKey struct{}

func withAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, attemptKey{}, attempt)
}

// AttemptFromContext returns the 1-based delivery attempt of the running job.
func AttemptFromContext(ctx context.Context) int {
	if a, ok := ctx.Value(attemptKey{}).(int); ok {
		return a
	}
	return 1
}
