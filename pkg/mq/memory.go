package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "mailpilot/contracts/mq"
	"mailpilot/pkg/metrics"
	"mailpilot/pkg/trace"
)

// Job is a queued unit of work as seen by MemoryQueue.
type Job struct {
	ID      string
	Kind    mqcontracts.JobKind
	Payload json.RawMessage
	Attempt int
	TraceID string

	notBefore time.Time
}

// DeadJob is a job that exhausted its retries or failed permanently.
type DeadJob struct {
	Job
	Reason string
	Err    error
}

// MemoryQueue is an in-process Queue with the same retry and dead-letter
// semantics as Broker. Jobs are lost on restart.
type MemoryQueue struct {
	policy RetryPolicy
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	handlers map[mqcontracts.JobKind]MessageHandler
	pending  []Job
	dead     []DeadJob
	wake     chan struct{}
}

var _ Queue = (*MemoryQueue)(nil)

func NewMemoryQueue(policy RetryPolicy, logger *zap.Logger) *MemoryQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryQueue{
		policy:   policy.withDefaults(),
		logger:   logger,
		now:      time.Now,
		handlers: make(map[mqcontracts.JobKind]MessageHandler),
		wake:     make(chan struct{}, 1),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, kind mqcontracts.JobKind, payload any) error {
	body, err := EncodePayload(payload)
	if err != nil {
		return err
	}
	_, traceID := trace.Ensure(ctx)

	q.mu.Lock()
	q.pending = append(q.pending, Job{
		ID:      uuid.NewString(),
		Kind:    kind,
		Payload: body,
		Attempt: 1,
		TraceID: traceID,
	})
	q.mu.Unlock()
	q.signal()
	return nil
}

func (q *MemoryQueue) Consume(kind mqcontracts.JobKind, handler MessageHandler) error {
	if handler == nil {
		return fmt.Errorf("nil handler for %s", kind)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.handlers[kind]; ok {
		return fmt.Errorf("handler for %s already registered", kind)
	}
	q.handlers[kind] = handler
	return nil
}

// Pending returns a copy of the jobs waiting to run, optionally filtered by kind.
func (q *MemoryQueue) Pending(kinds ...mqcontracts.JobKind) []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []Job
	for _, j := range q.pending {
		if len(kinds) == 0 || slices.Contains(kinds, j.Kind) {
			out = append(out, j)
		}
	}
	return out
}

// Dead returns a copy of the dead-lettered jobs.
func (q *MemoryQueue) Dead() []DeadJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]DeadJob(nil), q.dead...)
}

// Run processes jobs with the given number of workers until ctx is done.
func (q *MemoryQueue) Run(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.loop(ctx)
		}()
	}
	wg.Wait()
}

func (q *MemoryQueue) loop(ctx context.Context) {
	for {
		job, handler, wait, ok := q.next()
		if ok {
			q.process(ctx, job, handler)
			continue
		}
		if wait <= 0 {
			wait = time.Second
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-q.wake:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// Drain runs jobs on the calling goroutine until nothing runnable is left,
// waiting out retry backoffs. Jobs without a registered handler stay pending.
func (q *MemoryQueue) Drain(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		job, handler, wait, ok := q.next()
		if ok {
			q.process(ctx, job, handler)
			continue
		}
		if wait <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// next pops the first runnable job. When none is runnable it returns the
// time until the earliest delayed job, or 0 if there is none.
func (q *MemoryQueue) next() (Job, MessageHandler, time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var wait time.Duration
	for i, j := range q.pending {
		h, ok := q.handlers[j.Kind]
		if !ok {
			continue
		}
		if j.notBefore.After(now) {
			if d := j.notBefore.Sub(now); wait == 0 || d < wait {
				wait = d
			}
			continue
		}
		q.pending = append(q.pending[:i], q.pending[i+1:]...)
		return j, h, 0, true
	}
	return Job{}, nil, wait, false
}

func (q *MemoryQueue) process(ctx context.Context, job Job, h MessageHandler) {
	jobCtx := trace.WithContext(trace.WithJobID(ctx, job.ID), job.TraceID)
	jobCtx = withAttempt(jobCtx, job.Attempt)

	start := time.Now()
	err := runHandler(jobCtx, h, job.Payload)
	d, reason := q.policy.decide(job.Attempt, err)
	metrics.RecordJob(string(job.Kind), d.String(), time.Since(start))

	log := q.logger.With(
		zap.String("kind", string(job.Kind)),
		zap.String("job_id", job.ID),
		zap.Int("attempt", job.Attempt),
	)

	q.mu.Lock()
	switch d {
	case dispositionRetry:
		delay := q.policy.Backoff(job.Attempt)
		log.Warn("Job failed, scheduling retry",
			zap.String("reason", reason),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		job.Attempt++
		job.notBefore = q.now().Add(delay)
		q.pending = append(q.pending, job)
	case dispositionDead:
		log.Error("Job dead-lettered", zap.String("reason", reason), zap.Error(err))
		metrics.IncrementDeadJob(string(job.Kind), reason)
		q.dead = append(q.dead, DeadJob{Job: job, Reason: reason, Err: err})
	}
	q.mu.Unlock()
	q.signal()
}

func (q *MemoryQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
