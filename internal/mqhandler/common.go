package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "mailpilot/contracts/mq"
	"mailpilot/internal/planner"
	"mailpilot/internal/repository"
	"mailpilot/pkg/mq"
	"mailpilot/pkg/util"
)

// Options switches the optional pipeline edges.
type Options struct {
	// AutoGenerate enqueues GenerateDraft after a NeedsReply/Urgent verdict.
	AutoGenerate bool
	// EnableOptimizer enqueues OptimizeDraft for fresh drafts.
	EnableOptimizer bool
	// EnableRAG enqueues IndexRAG after a reply is sent.
	EnableRAG bool
	// RAGExamples passes the user's recent RAG entries to the writer.
	RAGExamples bool
}

// ragExampleLimit caps the examples handed to the writer.
const ragExampleLimit = 3

// base carries what every stage shares.
type base struct {
	store    repository.Store
	enqueuer mq.Enqueuer
	progress planner.Progress
	opts     Options
	logger   *zap.Logger
}

// decode unmarshals raw into v; malformed payloads are permanent.
func decode(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return util.Permanent(fmt.Errorf("bad_payload: %w", err))
	}
	return nil
}

func requireID(name, value string) error {
	if value == "" {
		return util.Permanent(fmt.Errorf("bad_payload: missing %s", name))
	}
	return nil
}

// handleRepoError turns a store failure into the handler result: a missing
// entity ends the job successfully, anything else goes back to the queue.
func (b *base) handleRepoError(log *zap.Logger, op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		log.Info("Entity not found, skip", zap.String("op", op))
		return nil
	}
	isRetryable, errType := util.IsRetryableError(err)
	log.Error("Repo error",
		zap.String("op", op),
		zap.String("error_type", errType),
		zap.Bool("retryable", isRetryable),
		zap.Error(err),
	)
	return fmt.Errorf("%s: %w", op, err)
}

// advance reports progress; failures are logged and never fail the job.
func (b *base) advance(ctx context.Context, log *zap.Logger, emailID string, step planner.StepID, to planner.Status) {
	if b.progress == nil {
		return
	}
	if _, err := b.progress.Advance(ctx, emailID, step, to); err != nil {
		log.Warn("Plan progress not recorded",
			zap.String("email_id", emailID),
			zap.String("step", string(step)),
			zap.String("status", string(to)),
			zap.Error(err),
		)
	}
}

func (b *base) enqueue(ctx context.Context, log *zap.Logger, kind mqcontracts.JobKind, payload any) error {
	if err := b.enqueuer.Enqueue(ctx, kind, payload); err != nil {
		log.Error("Failed to enqueue follow-up job", zap.String("kind", string(kind)), zap.Error(err))
		return util.Transient(fmt.Errorf("enqueue %s: %w", kind, err))
	}
	log.Info("Enqueued follow-up job", zap.String("kind", string(kind)))
	return nil
}
