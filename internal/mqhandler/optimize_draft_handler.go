package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"mailpilot/contracts/db"
	mqcontracts "mailpilot/contracts/mq"
	"mailpilot/internal/llm"
	"mailpilot/internal/planner"
	"mailpilot/pkg/logger"
)

// OptimizeDraftHandler polishes a draft. Running it twice leaves the same
// state as running it once.
type OptimizeDraftHandler struct {
	base
	provider llm.Provider
}

func NewOptimizeDraftHandler(deps Deps) *OptimizeDraftHandler {
	return &OptimizeDraftHandler{base: deps.base(), provider: deps.Provider}
}

func (h *OptimizeDraftHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var payload mqcontracts.OptimizeDraftPayload
	if err := decode(raw, &payload); err != nil {
		h.logger.Error("Invalid OptimizeDraftPayload", zap.String("raw", string(raw)), zap.Error(err))
		return err
	}
	if err := requireID("draftId", payload.DraftID); err != nil {
		return err
	}

	log := logger.WithTrace(ctx, h.logger).With(zap.String("draft_id", payload.DraftID))
	log.Info("OptimizeDraftHandler: received job")

	draft, err := h.store.FindDraftByID(ctx, payload.DraftID)
	if err != nil {
		return h.handleRepoError(log, "FindDraftByID", err)
	}
	log = log.With(zap.String("email_id", draft.EmailID))

	// 已发送的草稿文本不再改动
	if draft.Status == db.DraftStatusSent {
		log.Info("Draft already sent, skip optimization")
		return nil
	}

	h.advance(ctx, log, draft.EmailID, planner.StepOptimize, planner.StatusRunning)

	res, err := h.provider.Optimize(ctx, draft.DraftText, draft.Tone)
	if err != nil {
		h.advance(ctx, log, draft.EmailID, planner.StepOptimize, planner.StatusError)
		log.Warn("Optimize failed", zap.Error(err))
		return fmt.Errorf("optimize: %w", err)
	}

	updated, err := h.store.UpdateOptimized(ctx, draft.ID, res.Text, res.Confidence)
	if err != nil {
		return h.handleRepoError(log, "UpdateOptimized", err)
	}
	if !updated {
		log.Info("Draft sent or removed meanwhile, optimization dropped")
		return nil
	}

	h.advance(ctx, log, draft.EmailID, planner.StepOptimize, planner.StatusDone)
	h.advance(ctx, log, draft.EmailID, planner.StepAwaitUser, planner.StatusRunning)
	log.Info("Draft optimized")
	return nil
}
