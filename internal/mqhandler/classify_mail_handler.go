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
	"mailpilot/pkg/util"
)

// ClassifyMailHandler labels an email and, when auto-generate is on,
// requests drafts for mail that needs an answer.
type ClassifyMailHandler struct {
	base
	provider llm.Provider
}

func NewClassifyMailHandler(deps Deps) *ClassifyMailHandler {
	return &ClassifyMailHandler{base: deps.base(), provider: deps.Provider}
}

func (h *ClassifyMailHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var payload mqcontracts.ClassifyMailPayload
	if err := decode(raw, &payload); err != nil {
		h.logger.Error("Invalid ClassifyMailPayload", zap.String("raw", string(raw)), zap.Error(err))
		return err
	}
	if err := requireID("emailId", payload.EmailID); err != nil {
		return err
	}

	log := logger.WithTrace(ctx, h.logger).With(zap.String("email_id", payload.EmailID))
	log.Info("ClassifyMailHandler: received job")

	email, err := h.store.FindEmailByID(ctx, payload.EmailID)
	if err != nil {
		return h.handleRepoError(log, "FindEmailByID", err)
	}
	h.advance(ctx, log, email.ID, planner.StepFetchThread, planner.StatusDone)
	h.advance(ctx, log, email.ID, planner.StepClassify, planner.StatusRunning)

	res, err := h.provider.Classify(ctx, email.Subject, email.Snippet)
	if err != nil {
		h.advance(ctx, log, email.ID, planner.StepClassify, planner.StatusError)
		log.Warn("Classify failed", zap.Error(err))
		return fmt.Errorf("classify: %w", err)
	}
	if !db.ValidLabel(res.Label) {
		h.advance(ctx, log, email.ID, planner.StepClassify, planner.StatusError)
		return util.Permanent(fmt.Errorf("provider returned unknown label %q", res.Label))
	}
	tags := res.Tags
	if tags == nil {
		tags = []string{}
	}

	if err := h.store.UpdateClassification(ctx, email.ID, res.Label, tags); err != nil {
		return h.handleRepoError(log, "UpdateClassification", err)
	}
	h.advance(ctx, log, email.ID, planner.StepClassify, planner.StatusDone)

	log.Info("Email classified",
		zap.String("label", res.Label),
		zap.Strings("tags", tags),
	)

	if h.opts.AutoGenerate && needsReply(res.Label) {
		return h.enqueue(ctx, log, mqcontracts.KindGenerateDraft, mqcontracts.GenerateDraftPayload{EmailID: email.ID})
	}
	return nil
}

func needsReply(label string) bool {
	return label == db.LabelNeedsReply || label == db.LabelUrgent
}
