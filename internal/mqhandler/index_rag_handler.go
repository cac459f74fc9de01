package mqhandler

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"mailpilot/contracts/db"
	mqcontracts "mailpilot/contracts/mq"
	"mailpilot/internal/planner"
	"mailpilot/internal/repository"
	"mailpilot/pkg/logger"
)

// IndexRAGHandler stores a sent reply as a retrieval example, at most once
// per source message.
type IndexRAGHandler struct {
	base
}

func NewIndexRAGHandler(deps Deps) *IndexRAGHandler {
	return &IndexRAGHandler{base: deps.base()}
}

func (h *IndexRAGHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var payload mqcontracts.IndexRAGPayload
	if err := decode(raw, &payload); err != nil {
		h.logger.Error("Invalid IndexRAGPayload", zap.String("raw", string(raw)), zap.Error(err))
		return err
	}
	if err := requireID("draftId", payload.DraftID); err != nil {
		return err
	}

	log := logger.WithTrace(ctx, h.logger).With(zap.String("draft_id", payload.DraftID))
	log.Info("IndexRAGHandler: received job")

	draft, email, err := h.store.FindDraftWithEmail(ctx, payload.DraftID)
	if err != nil {
		return h.handleRepoError(log, "FindDraftWithEmail", err)
	}
	log = log.With(zap.String("email_id", email.ID))

	_, err = h.store.FindRAGBySource(ctx, draft.UserID, email.MessageID)
	switch {
	case err == nil:
		log.Info("RAG entry already exists, skip")
		h.advance(ctx, log, email.ID, planner.StepIndexRAG, planner.StatusDone)
		return nil
	case !errors.Is(err, repository.ErrNotFound):
		return h.handleRepoError(log, "FindRAGBySource", err)
	}

	h.advance(ctx, log, email.ID, planner.StepIndexRAG, planner.StatusRunning)

	entry := &db.RAGEntry{
		UserID:          draft.UserID,
		Title:           db.TruncateTitle(email.Subject),
		Text:            draft.FinalText(),
		SourceMessageID: email.MessageID,
	}
	created, err := h.store.CreateRAGEntry(ctx, entry)
	if err != nil {
		return h.handleRepoError(log, "CreateRAGEntry", err)
	}
	if !created {
		log.Info("RAG entry created concurrently, skip")
	} else {
		log.Info("RAG entry created", zap.String("rag_id", entry.ID))
	}
	h.advance(ctx, log, email.ID, planner.StepIndexRAG, planner.StatusDone)
	return nil
}
