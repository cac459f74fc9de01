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

// GenerateDraftHandler persists one draft per requested tone.
type GenerateDraftHandler struct {
	base
	provider llm.Provider
}

func NewGenerateDraftHandler(deps Deps) *GenerateDraftHandler {
	return &GenerateDraftHandler{base: deps.base(), provider: deps.Provider}
}

func (h *GenerateDraftHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var payload mqcontracts.GenerateDraftPayload
	if err := decode(raw, &payload); err != nil {
		h.logger.Error("Invalid GenerateDraftPayload", zap.String("raw", string(raw)), zap.Error(err))
		return err
	}
	if err := requireID("emailId", payload.EmailID); err != nil {
		return err
	}
	tones := requestedTones(payload.Tones)

	log := logger.WithTrace(ctx, h.logger).With(zap.String("email_id", payload.EmailID))
	log.Info("GenerateDraftHandler: received job", zap.Strings("tones", tones))

	email, user, err := h.store.FindEmailWithUser(ctx, payload.EmailID)
	if err != nil {
		return h.handleRepoError(log, "FindEmailWithUser", err)
	}

	existing, err := h.draftsByTone(ctx, email.ID)
	if err != nil {
		return h.handleRepoError(log, "ListDraftsByEmail", err)
	}

	var missing []string
	for _, t := range tones {
		if _, ok := existing[t]; !ok {
			missing = append(missing, t)
		}
	}

	if len(missing) > 0 {
		h.advance(ctx, log, email.ID, planner.StepGenerate, planner.StatusRunning)
		if err := h.generate(ctx, log, email, user, missing); err != nil {
			return err
		}
		if existing, err = h.draftsByTone(ctx, email.ID); err != nil {
			return h.handleRepoError(log, "ListDraftsByEmail", err)
		}
	} else {
		log.Info("Drafts already exist for all requested tones, skip generation")
	}
	h.advance(ctx, log, email.ID, planner.StepGenerate, planner.StatusDone)

	if !h.opts.EnableOptimizer {
		return nil
	}
	// 重投递时补发尚未优化的草稿
	for _, t := range tones {
		d, ok := existing[t]
		if !ok || d.OptimizedText != nil || d.Status == db.DraftStatusSent {
			continue
		}
		if err := h.enqueue(ctx, log.With(zap.String("draft_id", d.ID)), mqcontracts.KindOptimizeDraft, mqcontracts.OptimizeDraftPayload{DraftID: d.ID}); err != nil {
			return err
		}
	}
	return nil
}

func (h *GenerateDraftHandler) generate(ctx context.Context, log *zap.Logger, email *db.EmailMeta, user *db.User, tones []string) error {
	req := llm.GenerateRequest{
		Sender:        email.Sender,
		Subject:       email.Subject,
		ThreadSummary: email.Snippet,
		PreferredTone: user.DefaultTone,
		Examples:      h.examples(ctx, log, user.ID),
	}
	set, err := h.provider.GenerateDrafts(ctx, req)
	if err != nil {
		h.advance(ctx, log, email.ID, planner.StepGenerate, planner.StatusError)
		log.Warn("Draft generation failed", zap.Error(err))
		return fmt.Errorf("generate drafts: %w", err)
	}

	model := set.Model
	if model == "" {
		model = "unknown"
	}
	wanted := make(map[string]bool, len(tones))
	for _, t := range tones {
		wanted[t] = true
	}

	created := 0
	for _, v := range set.Variants {
		if !wanted[v.Tone] {
			continue
		}
		// 同一响应里重复的语气只保留第一个
		wanted[v.Tone] = false

		d := &db.Draft{
			EmailID:   email.ID,
			UserID:    email.UserID,
			Tone:      v.Tone,
			DraftText: v.Text,
			ModelName: model,
			Status:    db.DraftStatusReady,
		}
		ok, err := h.store.CreateDraft(ctx, d)
		if err != nil {
			return h.handleRepoError(log, "CreateDraft", err)
		}
		if !ok {
			log.Info("Draft for tone already exists, skip", zap.String("tone", v.Tone))
			continue
		}
		created++
	}

	log.Info("Drafts generated",
		zap.Int("variants", len(set.Variants)),
		zap.Int("created", created),
		zap.String("model", model),
	)
	return nil
}

// examples returns recent RAG texts for the writer; lookup failures only
// cost the enrichment.
func (h *GenerateDraftHandler) examples(ctx context.Context, log *zap.Logger, userID string) []string {
	if !h.opts.RAGExamples {
		return []string{}
	}
	entries, err := h.store.RecentRAGEntries(ctx, userID, ragExampleLimit)
	if err != nil {
		log.Warn("RAG examples unavailable", zap.Error(err))
		return []string{}
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Text)
	}
	return out
}

func (h *GenerateDraftHandler) draftsByTone(ctx context.Context, emailID string) (map[string]*db.Draft, error) {
	drafts, err := h.store.ListDraftsByEmail(ctx, emailID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*db.Draft, len(drafts))
	for _, d := range drafts {
		if _, ok := out[d.Tone]; !ok {
			out[d.Tone] = d
		}
	}
	return out, nil
}

// requestedTones defaults to the canonical tones and drops duplicates.
func requestedTones(in []string) []string {
	if len(in) == 0 {
		return db.DefaultTones()
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) == 0 {
		return db.DefaultTones()
	}
	return out
}
