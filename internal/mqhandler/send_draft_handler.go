package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mailpilot/contracts/db"
	mqcontracts "mailpilot/contracts/mq"
	"mailpilot/internal/mailer"
	"mailpilot/internal/planner"
	"mailpilot/pkg/logger"
	"mailpilot/pkg/util"
)

// SendDraftHandler marks an approved draft sent and delivers it. The mailer
// is only called by the delivery that performed the ready→sent transition,
// so a reply goes out at most once.
type SendDraftHandler struct {
	base
	mailer mailer.Mailer
	now    func() time.Time
}

func NewSendDraftHandler(deps Deps) *SendDraftHandler {
	m := deps.Mailer
	if m == nil {
		m = mailer.Noop{Logger: deps.Logger}
	}
	return &SendDraftHandler{base: deps.base(), mailer: m, now: time.Now}
}

func (h *SendDraftHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var payload mqcontracts.SendDraftPayload
	if err := decode(raw, &payload); err != nil {
		h.logger.Error("Invalid SendDraftPayload", zap.String("raw", string(raw)), zap.Error(err))
		return err
	}
	if err := requireID("draftId", payload.DraftID); err != nil {
		return err
	}

	log := logger.WithTrace(ctx, h.logger).With(zap.String("draft_id", payload.DraftID))
	log.Info("SendDraftHandler: received job")

	draft, email, err := h.store.FindDraftWithEmail(ctx, payload.DraftID)
	if err != nil {
		return h.handleRepoError(log, "FindDraftWithEmail", err)
	}
	log = log.With(zap.String("email_id", email.ID))

	h.advance(ctx, log, email.ID, planner.StepAwaitUser, planner.StatusDone)

	if draft.Status == db.DraftStatusSent {
		log.Info("Draft already sent, skip delivery")
		return h.afterSent(ctx, log, draft, email)
	}

	// 先加载用户：状态翻转之后不能再有可重试的失败
	user, err := h.store.FindUserByID(ctx, draft.UserID)
	if err != nil {
		return h.handleRepoError(log, "FindUserByID", err)
	}

	h.advance(ctx, log, email.ID, planner.StepSend, planner.StatusRunning)

	transitioned, err := h.store.MarkDraftSent(ctx, draft.ID, h.now())
	if err != nil {
		return h.handleRepoError(log, "MarkDraftSent", err)
	}
	if !transitioned {
		log.Info("Draft sent by a concurrent delivery, skip")
		return h.afterSent(ctx, log, draft, email)
	}

	if err := h.mailer.SendReply(ctx, user, mailer.NewReply(email, draft.FinalText())); err != nil {
		h.advance(ctx, log, email.ID, planner.StepSend, planner.StatusError)
		log.Error("Reply delivery failed after draft was marked sent", zap.Error(err))
		// 重试会看到 sent 状态而不再投递，只能交给死信人工处理
		return util.Permanent(fmt.Errorf("deliver reply: %w", err))
	}

	log.Info("Reply sent", zap.String("tone", draft.Tone))
	return h.afterSent(ctx, log, draft, email)
}

func (h *SendDraftHandler) afterSent(ctx context.Context, log *zap.Logger, draft *db.Draft, email *db.EmailMeta) error {
	h.advance(ctx, log, email.ID, planner.StepSend, planner.StatusDone)
	if !h.opts.EnableRAG {
		return nil
	}
	return h.enqueue(ctx, log, mqcontracts.KindIndexRAG, mqcontracts.IndexRAGPayload{DraftID: draft.ID})
}
