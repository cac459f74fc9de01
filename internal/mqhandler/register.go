package mqhandler

import (
	"fmt"

	"go.uber.org/zap"

	mqcontracts "mailpilot/contracts/mq"
	"mailpilot/internal/llm"
	"mailpilot/internal/mailer"
	"mailpilot/internal/planner"
	"mailpilot/internal/repository"
	"mailpilot/pkg/mq"
)

// Deps wires the stage workers.
type Deps struct {
	Store    repository.Store
	Provider llm.Provider
	// Enqueuer receives follow-up jobs; usually the outbox or the queue itself.
	Enqueuer mq.Enqueuer
	// Progress may be nil.
	Progress planner.Progress
	// Mailer may be nil, replies are then only logged.
	Mailer  mailer.Mailer
	Options Options
	Logger  *zap.Logger
}

func (d Deps) base() base {
	l := d.Logger
	if l == nil {
		l = zap.NewNop()
	}
	return base{
		store:    d.Store,
		enqueuer: d.Enqueuer,
		progress: d.Progress,
		opts:     d.Options,
		logger:   l,
	}
}

// Handlers returns the handler of every job kind.
func Handlers(deps Deps) map[mqcontracts.JobKind]mq.MessageHandler {
	return map[mqcontracts.JobKind]mq.MessageHandler{
		mqcontracts.KindClassifyMail:  NewClassifyMailHandler(deps).Handle,
		mqcontracts.KindGenerateDraft: NewGenerateDraftHandler(deps).Handle,
		mqcontracts.KindOptimizeDraft: NewOptimizeDraftHandler(deps).Handle,
		mqcontracts.KindSendDraft:     NewSendDraftHandler(deps).Handle,
		mqcontracts.KindIndexRAG:      NewIndexRAGHandler(deps).Handle,
	}
}

// Register binds all stage workers to q.
func Register(q mq.Queue, deps Deps) error {
	handlers := Handlers(deps)
	for _, kind := range mqcontracts.AllKinds() {
		if err := q.Consume(kind, handlers[kind]); err != nil {
			return fmt.Errorf("register %s: %w", kind, err)
		}
	}
	return nil
}
