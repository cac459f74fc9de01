package outbox

import (
	"context"
	"fmt"

	mqcontracts "mailpilot/contracts/mq"
	"mailpilot/pkg/mq"
)

// AggregateTypeJob tags outbox rows that carry queue jobs.
const AggregateTypeJob = "job"

// Enqueuer records jobs in outbox_events; the Dispatcher publishes them.
// A job written here survives a broker outage.
type Enqueuer struct {
	repo *Repository
}

var _ mq.Enqueuer = (*Enqueuer)(nil)

func NewEnqueuer(repo *Repository) *Enqueuer {
	return &Enqueuer{repo: repo}
}

func (e *Enqueuer) Enqueue(ctx context.Context, kind mqcontracts.JobKind, payload any) error {
	return e.EnqueueWith(ctx, nil, kind, payload)
}

// EnqueueWith writes the job through q, so it commits together with the
// caller's transaction. A nil q uses the repository's pool.
func (e *Enqueuer) EnqueueWith(ctx context.Context, q DB, kind mqcontracts.JobKind, payload any) error {
	body, err := mq.EncodePayload(payload)
	if err != nil {
		return err
	}
	headers := mq.NewJobHeaders(ctx, kind)
	jobID, _ := headers[mq.HeaderJobID].(string)

	event := &Event{
		AggregateType: AggregateTypeJob,
		AggregateID:   jobID,
		RoutingKey:    kind.RoutingKey(),
		Payload:       body,
		Headers:       headers,
		Status:        StatusPending,
	}
	if err := e.repo.InsertEvent(ctx, q, event); err != nil {
		return fmt.Errorf("enqueue %s: %w", kind, err)
	}
	return nil
}
