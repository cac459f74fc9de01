package planner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Progress is what stage workers need to report pipeline progress.
type Progress interface {
	Advance(ctx context.Context, emailID string, step StepID, to Status) (bool, error)
}

// Persister stores step statuses outside the process. It is shared by every
// worker replica, so transitions are checked against the stored value.
type Persister interface {
	// Load returns ok=false when nothing is stored for emailID.
	Load(ctx context.Context, emailID string) (map[StepID]Status, bool, error)
	// Advance atomically applies one forward-only transition to the stored
	// step and reports whether it was applied. Other steps are not touched.
	Advance(ctx context.Context, emailID string, step StepID, to Status) (bool, error)
}

// Tracker owns every plan of the process. Create one at startup and share it.
type Tracker struct {
	persister Persister
	logger    *zap.Logger

	mu    sync.Mutex
	plans map[string]*Plan
}

var _ Progress = (*Tracker)(nil)

// NewTracker creates a tracker; persister and logger may be nil.
func NewTracker(persister Persister, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		persister: persister,
		logger:    logger,
		plans:     make(map[string]*Plan),
	}
}

// GetOrCreatePlan returns the plan of emailID, building the initial
// all-pending plan on first use. Every call for the same id returns the same
// *Plan. With a persister the plan is refreshed from the store on each call,
// so progress made by other replicas shows up.
func (t *Tracker) GetOrCreatePlan(ctx context.Context, emailID string) (*Plan, error) {
	if emailID == "" {
		return nil, errors.New("planner: empty email id")
	}

	t.mu.Lock()
	p, ok := t.plans[emailID]
	if !ok {
		p = newPlan(emailID)
		t.plans[emailID] = p
	}
	t.mu.Unlock()

	if t.persister != nil {
		t.refresh(ctx, p)
	}
	return p, nil
}

func (t *Tracker) refresh(ctx context.Context, p *Plan) {
	statuses, ok, err := t.persister.Load(ctx, p.EmailID)
	switch {
	case err != nil:
		t.logger.Warn("Plan load failed, using cached plan",
			zap.String("email_id", p.EmailID),
			zap.Error(err),
		)
	case ok:
		p.merge(statuses)
	}
}

// Advance moves step forward to status. It reports false when the
// transition would regress the step; the plan is then unchanged. With a
// persister the stored plan decides.
func (t *Tracker) Advance(ctx context.Context, emailID string, step StepID, to Status) (bool, error) {
	p, err := t.GetOrCreatePlan(ctx, emailID)
	if err != nil {
		return false, err
	}
	if p.Status(step) == "" || !validStatus(to) {
		return false, nil
	}
	if t.persister == nil {
		return p.advance(step, to), nil
	}

	applied, err := t.persister.Advance(ctx, emailID, step, to)
	if err != nil {
		// 存储不可用时仍推进本地计划
		return p.advance(step, to), fmt.Errorf("planner: persist %s/%s: %w", emailID, step, err)
	}
	if applied {
		p.set(step, to)
	}
	return applied, nil
}
