package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"mailpilot/contracts/db"
	mqcontracts "mailpilot/contracts/mq"
	"mailpilot/internal/llm"
	"mailpilot/internal/mailer"
	"mailpilot/internal/planner"
	"mailpilot/internal/repository"
	"mailpilot/pkg/mq"
)

type fixture struct {
	store   *repository.MemoryStore
	queue   *mq.MemoryQueue
	tracker *planner.Tracker
	mailer  *fakeMailer
	user    *db.User
	email   *db.EmailMeta
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()
	user, err := store.UpsertUserByEmail(ctx, &db.User{Email: "demo@example.com", Name: "Demo", Provider: "dev", DefaultTone: db.ToneFriendly})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	email := &db.EmailMeta{
		ID:        "e1",
		UserID:    user.ID,
		MessageID: "msg-1",
		ThreadID:  "thread-1",
		Sender:    "ann@example.com",
		Subject:   "Invoice Reminder",
		Snippet:   "",
	}
	if _, err := store.CreateEmail(ctx, email); err != nil {
		t.Fatalf("seed email: %v", err)
	}
	return &fixture{
		store:   store,
		queue:   mq.NewMemoryQueue(mq.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, nil),
		tracker: planner.NewTracker(nil, nil),
		mailer:  &fakeMailer{},
		user:    user,
		email:   email,
	}
}

func (f *fixture) deps(p llm.Provider, opts Options) Deps {
	return Deps{
		Store:    f.store,
		Provider: p,
		Enqueuer: f.queue,
		Progress: f.tracker,
		Mailer:   f.mailer,
		Options:  opts,
	}
}

func (f *fixture) addDraft(t *testing.T, tone, text string) *db.Draft {
	t.Helper()
	d := &db.Draft{EmailID: f.email.ID, UserID: f.user.ID, Tone: tone, DraftText: text, ModelName: "stub"}
	if ok, err := f.store.CreateDraft(context.Background(), d); err != nil || !ok {
		t.Fatalf("seed draft: %v %v", ok, err)
	}
	return d
}

func (f *fixture) stepStatus(t *testing.T, step planner.StepID) planner.Status {
	t.Helper()
	p, err := f.tracker.GetOrCreatePlan(context.Background(), f.email.ID)
	if err != nil {
		t.Fatalf("GetOrCreatePlan: %v", err)
	}
	return p.Status(step)
}

func payload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func pendingDraftIDs(q *mq.MemoryQueue, kind mqcontracts.JobKind) []string {
	var ids []string
	for _, j := range q.Pending(kind) {
		var p struct {
			DraftID string `json:"draftId"`
		}
		_ = json.Unmarshal(j.Payload, &p)
		ids = append(ids, p.DraftID)
	}
	return ids
}

type fakeMailer struct {
	mu      sync.Mutex
	sent    []mailer.Reply
	failErr error
}

func (m *fakeMailer) SendReply(_ context.Context, _ *db.User, r mailer.Reply) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.sent = append(m.sent, r)
	return nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// scriptedProvider returns fixed answers and counts calls.
type scriptedProvider struct {
	llm.Stub
	label    string
	tags     []string
	variants []llm.DraftVariant
	err      error

	mu        sync.Mutex
	calls     int
	lastGen   llm.GenerateRequest
	optimizes int
}

func (p *scriptedProvider) Classify(context.Context, string, string) (*llm.Classification, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return &llm.Classification{Label: p.label, Tags: p.tags}, nil
}

func (p *scriptedProvider) GenerateDrafts(_ context.Context, req llm.GenerateRequest) (*llm.DraftSet, error) {
	p.mu.Lock()
	p.calls++
	p.lastGen = req
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return &llm.DraftSet{Variants: p.variants, Model: "scripted"}, nil
}

func (p *scriptedProvider) Optimize(ctx context.Context, text, tone string) (*llm.Optimized, error) {
	p.mu.Lock()
	p.optimizes++
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return p.Stub.Optimize(ctx, text, tone)
}

var errProviderDown = errors.New("provider down")
