package outbox

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"mailpilot/pkg/mq"
	"mailpilot/pkg/trace"
)

type fakeStore struct {
	pending []*Event
	failed  []*Event
	sent    []int64
	marked  []int64
}

func (s *fakeStore) GetPendingEvents(context.Context, int) ([]*Event, error) { return s.pending, nil }
func (s *fakeStore) GetFailedEvents(context.Context, int) ([]*Event, error)  { return s.failed, nil }

func (s *fakeStore) GetEventByID(_ context.Context, id int64) (*Event, error) {
	for _, e := range append(s.pending, s.failed...) {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, ErrEventNotFound
}

func (s *fakeStore) MarkAsSent(_ context.Context, id int64) error {
	s.sent = append(s.sent, id)
	return nil
}

func (s *fakeStore) MarkAsFailed(_ context.Context, id int64, _ int) error {
	s.marked = append(s.marked, id)
	return nil
}

type published struct {
	routingKey string
	body       string
	traceID    string
	headers    map[string]interface{}
}

type fakePublisher struct {
	fail map[string]bool
	// nack 模拟 broker 拒绝确认
	nack map[string]bool
	got  []published
}

func (p *fakePublisher) PublishWithContext(ctx context.Context, routingKey string, body []byte, headers map[string]interface{}) error {
	if p.fail[routingKey] {
		return errors.New("broker unavailable")
	}
	if p.nack[routingKey] {
		return mq.ErrPublishNacked
	}
	p.got = append(p.got, published{routingKey, string(body), trace.FromContext(ctx), headers})
	return nil
}

func TestDispatcherPublishesAndMarks(t *testing.T) {
	store := &fakeStore{pending: []*Event{
		{ID: 1, RoutingKey: "job.classify_mail", Payload: []byte(`{"emailId":"e1"}`), Headers: map[string]interface{}{trace.HeaderTraceID: "t1", "x-job-id": "j1"}},
		{ID: 2, RoutingKey: "job.send_draft", Payload: []byte(`{"draftId":"d1"}`)},
	}}
	pub := &fakePublisher{fail: map[string]bool{"job.send_draft": true}}

	n := NewDispatcher(store, pub, zap.NewNop()).ProcessPending(context.Background())

	if n != 1 {
		t.Fatalf("published = %d, want 1", n)
	}
	if len(pub.got) != 1 || pub.got[0].traceID != "t1" || pub.got[0].body != `{"emailId":"e1"}` {
		t.Fatalf("unexpected publish %+v", pub.got)
	}
	if pub.got[0].headers["x-job-id"] != "j1" {
		t.Fatalf("job id header lost: %+v", pub.got[0].headers)
	}
	if len(store.sent) != 1 || store.sent[0] != 1 {
		t.Fatalf("sent = %v", store.sent)
	}
	if len(store.marked) != 1 || store.marked[0] != 2 {
		t.Fatalf("failed marks = %v", store.marked)
	}
}

func TestReplayFailedEvents(t *testing.T) {
	store := &fakeStore{failed: []*Event{
		{ID: 7, RoutingKey: "job.index_rag", Payload: []byte(`{"draftId":"d1"}`)},
		{ID: 8, RoutingKey: "job.optimize_draft", Payload: []byte(`{"draftId":"d2"}`)},
	}}
	pub := &fakePublisher{fail: map[string]bool{"job.optimize_draft": true}}

	n, err := NewReplayService(store, pub, zap.NewNop()).ReplayFailedEvents(context.Background(), 10)
	if err != nil {
		t.Fatalf("ReplayFailedEvents: %v", err)
	}
	if n != 1 || len(store.sent) != 1 || store.sent[0] != 7 {
		t.Fatalf("n=%d sent=%v", n, store.sent)
	}
}

func TestReplayUnknownEvent(t *testing.T) {
	err := NewReplayService(&fakeStore{}, &fakePublisher{}, zap.NewNop()).ReplayEvent(context.Background(), 42)
	if !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}

func TestDispatcherLeavesNackedEventUnsent(t *testing.T) {
	store := &fakeStore{pending: []*Event{
		{ID: 3, RoutingKey: "job.generate_draft", Payload: []byte(`{"emailId":"e3"}`)},
		{ID: 4, RoutingKey: "job.index_rag", Payload: []byte(`{"draftId":"d4"}`)},
	}}
	pub := &fakePublisher{nack: map[string]bool{"job.generate_draft": true}}

	n := NewDispatcher(store, pub, zap.NewNop()).ProcessPending(context.Background())

	if n != 1 {
		t.Fatalf("published = %d, want 1", n)
	}
	for _, id := range store.sent {
		if id == 3 {
			t.Fatal("nacked event was marked sent")
		}
	}
	if len(store.marked) != 1 || store.marked[0] != 3 {
		t.Fatalf("nacked event should stay pending with a retry count, marks = %v", store.marked)
	}
}
