package mqhandler

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"mailpilot/contracts/db"
	mqcontracts "mailpilot/contracts/mq"
	"mailpilot/internal/llm"
	"mailpilot/internal/planner"
)

func TestIndexTwiceCreatesOneEntry(t *testing.T) {
	f := newFixture(t)
	d := f.addDraft(t, db.ToneFriendly, "Thanks!")
	_, _ = f.store.MarkDraftSent(context.Background(), d.ID, time.Now())
	h := NewIndexRAGHandler(f.deps(llm.Stub{}, Options{}))
	job := payload(t, mqcontracts.IndexRAGPayload{DraftID: d.ID})

	for i := 0; i < 2; i++ {
		if err := h.Handle(context.Background(), job); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	entries := f.store.RAGEntries()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.UserID != f.user.ID || e.SourceMessageID != "msg-1" || e.Title != "Invoice Reminder" || e.Text != "Thanks!" {
		t.Fatalf("entry = %+v", e)
	}
	if f.stepStatus(t, planner.StepIndexRAG) != planner.StatusDone {
		t.Fatal("index step not done")
	}
}

func TestIndexPrefersOptimizedTextAndTruncatesTitle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	long := strings.Repeat("é", 100)
	email := &db.EmailMeta{ID: "e2", UserID: f.user.ID, MessageID: "msg-2", Sender: "bob@example.com", Subject: long}
	if _, err := f.store.CreateEmail(ctx, email); err != nil {
		t.Fatalf("CreateEmail: %v", err)
	}
	d := &db.Draft{EmailID: "e2", UserID: f.user.ID, Tone: db.ToneFormal, DraftText: "raw"}
	_, _ = f.store.CreateDraft(ctx, d)
	_, _ = f.store.UpdateOptimized(ctx, d.ID, "polished", nil)

	h := NewIndexRAGHandler(f.deps(llm.Stub{}, Options{}))
	if err := h.Handle(ctx, payload(t, mqcontracts.IndexRAGPayload{DraftID: d.ID})); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	entries := f.store.RAGEntries()
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}
	if entries[0].Text != "polished" {
		t.Fatalf("text = %q", entries[0].Text)
	}
	if n := utf8.RuneCountInString(entries[0].Title); n != db.RAGTitleMaxLen {
		t.Fatalf("title runes = %d", n)
	}
}

func TestIndexMissingDraftIsNoop(t *testing.T) {
	f := newFixture(t)
	h := NewIndexRAGHandler(f.deps(llm.Stub{}, Options{}))
	if err := h.Handle(context.Background(), payload(t, mqcontracts.IndexRAGPayload{DraftID: "nope"})); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(f.store.RAGEntries()) != 0 {
		t.Fatal("unexpected entry")
	}
}
