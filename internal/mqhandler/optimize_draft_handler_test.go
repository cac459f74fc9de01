package mqhandler

import (
	"context"
	"reflect"
	"testing"
	"time"

	"mailpilot/contracts/db"
	mqcontracts "mailpilot/contracts/mq"
	"mailpilot/internal/llm"
	"mailpilot/internal/planner"
)

func TestOptimizeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	d := f.addDraft(t, db.ToneFormal, "Hello")
	h := NewOptimizeDraftHandler(f.deps(llm.Stub{}, Options{}))
	job := payload(t, mqcontracts.OptimizeDraftPayload{DraftID: d.ID})

	if err := h.Handle(context.Background(), job); err != nil {
		t.Fatalf("first: %v", err)
	}
	once, _ := f.store.FindDraftByID(context.Background(), d.ID)
	if err := h.Handle(context.Background(), job); err != nil {
		t.Fatalf("second: %v", err)
	}
	twice, _ := f.store.FindDraftByID(context.Background(), d.ID)

	if once.OptimizedText == nil || *once.OptimizedText != "Hello (optimized)" {
		t.Fatalf("optimized = %v", once.OptimizedText)
	}
	if once.OptimizeConfidence == nil || *once.OptimizeConfidence != 0.9 {
		t.Fatalf("confidence = %v", once.OptimizeConfidence)
	}
	if *twice.OptimizedText != *once.OptimizedText || twice.Status != once.Status || twice.DraftText != once.DraftText ||
		!reflect.DeepEqual(twice.OptimizeConfidence, once.OptimizeConfidence) {
		t.Fatalf("state changed: once=%+v twice=%+v", once, twice)
	}
	if f.stepStatus(t, planner.StepOptimize) != planner.StatusDone || f.stepStatus(t, planner.StepAwaitUser) != planner.StatusRunning {
		t.Fatal("plan not advanced")
	}
}

func TestOptimizeSkipsSentDraft(t *testing.T) {
	f := newFixture(t)
	d := f.addDraft(t, db.ToneFormal, "Hello")
	_, _ = f.store.MarkDraftSent(context.Background(), d.ID, time.Now())
	p := &scriptedProvider{}
	h := NewOptimizeDraftHandler(f.deps(p, Options{}))

	if err := h.Handle(context.Background(), payload(t, mqcontracts.OptimizeDraftPayload{DraftID: d.ID})); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	got, _ := f.store.FindDraftByID(context.Background(), d.ID)
	if got.OptimizedText != nil || p.optimizes != 0 {
		t.Fatalf("sent draft was optimized: %+v", got)
	}
}

func TestOptimizeMissingDraftIsNoop(t *testing.T) {
	f := newFixture(t)
	p := &scriptedProvider{}
	h := NewOptimizeDraftHandler(f.deps(p, Options{}))
	if err := h.Handle(context.Background(), payload(t, mqcontracts.OptimizeDraftPayload{DraftID: "nope"})); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if p.optimizes != 0 {
		t.Fatal("provider must not be called")
	}
}
