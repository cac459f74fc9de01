package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	mqcontracts "mailpilot/contracts/mq"
	"mailpilot/internal/planner"
)

func TestParseEnqueueArgs(t *testing.T) {
	kind, payload, err := parseEnqueueArgs([]string{"classify_mail", `{"emailId":"e1"}`})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if kind != mqcontracts.KindClassifyMail {
		t.Fatalf("kind = %q", kind)
	}
	var p mqcontracts.ClassifyMailPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.EmailID != "e1" {
		t.Fatalf("payload = %s (%v)", payload, err)
	}

	if _, _, err := parseEnqueueArgs([]string{"fetch_mail", `{}`}); err == nil {
		t.Fatal("expected unknown kind error")
	}
	if _, _, err := parseEnqueueArgs([]string{"send_draft", `{"draftId":`}); err == nil {
		t.Fatal("expected invalid JSON error")
	}
}

func TestEnqueueRejectsBadArgsBeforeConnecting(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"enqueue", "nope", "{}"})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "unknown job kind") {
		t.Fatalf("err = %v", err)
	}
}

func TestRenderPlan(t *testing.T) {
	tracker := planner.NewTracker(nil, nil)
	ctx := context.Background()
	plan, err := tracker.GetOrCreatePlan(ctx, "e1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tracker.Advance(ctx, "e1", planner.StepClassify, planner.StatusDone); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := renderPlan(&buf, plan, false); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"STEP", "classify", "Classify Email", "done", "index_rag", "pending"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := renderPlan(&buf, plan, true); err != nil {
		t.Fatalf("render json: %v", err)
	}
	var decoded struct {
		EmailID string         `json:"emailId"`
		Steps   []planner.Step `json:"steps"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.EmailID != "e1" || len(decoded.Steps) != 7 {
		t.Fatalf("decoded = %+v", decoded)
	}
}
