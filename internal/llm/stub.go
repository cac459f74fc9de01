package llm

import (
	"context"
	"fmt"

	"mailpilot/contracts/db"
)

// StubModelName is recorded on drafts produced by Stub.
const StubModelName = "stub"

// Stub is a deterministic provider for local runs and tests.
type Stub struct{}

var _ Provider = Stub{}

func (Stub) Classify(context.Context, string, string) (*Classification, error) {
	return &Classification{Label: db.LabelNeedsReply, Reason: "stub", Tags: []string{"stub"}}, nil
}

func (Stub) GenerateDrafts(_ context.Context, req GenerateRequest) (*DraftSet, error) {
	return &DraftSet{
		Model: StubModelName,
		Variants: []DraftVariant{
			{Tone: db.ToneFormal, Text: fmt.Sprintf("Formal reply to %s about %s.", req.Sender, req.Subject)},
			{Tone: db.ToneFriendly, Text: fmt.Sprintf("Hey %s, thanks for the note about %s!", req.Sender, req.Subject)},
			{Tone: db.ToneConcise, Text: fmt.Sprintf("Ack %s. Will follow up soon.", req.Subject)},
		},
	}, nil
}

func (Stub) Optimize(_ context.Context, text, _ string) (*Optimized, error) {
	c := 0.9
	return &Optimized{Text: text + " (optimized)", Confidence: &c}, nil
}
