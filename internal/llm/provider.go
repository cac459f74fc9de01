// Package llm defines the capability provider used by the pipeline stages
// and its implementations: a deterministic Stub and an HTTP AgentClient.
package llm

import "context"

// Classification is the provider's verdict for one message.
type Classification struct {
	Label  string   `json:"label"`
	Reason string   `json:"reason"`
	Tags   []string `json:"tags"`
}

type DraftVariant struct {
	Tone string `json:"tone"`
	Text string `json:"text"`
}

// DraftSet is one generation call's output. Variants may contain tones
// nobody asked for, or the same tone twice.
type DraftSet struct {
	Variants []DraftVariant `json:"variants"`
	Model    string         `json:"model"`
}

type GenerateRequest struct {
	Sender        string   `json:"sender"`
	Subject       string   `json:"subject"`
	ThreadSummary string   `json:"threadSummary"`
	PreferredTone string   `json:"preferredTone,omitempty"`
	Examples      []string `json:"examples,omitempty"`
}

type Optimized struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Provider is the language-model backend. Implementations return errors
// tagged with util.Transient or util.Permanent where the distinction is known.
type Provider interface {
	Classify(ctx context.Context, subject, snippet string) (*Classification, error)
	GenerateDrafts(ctx context.Context, req GenerateRequest) (*DraftSet, error)
	Optimize(ctx context.Context, text, tone string) (*Optimized, error)
}
