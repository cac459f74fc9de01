package mq

import "fmt"

// JobKind names a queue channel with a fixed payload shape.
type JobKind string

const (
	KindClassifyMail  JobKind = "classify_mail"
	KindGenerateDraft JobKind = "generate_draft"
	KindOptimizeDraft JobKind = "optimize_draft"
	KindSendDraft     JobKind = "send_draft"
	KindIndexRAG      JobKind = "index_rag"
)

// AllKinds lists the job kinds in pipeline order.
func AllKinds() []JobKind {
	return []JobKind{KindClassifyMail, KindGenerateDraft, KindOptimizeDraft, KindSendDraft, KindIndexRAG}
}

// ParseKind validates a job kind name.
func ParseKind(s string) (JobKind, error) {
	for _, k := range AllKinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown job kind %q", s)
}

// RoutingKey is the broker routing key for a kind, e.g. "job.classify_mail".
func (k JobKind) RoutingKey() string {
	return "job." + string(k)
}

// QueueName is the durable work queue for a kind, e.g. "classify_mail.q".
func (k JobKind) QueueName() string {
	return string(k) + ".q"
}

type ClassifyMailPayload struct {
	EmailID string `json:"emailId"`
}

type GenerateDraftPayload struct {
	EmailID string   `json:"emailId"`
	Tones   []string `json:"tones,omitempty"`
}

type OptimizeDraftPayload struct {
	DraftID string `json:"draftId"`
}

type SendDraftPayload struct {
	DraftID string `json:"draftId"`
}

type IndexRAGPayload struct {
	DraftID string `json:"draftId"`
}
