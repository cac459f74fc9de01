package db

import "time"

// Classification labels returned by the capability provider.
const (
	LabelNeedsReply  = "NeedsReply"
	LabelNoReply     = "NoReply"
	LabelLowPriority = "LowPriority"
	LabelUrgent      = "Urgent"
)

// ValidLabel reports whether label belongs to the fixed classification set.
func ValidLabel(label string) bool {
	switch label {
	case LabelNeedsReply, LabelNoReply, LabelLowPriority, LabelUrgent:
		return true
	}
	return false
}

// EmailMeta 表示 email_meta 表；(UserID, MessageID) 唯一
type EmailMeta struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"user_id"`
	MessageID           string     `json:"message_id"`
	ThreadID            string     `json:"thread_id"`
	Sender              string     `json:"sender"`
	Recipients          string     `json:"recipients"`
	Subject             string     `json:"subject"`
	Snippet             string     `json:"snippet"`
	Labels              []string   `json:"labels"`
	ClassificationLabel *string    `json:"classification_label,omitempty"`
	ClassificationTags  []string   `json:"classification_tags,omitempty"`
	RepliedAt           *time.Time `json:"replied_at,omitempty"`
	FetchedAt           time.Time  `json:"fetched_at"`
}
