package db

import "time"

const (
	DraftStatusReady = "ready"
	DraftStatusSent  = "sent"
)

// Canonical reply tones.
const (
	ToneFormal   = "formal"
	ToneFriendly = "friendly"
	ToneConcise  = "concise"
)

// DefaultTones is used when a GenerateDraft job names no tones.
func DefaultTones() []string {
	return []string{ToneFormal, ToneFriendly, ToneConcise}
}

// Draft 表示 drafts 表；(EmailID, Tone) 唯一
type Draft struct {
	ID                 string    `json:"id"`
	EmailID            string    `json:"email_id"`
	UserID             string    `json:"user_id"`
	Tone               string    `json:"tone"`
	DraftText          string    `json:"draft_text"`
	OptimizedText      *string   `json:"optimized_text,omitempty"`
	OptimizeConfidence *float64  `json:"optimize_confidence,omitempty"`
	ModelName          string    `json:"model_name"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// FinalText returns the optimized text when present, the generated text otherwise.
func (d *Draft) FinalText() string {
	if d.OptimizedText != nil && *d.OptimizedText != "" {
		return *d.OptimizedText
	}
	return d.DraftText
}
