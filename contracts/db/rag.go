package db

import "time"

// RAGTitleMaxLen bounds RAGEntry.Title.
const RAGTitleMaxLen = 80

// RAGEntry 表示 rag_entries 表；(UserID, SourceMessageID) 唯一，创建后不可变
type RAGEntry struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Title           string    `json:"title"`
	Text            string    `json:"text"`
	SourceMessageID string    `json:"source_message_id"`
	CreatedAt       time.Time `json:"created_at"`
}

// TruncateTitle cuts subject to RAGTitleMaxLen runes.
func TruncateTitle(subject string) string {
	r := []rune(subject)
	if len(r) <= RAGTitleMaxLen {
		return subject
	}
	return string(r[:RAGTitleMaxLen])
}
