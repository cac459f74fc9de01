package db

import "time"

// User 表示 users 表；EncryptedTokens 为 secret.Sealer 封装后的 OAuth token JSON
type User struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	Name            string    `json:"name"`
	Provider        string    `json:"provider"` // google / dev
	EncryptedTokens string    `json:"-"`
	DefaultTone     string    `json:"default_tone"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
