package repository

import (
	"context"

	"github.com/google/uuid"

	"mailpilot/contracts/db"
)

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, name, provider, encrypted_tokens, default_tone, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*db.User, error) {
	var u db.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Provider, &u.EncryptedTokens, &u.DefaultTone, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

// FindUserByID returns user by id.
func (r *UserRepository) FindUserByID(ctx context.Context, id string) (*db.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// FindUserByEmail returns user by email.
func (r *UserRepository) FindUserByEmail(ctx context.Context, email string) (*db.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (r *UserRepository) UpsertUserByEmail(ctx context.Context, u *db.User) (*db.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.DefaultTone == "" {
		u.DefaultTone = db.ToneFriendly
	}
	query := `
        INSERT INTO users (id, email, name, provider, encrypted_tokens, default_tone)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (email) DO UPDATE
        SET name = EXCLUDED.name,
            provider = EXCLUDED.provider,
            encrypted_tokens = EXCLUDED.encrypted_tokens,
            default_tone = EXCLUDED.default_tone,
            updated_at = NOW()
        RETURNING ` + userColumns
	return scanUser(r.db.QueryRow(ctx, query, u.ID, u.Email, u.Name, u.Provider, u.EncryptedTokens, u.DefaultTone))
}
