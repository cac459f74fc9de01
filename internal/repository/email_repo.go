package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"mailpilot/contracts/db"
)

type EmailRepository struct {
	db DBTX
}

func NewEmailRepository(db DBTX) *EmailRepository {
	return &EmailRepository{db: db}
}

const emailColumns = `e.id, e.user_id, e.message_id, e.thread_id, e.sender, e.recipients, e.subject,
	e.snippet, e.labels, e.classification_label, e.classification_tags, e.replied_at, e.fetched_at`

func emailDest(e *db.EmailMeta) []any {
	return []any{
		&e.ID, &e.UserID, &e.MessageID, &e.ThreadID, &e.Sender, &e.Recipients, &e.Subject,
		&e.Snippet, &e.Labels, &e.ClassificationLabel, &e.ClassificationTags, &e.RepliedAt, &e.FetchedAt,
	}
}

// FindEmailByID returns email metadata by id.
func (r *EmailRepository) FindEmailByID(ctx context.Context, id string) (*db.EmailMeta, error) {
	var e db.EmailMeta
	err := r.db.QueryRow(ctx, `SELECT `+emailColumns+` FROM email_meta e WHERE e.id = $1`, id).Scan(emailDest(&e)...)
	if err != nil {
		return nil, mapErr(err)
	}
	return &e, nil
}

// FindEmailWithUser returns the email and its owner in a single query.
func (r *EmailRepository) FindEmailWithUser(ctx context.Context, id string) (*db.EmailMeta, *db.User, error) {
	query := `
        SELECT ` + emailColumns + `,
            u.id, u.email, u.name, u.provider, u.encrypted_tokens, u.default_tone, u.created_at, u.updated_at
        FROM email_meta e
        JOIN users u ON u.id = e.user_id
        WHERE e.id = $1
    `
	var e db.EmailMeta
	var u db.User
	dest := append(emailDest(&e),
		&u.ID, &u.Email, &u.Name, &u.Provider, &u.EncryptedTokens, &u.DefaultTone, &u.CreatedAt, &u.UpdatedAt)
	if err := r.db.QueryRow(ctx, query, id).Scan(dest...); err != nil {
		return nil, nil, mapErr(err)
	}
	return &e, &u, nil
}

func (r *EmailRepository) CreateEmail(ctx context.Context, e *db.EmailMeta) (bool, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Labels == nil {
		e.Labels = []string{}
	}
	query := `
        INSERT INTO email_meta (id, user_id, message_id, thread_id, sender, recipients, subject, snippet, labels)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (user_id, message_id) DO NOTHING
    `
	tag, err := r.db.Exec(ctx, query, e.ID, e.UserID, e.MessageID, e.ThreadID, e.Sender, e.Recipients, e.Subject, e.Snippet, e.Labels)
	if err != nil {
		return false, fmt.Errorf("insert email_meta: %w", err)
	}
	created := tag.RowsAffected() == 1

	// 读回数据库中的行（冲突时为已有行）
	err = r.db.QueryRow(ctx, `SELECT `+emailColumns+` FROM email_meta e WHERE e.user_id = $1 AND e.message_id = $2`,
		e.UserID, e.MessageID).Scan(emailDest(e)...)
	if err != nil {
		return created, mapErr(err)
	}
	return created, nil
}

// UpdateClassification stores label and tags in one statement.
func (r *EmailRepository) UpdateClassification(ctx context.Context, emailID, label string, tags []string) error {
	if tags == nil {
		tags = []string{}
	}
	tag, err := r.db.Exec(ctx, `
        UPDATE email_meta
        SET classification_label = $2, classification_tags = $3
        WHERE id = $1
    `, emailID, label, tags)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
