package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"mailpilot/contracts/db"
)

type DraftRepository struct {
	db DBTX
}

func NewDraftRepository(db DBTX) *DraftRepository {
	return &DraftRepository{db: db}
}

const draftColumns = `d.id, d.email_id, d.user_id, d.tone, d.draft_text, d.optimized_text,
	d.optimize_confidence, d.model_name, d.status, d.created_at, d.updated_at`

func draftDest(d *db.Draft) []any {
	return []any{
		&d.ID, &d.EmailID, &d.UserID, &d.Tone, &d.DraftText, &d.OptimizedText,
		&d.OptimizeConfidence, &d.ModelName, &d.Status, &d.CreatedAt, &d.UpdatedAt,
	}
}

func (r *DraftRepository) FindDraftByID(ctx context.Context, id string) (*db.Draft, error) {
	var d db.Draft
	if err := r.db.QueryRow(ctx, `SELECT `+draftColumns+` FROM drafts d WHERE d.id = $1`, id).Scan(draftDest(&d)...); err != nil {
		return nil, mapErr(err)
	}
	return &d, nil
}

// FindDraftWithEmail returns the draft and the email it replies to.
func (r *DraftRepository) FindDraftWithEmail(ctx context.Context, id string) (*db.Draft, *db.EmailMeta, error) {
	query := `
        SELECT ` + draftColumns + `, ` + emailColumns + `
        FROM drafts d
        JOIN email_meta e ON e.id = d.email_id
        WHERE d.id = $1
    `
	var d db.Draft
	var e db.EmailMeta
	if err := r.db.QueryRow(ctx, query, id).Scan(append(draftDest(&d), emailDest(&e)...)...); err != nil {
		return nil, nil, mapErr(err)
	}
	return &d, &e, nil
}

func (r *DraftRepository) ListDraftsByEmail(ctx context.Context, emailID string) ([]*db.Draft, error) {
	rows, err := r.db.Query(ctx, `SELECT `+draftColumns+` FROM drafts d WHERE d.email_id = $1 ORDER BY d.created_at`, emailID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*db.Draft
	for rows.Next() {
		var d db.Draft
		if err := rows.Scan(draftDest(&d)...); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (r *DraftRepository) CreateDraft(ctx context.Context, d *db.Draft) (bool, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = db.DraftStatusReady
	}
	query := `
        INSERT INTO drafts (id, email_id, user_id, tone, draft_text, model_name, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (email_id, tone) DO NOTHING
        RETURNING created_at, updated_at
    `
	err := r.db.QueryRow(ctx, query, d.ID, d.EmailID, d.UserID, d.Tone, d.DraftText, d.ModelName, d.Status).
		Scan(&d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert draft: %w", err)
	}
	return true, nil
}

func (r *DraftRepository) UpdateOptimized(ctx context.Context, draftID, text string, confidence *float64) (bool, error) {
	tag, err := r.db.Exec(ctx, `
        UPDATE drafts
        SET optimized_text = $2, optimize_confidence = $3, status = 'ready', updated_at = NOW()
        WHERE id = $1 AND status <> 'sent'
    `, draftID, text, confidence)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *DraftRepository) MarkDraftSent(ctx context.Context, draftID string, at time.Time) (bool, error) {
	var transitioned bool
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		var emailID string
		err := tx.QueryRow(ctx, `
            UPDATE drafts
            SET status = 'sent', updated_at = NOW()
            WHERE id = $1 AND status <> 'sent'
            RETURNING email_id
        `, draftID).Scan(&emailID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		transitioned = true

		// replied_at 只写一次
		_, err = tx.Exec(ctx, `
            UPDATE email_meta SET replied_at = $2
            WHERE id = $1 AND replied_at IS NULL
        `, emailID, at)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("mark draft sent: %w", err)
	}
	return transitioned, nil
}
