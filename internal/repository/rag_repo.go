package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"mailpilot/contracts/db"
)

type RAGRepository struct {
	db DBTX
}

func NewRAGRepository(db DBTX) *RAGRepository {
	return &RAGRepository{db: db}
}

const ragColumns = `id, user_id, title, text, source_message_id, created_at`

func ragDest(e *db.RAGEntry) []any {
	return []any{&e.ID, &e.UserID, &e.Title, &e.Text, &e.SourceMessageID, &e.CreatedAt}
}

func (r *RAGRepository) FindRAGBySource(ctx context.Context, userID, sourceMessageID string) (*db.RAGEntry, error) {
	var e db.RAGEntry
	err := r.db.QueryRow(ctx, `SELECT `+ragColumns+` FROM rag_entries WHERE user_id = $1 AND source_message_id = $2`,
		userID, sourceMessageID).Scan(ragDest(&e)...)
	if err != nil {
		return nil, mapErr(err)
	}
	return &e, nil
}

func (r *RAGRepository) CreateRAGEntry(ctx context.Context, e *db.RAGEntry) (bool, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	err := r.db.QueryRow(ctx, `
        INSERT INTO rag_entries (id, user_id, title, text, source_message_id)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (user_id, source_message_id) DO NOTHING
        RETURNING created_at
    `, e.ID, e.UserID, e.Title, e.Text, e.SourceMessageID).Scan(&e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert rag entry: %w", err)
	}
	return true, nil
}

// RecentRAGEntries returns the user's newest entries first.
func (r *RAGRepository) RecentRAGEntries(ctx context.Context, userID string, limit int) ([]*db.RAGEntry, error) {
	rows, err := r.db.Query(ctx, `
        SELECT `+ragColumns+` FROM rag_entries
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2
    `, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*db.RAGEntry
	for rows.Next() {
		var e db.RAGEntry
		if err := rows.Scan(ragDest(&e)...); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
