package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"mailpilot/contracts/db"
)

// DBTX is satisfied by *pgxpool.Pool.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ErrNotFound is returned when a looked-up entity does not exist.
var ErrNotFound = errors.New("entity not found")

type Users interface {
	FindUserByID(ctx context.Context, id string) (*db.User, error)
	FindUserByEmail(ctx context.Context, email string) (*db.User, error)
	// UpsertUserByEmail creates the user or updates name, provider, tokens
	// and tone of the existing row with the same email.
	UpsertUserByEmail(ctx context.Context, u *db.User) (*db.User, error)
}

type Emails interface {
	FindEmailByID(ctx context.Context, id string) (*db.EmailMeta, error)
	FindEmailWithUser(ctx context.Context, id string) (*db.EmailMeta, *db.User, error)
	// CreateEmail returns false when (user_id, message_id) already exists;
	// e is then filled with the existing row.
	CreateEmail(ctx context.Context, e *db.EmailMeta) (bool, error)
	UpdateClassification(ctx context.Context, emailID, label string, tags []string) error
}

type Drafts interface {
	FindDraftByID(ctx context.Context, id string) (*db.Draft, error)
	FindDraftWithEmail(ctx context.Context, id string) (*db.Draft, *db.EmailMeta, error)
	ListDraftsByEmail(ctx context.Context, emailID string) ([]*db.Draft, error)
	// CreateDraft returns false when a draft with the same (email_id, tone)
	// exists.
	CreateDraft(ctx context.Context, d *db.Draft) (bool, error)
	// UpdateOptimized sets optimized text and confidence and resets status
	// to ready. Sent drafts are left alone and false is returned.
	UpdateOptimized(ctx context.Context, draftID, text string, confidence *float64) (bool, error)
	// MarkDraftSent atomically flips the draft to sent and stamps the
	// email's replied_at if it is still null. It returns false when the
	// draft was already sent.
	MarkDraftSent(ctx context.Context, draftID string, at time.Time) (bool, error)
}

type RAG interface {
	FindRAGBySource(ctx context.Context, userID, sourceMessageID string) (*db.RAGEntry, error)
	// CreateRAGEntry returns false when (user_id, source_message_id) exists.
	CreateRAGEntry(ctx context.Context, e *db.RAGEntry) (bool, error)
	RecentRAGEntries(ctx context.Context, userID string, limit int) ([]*db.RAGEntry, error)
}

// Store is the entity store used by the pipeline stages.
type Store interface {
	Users
	Emails
	Drafts
	RAG
}

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	*UserRepository
	*EmailRepository
	*DraftRepository
	*RAGRepository
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(pool DBTX) *PostgresStore {
	return &PostgresStore{
		UserRepository:  NewUserRepository(pool),
		EmailRepository: NewEmailRepository(pool),
		DraftRepository: NewDraftRepository(pool),
		RAGRepository:   NewRAGRepository(pool),
	}
}

func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
