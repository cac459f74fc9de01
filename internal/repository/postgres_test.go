package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"

	"mailpilot/contracts/db"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		mock.Close()
	})
	return mock
}

func TestMarkDraftSentTwice(t *testing.T) {
	mock := newMockPool(t)
	repo := NewDraftRepository(mock)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE drafts`).
		WithArgs("d1").
		WillReturnRows(pgxmock.NewRows([]string{"email_id"}).AddRow("e1"))
	mock.ExpectExec(`UPDATE email_meta SET replied_at`).
		WithArgs("e1", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	// 第二次：草稿已是 sent，不再改动邮件
	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE drafts`).
		WithArgs("d1").
		WillReturnRows(pgxmock.NewRows([]string{"email_id"}))
	mock.ExpectCommit()

	ok, err := repo.MarkDraftSent(ctx, "d1", at)
	if err != nil || !ok {
		t.Fatalf("first MarkDraftSent = %v, %v", ok, err)
	}
	ok, err = repo.MarkDraftSent(ctx, "d1", at.Add(time.Hour))
	if err != nil {
		t.Fatalf("second MarkDraftSent: %v", err)
	}
	if ok {
		t.Fatal("second MarkDraftSent should report no transition")
	}
}

func TestMarkDraftSentRollsBackOnError(t *testing.T) {
	mock := newMockPool(t)
	repo := NewDraftRepository(mock)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE drafts`).
		WithArgs("d1").
		WillReturnRows(pgxmock.NewRows([]string{"email_id"}).AddRow("e1"))
	mock.ExpectExec(`UPDATE email_meta SET replied_at`).
		WithArgs("e1", pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	ok, err := repo.MarkDraftSent(context.Background(), "d1", time.Now())
	if err == nil {
		t.Fatal("expected error")
	}
	if ok {
		t.Fatal("rolled back send must not report a transition")
	}
}

func TestCreateDraftConflict(t *testing.T) {
	mock := newMockPool(t)
	repo := NewDraftRepository(mock)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO drafts .* ON CONFLICT \(email_id, tone\) DO NOTHING`).
		WithArgs("d1", "e1", "u1", "formal", "Dear team", "stub", db.DraftStatusReady).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectQuery(`INSERT INTO drafts`).
		WithArgs("d2", "e1", "u1", "formal", "Dear team", "stub", db.DraftStatusReady).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}))

	first := &db.Draft{ID: "d1", EmailID: "e1", UserID: "u1", Tone: "formal", DraftText: "Dear team", ModelName: "stub"}
	created, err := repo.CreateDraft(ctx, first)
	if err != nil || !created {
		t.Fatalf("CreateDraft = %v, %v", created, err)
	}
	if !first.CreatedAt.Equal(now) {
		t.Fatalf("created_at not read back: %v", first.CreatedAt)
	}

	dup := &db.Draft{ID: "d2", EmailID: "e1", UserID: "u1", Tone: "formal", DraftText: "Dear team", ModelName: "stub"}
	created, err = repo.CreateDraft(ctx, dup)
	if err != nil {
		t.Fatalf("CreateDraft conflict: %v", err)
	}
	if created {
		t.Fatal("conflicting draft must not be reported as created")
	}
}

func TestCreateRAGEntryConflict(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRAGRepository(mock)

	mock.ExpectQuery(`INSERT INTO rag_entries .* ON CONFLICT \(user_id, source_message_id\) DO NOTHING`).
		WithArgs("r1", "u1", "Re: hi", "body", "m1").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}))

	created, err := repo.CreateRAGEntry(context.Background(), &db.RAGEntry{
		ID: "r1", UserID: "u1", Title: "Re: hi", Text: "body", SourceMessageID: "m1",
	})
	if err != nil {
		t.Fatalf("CreateRAGEntry: %v", err)
	}
	if created {
		t.Fatal("duplicate source message must not create an entry")
	}
}

func TestUpdateOptimizedLeavesSentDraft(t *testing.T) {
	mock := newMockPool(t)
	repo := NewDraftRepository(mock)

	mock.ExpectExec(`UPDATE drafts .* WHERE id = \$1 AND status <> 'sent'`).
		WithArgs("d1", "better", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	conf := 0.9
	ok, err := repo.UpdateOptimized(context.Background(), "d1", "better", &conf)
	if err != nil {
		t.Fatalf("UpdateOptimized: %v", err)
	}
	if ok {
		t.Fatal("sent draft must not be optimized")
	}
}

func TestUpdateClassificationMissingEmail(t *testing.T) {
	mock := newMockPool(t)
	repo := NewEmailRepository(mock)

	mock.ExpectExec(`UPDATE email_meta`).
		WithArgs("missing", "work", []string{}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdateClassification(context.Background(), "missing", "work", nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindDraftByIDNotFound(t *testing.T) {
	mock := newMockPool(t)
	repo := NewDraftRepository(mock)

	mock.ExpectQuery(`FROM drafts d WHERE d.id = \$1`).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.FindDraftByID(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
