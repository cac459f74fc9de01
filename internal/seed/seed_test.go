package seed

import (
	"context"
	"testing"

	"mailpilot/internal/repository"
)

func TestRunIsIdempotent(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()

	first, err := Run(ctx, store)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Created != len(demoSubjects) || len(first.Emails) != len(demoSubjects) {
		t.Fatalf("first run created %d of %d", first.Created, len(first.Emails))
	}

	second, err := Run(ctx, store)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Created != 0 {
		t.Fatalf("second run created %d", second.Created)
	}
	if second.User.ID != first.User.ID {
		t.Fatal("user id changed")
	}
	for i := range first.Emails {
		if first.Emails[i].ID != second.Emails[i].ID {
			t.Fatalf("email %d id changed", i)
		}
	}
}
