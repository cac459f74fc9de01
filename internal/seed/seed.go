// Package seed loads demo data: one user and a handful of inbox emails.
package seed

import (
	"context"
	"fmt"
	"strings"

	"mailpilot/contracts/db"
	"mailpilot/internal/repository"
)

const DemoUserEmail = "demo@example.com"

var demoSubjects = []string{
	"Project Update",
	"Invoice Reminder",
	"Meeting Schedule",
	"Campaign Results",
}

// Result lists the seeded rows. Emails contains existing rows too.
type Result struct {
	User    *db.User
	Emails  []*db.EmailMeta
	Created int
}

// Run upserts the demo user and its emails. Message ids are derived from the
// subject, so running it again creates nothing new.
func Run(ctx context.Context, store repository.Store) (*Result, error) {
	user, err := store.UpsertUserByEmail(ctx, &db.User{
		Email:           DemoUserEmail,
		Name:            "Demo User",
		Provider:        "dev",
		EncryptedTokens: "",
		DefaultTone:     db.ToneFriendly,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert demo user: %w", err)
	}

	res := &Result{User: user}
	for _, subject := range demoSubjects {
		slug := strings.ToLower(strings.ReplaceAll(subject, " ", "-"))
		e := &db.EmailMeta{
			UserID:     user.ID,
			MessageID:  "seed-" + slug,
			ThreadID:   "seed-thread-" + slug,
			Sender:     "alice@example.com",
			Recipients: user.Email,
			Subject:    subject,
			Snippet:    "Lorem ipsum snippet for " + subject,
			Labels:     []string{"INBOX"},
		}
		created, err := store.CreateEmail(ctx, e)
		if err != nil {
			return nil, fmt.Errorf("create email %q: %w", subject, err)
		}
		if created {
			res.Created++
		}
		res.Emails = append(res.Emails, e)
	}
	return res, nil
}
