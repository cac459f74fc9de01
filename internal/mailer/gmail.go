package mailer

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"mailpilot/contracts/db"
	"mailpilot/pkg/metrics"
	"mailpilot/pkg/secret"
	"mailpilot/pkg/util"
)

// ErrNoCredential is returned for users that never connected a mailbox.
var ErrNoCredential = errors.New("mailer: user has no stored credential")

type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Endpoint overrides the API base URL; empty means the public endpoint.
	Endpoint string
}

// Gmail sends replies with the Gmail API using the user's sealed OAuth token.
type Gmail struct {
	oauth  *oauth2.Config
	sealer *secret.Sealer
	opts   []option.ClientOption
}

var _ Mailer = (*Gmail)(nil)

func NewGmail(cfg GmailConfig, sealer *secret.Sealer) *Gmail {
	g := &Gmail{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gmail.GmailSendScope},
		},
		sealer: sealer,
	}
	if cfg.Endpoint != "" {
		g.opts = append(g.opts, option.WithEndpoint(cfg.Endpoint))
	}
	return g
}

func (g *Gmail) SendReply(ctx context.Context, user *db.User, reply Reply) error {
	svc, err := g.service(ctx, user)
	if err != nil {
		metrics.IncrementReplySent("credential_error")
		return err
	}

	msg := &gmail.Message{
		Raw:      rfc822(user.Email, reply),
		ThreadId: reply.ThreadID,
	}
	if _, err := svc.Users.Messages.Send("me", msg).Context(ctx).Do(); err != nil {
		metrics.IncrementReplySent("error")
		return fmt.Errorf("gmail send: %w", err)
	}
	metrics.IncrementReplySent("success")
	return nil
}

func (g *Gmail) service(ctx context.Context, user *db.User) (*gmail.Service, error) {
	if user.EncryptedTokens == "" {
		return nil, util.Permanent(ErrNoCredential)
	}
	var tok oauth2.Token
	if err := g.sealer.OpenJSON(user.EncryptedTokens, &tok); err != nil {
		return nil, err
	}
	client := oauth2.NewClient(ctx, g.oauth.TokenSource(ctx, &tok))
	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, g.opts...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gmail service: %w", err)
	}
	return svc, nil
}
