// Package mailer delivers approved replies through the user's mail provider.
package mailer

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"strings"

	"go.uber.org/zap"

	"mailpilot/contracts/db"
)

// Reply is an outbound answer to an existing thread.
type Reply struct {
	To       string
	Subject  string
	Body     string
	ThreadID string // Gmail 按 threadId 归入原会话
}

// NewReply builds the reply to email with the given body.
func NewReply(email *db.EmailMeta, body string) Reply {
	subject := email.Subject
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}
	return Reply{
		To:       email.Sender,
		Subject:  subject,
		Body:     body,
		ThreadID: email.ThreadID,
	}
}

// Mailer sends a reply on behalf of user.
type Mailer interface {
	SendReply(ctx context.Context, user *db.User, reply Reply) error
}

// Noop logs replies instead of sending them; used when no provider is configured.
type Noop struct {
	Logger *zap.Logger
}

func (n Noop) SendReply(_ context.Context, user *db.User, reply Reply) error {
	if n.Logger != nil {
		n.Logger.Info("Reply not delivered, no mail provider configured",
			zap.String("user_id", user.ID),
			zap.String("to", reply.To),
			zap.String("thread_id", reply.ThreadID),
		)
	}
	return nil
}

// rfc822 renders reply as a minimal text/plain message, base64url encoded
// the way the Gmail API expects in Message.Raw. Header values come from
// inbound mail and are stripped of line breaks; the subject is RFC 2047
// encoded when it is not plain ASCII.
func rfc822(from string, r Reply) string {
	var b strings.Builder
	if from != "" {
		fmt.Fprintf(&b, "From: %s\r\n", headerValue(from))
	}
	fmt.Fprintf(&b, "To: %s\r\n", headerValue(r.To))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", headerValue(r.Subject)))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(r.Body)
	return base64.RawURLEncoding.EncodeToString([]byte(b.String()))
}

var headerBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

func headerValue(v string) string {
	return strings.TrimSpace(headerBreaks.Replace(v))
}
