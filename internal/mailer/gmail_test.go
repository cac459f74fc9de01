package mailer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"mailpilot/contracts/db"
	"mailpilot/pkg/secret"
	"mailpilot/pkg/util"
)

func TestGmailSendReply(t *testing.T) {
	var raw, threadID, auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/users/me/messages/send") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		var msg struct {
			Raw      string `json:"raw"`
			ThreadID string `json:"threadId"`
		}
		_ = json.NewDecoder(r.Body).Decode(&msg)
		raw, threadID = msg.Raw, msg.ThreadID
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "sent-1", "threadId": msg.ThreadID})
	}))
	defer server.Close()

	sealer, _ := secret.NewSealer("test-key")
	sealed, err := sealer.SealJSON(&oauth2.Token{
		AccessToken: "access-1",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("SealJSON: %v", err)
	}

	g := NewGmail(GmailConfig{ClientID: "id", Endpoint: server.URL + "/"}, sealer)
	user := &db.User{ID: "u1", Email: "me@example.com", EncryptedTokens: sealed}
	email := &db.EmailMeta{Sender: "ann@example.com", Subject: "Lunch", ThreadID: "th-1", MessageID: "<m1@example.com>"}

	if err := g.SendReply(context.Background(), user, NewReply(email, "Sounds good")); err != nil {
		t.Fatalf("SendReply: %v", err)
	}
	if auth != "Bearer access-1" {
		t.Fatalf("authorization = %q", auth)
	}
	if threadID != "th-1" {
		t.Fatalf("thread id = %q", threadID)
	}
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(raw, "="))
	if err != nil {
		t.Fatalf("decode raw: %v", err)
	}
	body := string(decoded)
	for _, want := range []string{"To: ann@example.com", "Subject: Re: Lunch", "Sounds good"} {
		if !strings.Contains(body, want) {
			t.Errorf("message missing %q:\n%s", want, body)
		}
	}
	// 存储的 message_id 是 Gmail id，不是 RFC 5322 Message-ID
	if strings.Contains(body, "In-Reply-To") || strings.Contains(body, "References") {
		t.Errorf("message must not carry threading headers:\n%s", body)
	}
}

func TestGmailWithoutCredentialIsPermanent(t *testing.T) {
	sealer, _ := secret.NewSealer("test-key")
	g := NewGmail(GmailConfig{}, sealer)
	err := g.SendReply(context.Background(), &db.User{ID: "u1"}, Reply{To: "x@y.z"})
	if !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
	if retry, _ := util.IsRetryableError(err); retry {
		t.Fatal("missing credential must not be retried")
	}
}

func TestNewReplyKeepsExistingPrefix(t *testing.T) {
	r := NewReply(&db.EmailMeta{Subject: "RE: budget", Sender: "a@b.c"}, "ok")
	if r.Subject != "RE: budget" {
		t.Fatalf("subject = %q", r.Subject)
	}
}
