package secret

import (
	"errors"
	"testing"

	"mailpilot/pkg/util"
)

func TestSealOpenRoundTrip(t *testing.T) {
	s, err := NewSealer("local-dev-key")
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	a, _ := s.Seal([]byte("refresh-token"))
	b, _ := s.Seal([]byte("refresh-token"))
	if a == b {
		t.Fatal("sealing must use a fresh nonce")
	}
	got, err := s.Open(a)
	if err != nil || string(got) != "refresh-token" {
		t.Fatalf("Open = %q, %v", got, err)
	}
}

func TestOpenWithWrongKeyIsPermanent(t *testing.T) {
	s1, _ := NewSealer("key-one")
	s2, _ := NewSealer("key-two")
	sealed, _ := s1.Seal([]byte("token"))

	_, err := s2.Open(sealed)
	if !errors.Is(err, ErrUndecryptable) {
		t.Fatalf("expected ErrUndecryptable, got %v", err)
	}
	if retry, _ := util.IsRetryableError(err); retry {
		t.Fatal("undecryptable credential must not be retried")
	}
	if _, err := s1.Open("not base64!"); !errors.Is(err, ErrUndecryptable) {
		t.Fatalf("garbage input: %v", err)
	}
}

func TestSealJSON(t *testing.T) {
	s, _ := NewSealer("k")
	type cred struct {
		RefreshToken string `json:"refresh_token"`
	}
	sealed, err := s.SealJSON(cred{RefreshToken: "r1"})
	if err != nil {
		t.Fatalf("SealJSON: %v", err)
	}
	var out cred
	if err := s.OpenJSON(sealed, &out); err != nil || out.RefreshToken != "r1" {
		t.Fatalf("OpenJSON = %+v, %v", out, err)
	}
}

func TestEmptyKey(t *testing.T) {
	if _, err := NewSealer(""); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
}
