// Package secret seals user provider credentials at rest.
//
// Sealed values are base64url(nonce || ciphertext) under XChaCha20-Poly1305
// with a key derived from the configured secret through HKDF-SHA256.
package secret

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"mailpilot/pkg/util"
)

const keyInfo = "mailpilot credential v1"

var (
	ErrEmptyKey = errors.New("secret: empty key")
	// ErrUndecryptable is wrapped as a permanent error; retrying cannot fix
	// a blob sealed under another key.
	ErrUndecryptable = errors.New("secret: credential cannot be decrypted")
)

type Sealer struct {
	aead cipher.AEAD
}

func NewSealer(key string) (*Sealer, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	derived := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(key), nil, []byte(keyInfo)), derived); err != nil {
		return nil, fmt.Errorf("secret: derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(derived)
	if err != nil {
		return nil, fmt.Errorf("secret: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

func (s *Sealer) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("secret: nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

func (s *Sealer) Open(sealed string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil || len(raw) < s.aead.NonceSize()+s.aead.Overhead() {
		return nil, util.Permanent(ErrUndecryptable)
	}
	ns := s.aead.NonceSize()
	plain, err := s.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return nil, util.Permanent(ErrUndecryptable)
	}
	return plain, nil
}

// SealJSON marshals v and seals it.
func (s *Sealer) SealJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("secret: marshal: %w", err)
	}
	return s.Seal(b)
}

// OpenJSON opens sealed and unmarshals it into v.
func (s *Sealer) OpenJSON(sealed string, v any) error {
	b, err := s.Open(sealed)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return util.Permanent(fmt.Errorf("secret: decode credential: %w", err))
	}
	return nil
}
