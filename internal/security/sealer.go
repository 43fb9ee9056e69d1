package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

var ErrSealedTokenCorrupt = errors.New("sealed token is corrupt")

const nonceSize = 24

// Sealer encrypts bearer tokens before they reach durable storage, so a
// database dump never exposes live upstream credentials. The key is
// derived from the configured session secret.
type Sealer struct {
	key [32]byte
}

// NewSealer derives a sealing key from the session secret.
func NewSealer(secret string) *Sealer {
	return &Sealer{key: sha256.Sum256([]byte(secret))}
}

// Seal encrypts a token for storage. Empty tokens stay empty.
func (s *Sealer) Seal(token string) (string, error) {
	if token == "" {
		return "", nil
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(token), &nonce, &s.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Unseal decrypts a stored token. Empty input yields an empty token.
func (s *Sealer) Unseal(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrSealedTokenCorrupt
	}
	if len(raw) < nonceSize {
		return "", ErrSealedTokenCorrupt
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	token, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrSealedTokenCorrupt
	}
	return string(token), nil
}
