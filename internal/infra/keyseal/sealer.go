// Package keyseal encrypts raw asset keys per player before they are handed
// to game clients.
package keyseal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Sealer seals asset keys with a per-player key derived from the app secret.
type Sealer struct {
	secret []byte
}

// New creates a new sealer from the application secret.
func New(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, errors.New("app secret is required")
	}
	return &Sealer{secret: []byte(secret)}, nil
}

// playerKey derives the per-player sealing key.
func (s *Sealer) playerKey(playerID string) ([]byte, error) {
	kdf := hkdf.New(sha256.New, s.secret, nil, []byte("asset-key:"+playerID))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, errors.Wrap(err, "failed to derive player key")
	}
	return key, nil
}

// SealFor encrypts a raw asset key for the given player. The wire form is
// base64(nonce || ciphertext).
func (s *Sealer) SealFor(playerID, rawKey string) (string, error) {
	if rawKey == "" {
		return "", errors.New("raw key is empty")
	}

	key, err := s.playerKey(playerID)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", errors.Wrap(err, "failed to create cipher")
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.Wrap(err, "failed to generate nonce")
	}

	sealed := aead.Seal(nonce, nonce, []byte(rawKey), nil)
	return base64.RawStdEncoding.EncodeToString(sealed), nil
}

// OpenFor decrypts a sealed asset key for the given player.
func (s *Sealer) OpenFor(playerID, sealedKey string) (string, error) {
	data, err := base64.RawStdEncoding.DecodeString(sealedKey)
	if err != nil {
		return "", errors.Wrap(err, "failed to decode sealed key")
	}

	key, err := s.playerKey(playerID)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", errors.Wrap(err, "failed to create cipher")
	}

	if len(data) < aead.NonceSize() {
		return "", errors.New("sealed key too short")
	}
	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
	raw, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to open sealed key")
	}
	return string(raw), nil
}
