// Package secret decrypts credential blobs on demand. Keys come from the
// environment; plaintext is scoped to the calling operation and never stored
// or logged.
package secret

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

// Keeper wraps a symmetric key for sealing and opening credential blobs.
type Keeper struct {
	key [keySize]byte
}

// NewKeeper builds a keeper from a base64-encoded 32-byte key.
func NewKeeper(encodedKey string) (*Keeper, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode secret key: %w", err)
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("secret key must be %d bytes, got %d", keySize, len(raw))
	}

	k := &Keeper{}
	copy(k.key[:], raw)
	return k, nil
}

// Decrypt opens a base64-encoded, nonce-prefixed secretbox blob.
func (k *Keeper) Decrypt(blob string) (string, error) {
	if blob == "" {
		return "", fmt.Errorf("empty credential blob")
	}

	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("failed to decode credential blob: %w", err)
	}
	if len(raw) < nonceSize {
		return "", fmt.Errorf("credential blob too short")
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &k.key)
	if !ok {
		return "", fmt.Errorf("failed to open credential blob")
	}
	return string(plain), nil
}

// Encrypt seals a plaintext credential into a base64 blob. Used by seeding
// tooling and tests; the engine itself only decrypts.
func (k *Keeper) Encrypt(plain string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plain), &nonce, &k.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}
