package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/chacha20poly1305"
)

// SecretBox seals small secrets (TOTP shared secrets) for storage at rest
// using ChaCha20-Poly1305. The output format is [24-byte nonce][ciphertext].
//
// The box holds its key as an explicit field so it can be constructed once in
// app wiring and passed to whatever needs it. There is deliberately no
// package-level key state.
type SecretBox struct {
	key []byte
}

// NewSecretBox derives a 32-byte key from the given key material via SHA-256.
func NewSecretBox(keyMaterial []byte) (SecretBox, error) {
	if len(keyMaterial) == 0 {
		return SecretBox{}, errors.New("cryptox: secret box key material is empty")
	}
	sum := sha256.Sum256(keyMaterial)
	return SecretBox{key: sum[:]}, nil
}

// LoadSecretBox builds a SecretBox from a key file, falling back to the
// given environment variable when the path is empty. An empty result from
// both sources is an error: a service holding user secrets must not start
// with an ephemeral key, or every stored secret becomes unreadable on
// restart.
func LoadSecretBox(path, envVar string) (SecretBox, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return SecretBox{}, fmt.Errorf("cryptox: failed to read master key file: %w", err)
		}
		return NewSecretBox(data)
	}
	if v := os.Getenv(envVar); v != "" {
		return NewSecretBox([]byte(v))
	}
	return SecretBox{}, fmt.Errorf("cryptox: no master key configured (set a key file or %s)", envVar)
}

// Seal encrypts plaintext with a random nonce.
func (b SecretBox) Seal(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("cryptox: failed to generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts data produced by Seal.
func (b SecretBox) Open(sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to create cipher: %w", err)
	}

	if len(sealed) < aead.NonceSize() {
		return nil, errors.New("cryptox: sealed data too short")
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.New("cryptox: failed to decrypt sealed data")
	}
	return plaintext, nil
}
