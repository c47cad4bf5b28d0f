package tools

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// EncryptToken seals token at rest under key (must be
// chacha20poly1305.KeySize bytes) so a provider_connection row never
// stores a plaintext credential (§4.7).
func EncryptToken(key, token []byte) (ciphertext, nonce []byte, err error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, nil, fmt.Errorf("tools: build AEAD: %w", err)
	}
	nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("tools: generate nonce: %w", err)
	}
	ciphertext = aead.Seal(nil, nonce, token, nil)
	return ciphertext, nonce, nil
}

// DecryptToken recovers the plaintext credential for a single dispatch
// call; the plaintext is never retained beyond the Invoker call it feeds.
func DecryptToken(key []byte, ciphertext, nonce []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("tools: build AEAD: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("tools: decrypt connection token: %w", err)
	}
	return plaintext, nil
}
