package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// KeySize is the AES-256 key length Seal and Open require.
const KeySize = 32

// ErrSealCorrupt is returned by Open when the sealed blob is truncated or
// fails authentication (wrong key, or the data was tampered with).
var ErrSealCorrupt = errors.New("cryptox: sealed data corrupt or wrong key")

// Seal encrypts plaintext with AES-256-GCM under the given 32-byte key.
// The output is [12-byte nonce][ciphertext][16-byte auth tag]; a fresh
// random nonce is used per call.
func Seal(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal appends ciphertext and auth tag to the nonce.
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts and authenticates data produced by Seal. Authentication
// failure (wrong key, truncation, tampering) yields ErrSealCorrupt.
func Open(key, sealed []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, ErrSealCorrupt
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealCorrupt, err)
	}

	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return gcm, nil
}
