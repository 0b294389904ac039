package cryptox

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for passphrase key derivation. Paid once when a
// store is opened, not per operation, so the memory-hard settings are
// affordable.
const (
	kdfMemory      = 19 * 1024 // KiB (19 MiB)
	kdfIterations  = 2
	kdfParallelism = 1
	kdfSaltLength  = 16
)

// NewSalt returns a fresh random salt for DeriveKey. The salt is not
// secret; store it alongside the sealed data.
func NewSalt() ([]byte, error) {
	salt := make([]byte, kdfSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey stretches a passphrase into a 32-byte key for Seal/Open using
// Argon2id. The same passphrase and salt always produce the same key.
func DeriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey(
		[]byte(passphrase),
		salt,
		kdfIterations,
		kdfMemory,
		kdfParallelism,
		KeySize,
	)
}
