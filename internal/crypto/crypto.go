package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
)

var (
	// ErrWeakInput is returned when a password is not acceptable for a new credential.
	ErrWeakInput = errors.New("password is too weak")
	// ErrAuthentication is returned for any password verification failure. It never says
	// whether the password was wrong or the stored credential was damaged.
	ErrAuthentication = errors.New("authentication failed")
	// ErrIntegrity is returned when an entry record fails authentication or cannot be parsed.
	ErrIntegrity = errors.New("integrity check failed")
	// ErrKeyDestroyed is returned when a key is used after Destroy.
	ErrKeyDestroyed = errors.New("key has been destroyed")
)

// ClearBytes securely clears a byte slice
func ClearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ConstantTimeCompare performs a constant-time comparison of two byte slices
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// GenerateRandom generates n random bytes
func GenerateRandom(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return b, nil
}
