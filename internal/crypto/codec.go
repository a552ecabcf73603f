package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

// Algorithm identifies the AEAD used for an entry record.
type Algorithm uint8

const (
	AlgXChaCha20Poly1305 Algorithm = 1
	AlgAES256GCM         Algorithm = 2
)

// NonceSize returns the nonce length for a, or 0 for unknown algorithms.
func (a Algorithm) NonceSize() int {
	switch a {
	case AlgXChaCha20Poly1305:
		return chacha20poly1305.NonceSizeX
	case AlgAES256GCM:
		return 12
	default:
		return 0
	}
}

func (a Algorithm) String() string {
	switch a {
	case AlgXChaCha20Poly1305:
		return "xchacha20poly1305"
	case AlgAES256GCM:
		return "aes-256-gcm"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// ParseAlgorithm maps a name as printed by String back to an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "xchacha20poly1305", "xchacha20-poly1305", "xchacha":
		return AlgXChaCha20Poly1305, nil
	case "aes-256-gcm", "aes256gcm", "aes-gcm":
		return AlgAES256GCM, nil
	default:
		return 0, fmt.Errorf("unknown cipher %q", name)
	}
}

func newAEAD(alg Algorithm, key []byte) (cipher.AEAD, error) {
	switch alg {
	case AlgXChaCha20Poly1305:
		return chacha20poly1305.NewX(key)
	case AlgAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create cipher: %w", err)
		}
		return cipher.NewGCM(block)
	default:
		return nil, fmt.Errorf("unknown algorithm %d", alg)
	}
}

// Encrypt seals plaintext for entry id under key with a fresh random nonce.
// Timestamps are stored at nanosecond precision in UTC.
func Encrypt(key *Key, alg Algorithm, id string, created, modified time.Time, plaintext []byte) (*Entry, error) {
	if id == "" || len(id) > MaxIDLength {
		return nil, fmt.Errorf("invalid entry id length %d", len(id))
	}
	k, err := key.bytes()
	if err != nil {
		return nil, err
	}
	aead, err := newAEAD(alg, k)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	e := &Entry{
		ID:        id,
		Algorithm: alg,
		Created:   time.Unix(0, created.UnixNano()).UTC(),
		Modified:  time.Unix(0, modified.UnixNano()).UTC(),
		Nonce:     nonce,
	}
	e.Ciphertext = aead.Seal(nil, nonce, plaintext, associatedData(e.Header(), id))
	return e, nil
}

// Decrypt opens e under key. Any mismatch of tag, nonce length, algorithm,
// header or entry id yields ErrIntegrity and no plaintext.
func Decrypt(key *Key, e *Entry) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: nil entry", ErrIntegrity)
	}
	k, err := key.bytes()
	if err != nil {
		return nil, err
	}
	if e.Algorithm.NonceSize() == 0 {
		return nil, fmt.Errorf("%w: unknown algorithm %d", ErrIntegrity, e.Algorithm)
	}
	if len(e.Nonce) != e.Algorithm.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce length %d", ErrIntegrity, len(e.Nonce))
	}
	if len(e.Ciphertext) < TagSize {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrIntegrity)
	}
	if e.ID == "" || len(e.ID) > MaxIDLength {
		return nil, fmt.Errorf("%w: bad entry id", ErrIntegrity)
	}

	aead, err := newAEAD(e.Algorithm, k)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, e.Nonce, e.Ciphertext, associatedData(e.Header(), e.ID))
	if err != nil {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}
