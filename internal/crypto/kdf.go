package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

const (
	SaltSize = 32 // Salt size in bytes
	KeySize  = 32 // Derived entry key size
	HashSize = 32 // Verification hash size

	AlgArgon2id = "argon2id"
	AlgPBKDF2   = "pbkdf2-sha256"

	DefaultArgonTime    = 3
	DefaultArgonMemory  = 64 * 1024 // KiB
	DefaultArgonThreads = 4
	DefaultPBKDF2Iters  = 600000

	// Upper bounds keep a tampered credential from turning verification into a DoS.
	maxArgonTime    = 64
	maxArgonMemory  = 4 * 1024 * 1024
	maxArgonThreads = 64
	maxPBKDF2Iters  = 100000000

	verifyInfo = "zecret/verify/v1"
	keyInfo    = "zecret/entry-key/v1"
)

// KDFParams selects the password hashing function and its work factors.
// Memory is in KiB and only applies to argon2id; Iterations only to pbkdf2.
type KDFParams struct {
	Algorithm  string `json:"algorithm"`
	Time       uint32 `json:"time,omitempty"`
	Memory     uint32 `json:"memory,omitempty"`
	Threads    uint8  `json:"threads,omitempty"`
	Iterations uint32 `json:"iterations,omitempty"`
}

// DefaultKDFParams returns argon2id with interactive-use parameters.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Algorithm: AlgArgon2id,
		Time:      DefaultArgonTime,
		Memory:    DefaultArgonMemory,
		Threads:   DefaultArgonThreads,
	}
}

// Validate checks that the parameters name a known function with sane work factors.
func (p KDFParams) Validate() error {
	switch p.Algorithm {
	case AlgArgon2id:
		if p.Time < 1 || p.Time > maxArgonTime {
			return fmt.Errorf("argon2id time %d out of range", p.Time)
		}
		if p.Threads < 1 || p.Threads > maxArgonThreads {
			return fmt.Errorf("argon2id threads %d out of range", p.Threads)
		}
		if p.Memory < 8*uint32(p.Threads) || p.Memory > maxArgonMemory {
			return fmt.Errorf("argon2id memory %d KiB out of range", p.Memory)
		}
		return nil
	case AlgPBKDF2:
		if p.Iterations < 1 || p.Iterations > maxPBKDF2Iters {
			return fmt.Errorf("pbkdf2 iterations %d out of range", p.Iterations)
		}
		return nil
	default:
		return fmt.Errorf("unknown kdf algorithm %q", p.Algorithm)
	}
}

func (p KDFParams) String() string {
	switch p.Algorithm {
	case AlgArgon2id:
		return fmt.Sprintf("argon2id (t=%d, m=%d KiB, p=%d)", p.Time, p.Memory, p.Threads)
	case AlgPBKDF2:
		return fmt.Sprintf("pbkdf2-sha256 (%d iterations)", p.Iterations)
	default:
		return p.Algorithm
	}
}

// Credential is the persisted half of the master credential. The derived key
// is never part of it.
type Credential struct {
	Salt []byte
	Hash []byte
	KDF  KDFParams
}

// ValidatePassword rejects passwords shorter than minLength bytes. Empty
// passwords are always rejected.
func ValidatePassword(password []byte, minLength int) error {
	if minLength < 1 {
		minLength = 1
	}
	if len(password) < minLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrWeakInput, minLength)
	}
	return nil
}

// Initialize creates a new credential for password with a fresh random salt and
// returns it together with the derived entry key.
func Initialize(password []byte, params KDFParams) (*Credential, *Key, error) {
	if len(password) == 0 {
		return nil, nil, fmt.Errorf("%w: password is empty", ErrWeakInput)
	}
	if err := params.Validate(); err != nil {
		return nil, nil, err
	}

	salt, err := GenerateRandom(SaltSize)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	hash, key, err := derive(password, salt, params)
	if err != nil {
		return nil, nil, err
	}

	return &Credential{Salt: salt, Hash: hash, KDF: params}, newKey(key), nil
}

// Verify recomputes the verification hash for password and returns the entry
// key on an exact match. Every failure, including a malformed credential, is
// reported as ErrAuthentication.
func Verify(password []byte, cred *Credential) (*Key, error) {
	if cred == nil || len(cred.Salt) != SaltSize || len(cred.Hash) != HashSize {
		return nil, ErrAuthentication
	}
	if err := cred.KDF.Validate(); err != nil {
		return nil, ErrAuthentication
	}

	hash, key, err := derive(password, cred.Salt, cred.KDF)
	if err != nil {
		return nil, ErrAuthentication
	}
	defer ClearBytes(hash)

	if !ConstantTimeCompare(hash, cred.Hash) {
		ClearBytes(key)
		return nil, ErrAuthentication
	}

	return newKey(key), nil
}

// derive runs the slow password function once and splits its output into the
// verification hash and the entry key using HKDF with distinct labels.
func derive(password, salt []byte, p KDFParams) (hash, key []byte, err error) {
	var master []byte
	switch p.Algorithm {
	case AlgArgon2id:
		master = argon2.IDKey(password, salt, p.Time, p.Memory, p.Threads, KeySize)
	case AlgPBKDF2:
		master = pbkdf2.Key(password, salt, int(p.Iterations), KeySize, sha256.New)
	default:
		return nil, nil, fmt.Errorf("unknown kdf algorithm %q", p.Algorithm)
	}
	defer ClearBytes(master)

	hash, err = expand(master, salt, verifyInfo, HashSize)
	if err != nil {
		return nil, nil, err
	}
	key, err = expand(master, salt, keyInfo, KeySize)
	if err != nil {
		ClearBytes(hash)
		return nil, nil, err
	}
	return hash, key, nil
}

func expand(master, salt []byte, info string, n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, salt, []byte(info)), out); err != nil {
		return nil, fmt.Errorf("failed to expand key material: %w", err)
	}
	return out, nil
}
