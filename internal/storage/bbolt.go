package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/illarion/zecret/internal/crypto"
)

// Bucket names
var (
	ConfigBucket = []byte("config") // credential, cipher, vault id, timestamps - unencrypted
)

// Config keys
var (
	ConfigVersion  = []byte("version")
	ConfigCreated  = []byte("created")
	ConfigModified = []byte("modified")
	ConfigSalt     = []byte("salt")
	ConfigVerifier = []byte("verifier")
	ConfigKDF      = []byte("kdf")
	ConfigCipher   = []byte("cipher")
	ConfigVaultID  = []byte("vault_id")
)

const FormatVersion = "1"

var (
	ErrNotInitialized = errors.New("database not initialized")
	ErrNoCredential   = errors.New("credential not found")
)

// OpenOptions controls how the database file is opened.
type OpenOptions struct {
	// Timeout bounds the wait for the file lock held by another process.
	// Zero waits forever.
	Timeout  time.Duration
	ReadOnly bool
}

// Storage is the per-generation credential database.
type Storage struct {
	db *bolt.DB
}

// Meta is the public, password-free description of a vault generation.
type Meta struct {
	Version  string
	VaultID  string
	Created  time.Time
	Modified time.Time
	Cipher   crypto.Algorithm
	KDF      crypto.KDFParams
}

// Open opens or creates a database file
func Open(path string, opts OpenOptions) (*Storage, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout:  opts.Timeout,
		ReadOnly: opts.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}

// Initialize creates the config bucket for a new generation. vaultID and created
// carry over unchanged across password changes.
func (s *Storage) Initialize(vaultID string, created time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		config, err := tx.CreateBucketIfNotExists(ConfigBucket)
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", ConfigBucket, err)
		}

		if err := config.Put(ConfigVersion, []byte(FormatVersion)); err != nil {
			return err
		}
		if err := config.Put(ConfigVaultID, []byte(vaultID)); err != nil {
			return err
		}

		createdBytes, err := created.UTC().MarshalBinary()
		if err != nil {
			return err
		}
		if err := config.Put(ConfigCreated, createdBytes); err != nil {
			return err
		}

		modified, err := time.Now().UTC().MarshalBinary()
		if err != nil {
			return err
		}
		return config.Put(ConfigModified, modified)
	})
}

// IsInitialized checks if the database has been initialized
func (s *Storage) IsInitialized() (bool, error) {
	var initialized bool
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config != nil && config.Get(ConfigVersion) != nil {
			initialized = true
		}
		return nil
	})
	return initialized, err
}

// SetCredential stores salt, verification hash and KDF parameters in one
// transaction so they are never out of step.
func (s *Storage) SetCredential(cred *crypto.Credential) error {
	kdf, err := json.Marshal(cred.KDF)
	if err != nil {
		return fmt.Errorf("failed to encode kdf params: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil {
			return ErrNotInitialized
		}
		if err := config.Put(ConfigSalt, cred.Salt); err != nil {
			return err
		}
		if err := config.Put(ConfigVerifier, cred.Hash); err != nil {
			return err
		}
		return config.Put(ConfigKDF, kdf)
	})
}

// GetCredential retrieves the stored credential
func (s *Storage) GetCredential() (*crypto.Credential, error) {
	var cred crypto.Credential
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil {
			return ErrNotInitialized
		}
		salt := config.Get(ConfigSalt)
		hash := config.Get(ConfigVerifier)
		kdf := config.Get(ConfigKDF)
		if salt == nil || hash == nil || kdf == nil {
			return ErrNoCredential
		}
		if err := json.Unmarshal(kdf, &cred.KDF); err != nil {
			return fmt.Errorf("failed to decode kdf params: %w", err)
		}
		// Make a copy since the slice is only valid during the transaction
		cred.Salt = append([]byte(nil), salt...)
		cred.Hash = append([]byte(nil), hash...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// SetCipher stores the algorithm used for new entries
func (s *Storage) SetCipher(alg crypto.Algorithm) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil {
			return ErrNotInitialized
		}
		return config.Put(ConfigCipher, []byte(alg.String()))
	})
}

// GetCipher retrieves the algorithm used for new entries
func (s *Storage) GetCipher() (crypto.Algorithm, error) {
	var alg crypto.Algorithm
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil {
			return ErrNotInitialized
		}
		data := config.Get(ConfigCipher)
		if data == nil {
			alg = crypto.AlgXChaCha20Poly1305
			return nil
		}
		var err error
		alg, err = crypto.ParseAlgorithm(string(data))
		return err
	})
	return alg, err
}

// UpdateModified updates the last modified timestamp
func (s *Storage) UpdateModified() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil {
			return ErrNotInitialized
		}
		modified, err := time.Now().UTC().MarshalBinary()
		if err != nil {
			return err
		}
		return config.Put(ConfigModified, modified)
	})
}

// GetVaultID retrieves the vault ID from config bucket
func (s *Storage) GetVaultID() (string, error) {
	var vaultID string
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil {
			return ErrNotInitialized
		}
		data := config.Get(ConfigVaultID)
		if data == nil {
			return fmt.Errorf("vault_id not found")
		}
		vaultID = string(data)
		return nil
	})
	return vaultID, err
}

// GetMeta reads everything that can be shown without a password.
func (s *Storage) GetMeta() (*Meta, error) {
	var m Meta
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil || config.Get(ConfigVersion) == nil {
			return ErrNotInitialized
		}
		m.Version = string(config.Get(ConfigVersion))
		m.VaultID = string(config.Get(ConfigVaultID))

		if data := config.Get(ConfigCreated); data != nil {
			if err := m.Created.UnmarshalBinary(data); err != nil {
				return fmt.Errorf("failed to decode created time: %w", err)
			}
		}
		if data := config.Get(ConfigModified); data != nil {
			if err := m.Modified.UnmarshalBinary(data); err != nil {
				return fmt.Errorf("failed to decode modified time: %w", err)
			}
		}

		m.Cipher = crypto.AlgXChaCha20Poly1305
		if data := config.Get(ConfigCipher); data != nil {
			alg, err := crypto.ParseAlgorithm(string(data))
			if err != nil {
				return err
			}
			m.Cipher = alg
		}

		if data := config.Get(ConfigKDF); data != nil {
			if err := json.Unmarshal(data, &m.KDF); err != nil {
				return fmt.Errorf("failed to decode kdf params: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}
