// Package config loads zecret CLI settings.
//
// Sources are layered, later ones win:
//  1. built-in defaults
//  2. a JSON file (-config flag or ZECRET_CONFIG)
//  3. environment variables (ZECRET_VAULT, ZECRET_LOG_LEVEL)
//  4. command-line flags, applied by the caller
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/illarion/zecret/internal/crypto"
)

const (
	EnvConfig   = "ZECRET_CONFIG"
	EnvVault    = "ZECRET_VAULT"
	EnvLogLevel = "ZECRET_LOG_LEVEL"

	DefaultVaultDir          = ".zecret"
	DefaultMinPasswordLength = 8
	DefaultMaxImportSize     = 16 << 20
	DefaultLockTimeout       = time.Second
	DefaultLogLevel          = "warn"
)

// Config holds runtime settings for the zecret CLI.
type Config struct {
	VaultDir          string
	KDF               crypto.KDFParams
	Cipher            string
	MinPasswordLength int
	MaxImportSize     int64
	LockTimeout       time.Duration
	LogLevel          string
	UseKeyring        bool
}

// jsonConfig is the file format. Absent fields keep their previous value.
type jsonConfig struct {
	VaultDir          *string           `json:"vault_dir"`
	KDF               *crypto.KDFParams `json:"kdf"`
	Cipher            *string           `json:"cipher"`
	MinPasswordLength *int              `json:"min_password_length"`
	MaxImportSize     *int64            `json:"max_import_size"`
	LockTimeout       *Duration         `json:"lock_timeout"`
	LogLevel          *string           `json:"log_level"`
	UseKeyring        *bool             `json:"use_keyring"`
}

// Duration accepts "1.5s" style strings or integer nanoseconds in JSON.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case float64:
		*d = Duration(time.Duration(val))
		return nil
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration %s", b)
	}
}

// LoadDefaults populates c with defaults.
func (c *Config) LoadDefaults() {
	c.VaultDir = DefaultVaultDir
	if home, err := os.UserHomeDir(); err == nil {
		c.VaultDir = filepath.Join(home, DefaultVaultDir)
	}
	c.KDF = crypto.DefaultKDFParams()
	c.Cipher = crypto.AlgXChaCha20Poly1305.String()
	c.MinPasswordLength = DefaultMinPasswordLength
	c.MaxImportSize = DefaultMaxImportSize
	c.LockTimeout = DefaultLockTimeout
	c.LogLevel = DefaultLogLevel
	c.UseKeyring = true
}

// LoadFile overlays c with the JSON file at path.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	var jc jsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if jc.VaultDir != nil {
		c.VaultDir = *jc.VaultDir
	}
	if jc.KDF != nil {
		c.KDF = *jc.KDF
	}
	if jc.Cipher != nil {
		c.Cipher = *jc.Cipher
	}
	if jc.MinPasswordLength != nil {
		c.MinPasswordLength = *jc.MinPasswordLength
	}
	if jc.MaxImportSize != nil {
		c.MaxImportSize = *jc.MaxImportSize
	}
	if jc.LockTimeout != nil {
		c.LockTimeout = time.Duration(*jc.LockTimeout)
	}
	if jc.LogLevel != nil {
		c.LogLevel = *jc.LogLevel
	}
	if jc.UseKeyring != nil {
		c.UseKeyring = *jc.UseKeyring
	}
	return nil
}

// LoadEnv overlays c with environment variables.
func (c *Config) LoadEnv() {
	if dir := os.Getenv(EnvVault); dir != "" {
		c.VaultDir = dir
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.LogLevel = level
	}
}

// Validate checks settings that cannot be fixed up silently.
func (c *Config) Validate() error {
	if c.VaultDir == "" {
		return errors.New("vault directory is empty")
	}
	if err := c.KDF.Validate(); err != nil {
		return fmt.Errorf("kdf: %w", err)
	}
	if _, err := crypto.ParseAlgorithm(c.Cipher); err != nil {
		return err
	}
	if c.MinPasswordLength < 1 {
		return fmt.Errorf("min_password_length must be at least 1, got %d", c.MinPasswordLength)
	}
	if c.MaxImportSize < 1 {
		return fmt.Errorf("max_import_size must be positive, got %d", c.MaxImportSize)
	}
	if c.LockTimeout < 0 {
		return fmt.Errorf("lock_timeout must not be negative, got %s", c.LockTimeout)
	}
	return nil
}

// Load builds a Config from defaults, the JSON file at path (or ZECRET_CONFIG
// when path is empty) and the environment. A missing file is only an error
// when it was named explicitly.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvConfig)
		explicit = path != ""
	}
	if !explicit {
		if dir, err := os.UserConfigDir(); err == nil {
			path = filepath.Join(dir, "zecret", "config.json")
		}
	}

	if path != "" {
		err := cfg.LoadFile(path)
		if err != nil && (explicit || !errors.Is(err, fs.ErrNotExist)) {
			return nil, err
		}
	}

	cfg.LoadEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
