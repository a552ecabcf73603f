// Package keyring stores vault passwords in the OS keyring, keyed by vault id.
package keyring

import (
	"errors"

	"github.com/zalando/go-keyring"
)

const serviceName = "zecret"

// ErrNotFound is returned when no password is stored for a vault.
var ErrNotFound = keyring.ErrNotFound

// SavePassword stores a password in the OS keyring
func SavePassword(vaultID string, password []byte) error {
	if vaultID == "" {
		return errors.New("vault id is empty")
	}
	return keyring.Set(serviceName, vaultID, string(password))
}

// GetPassword retrieves a password from the OS keyring
func GetPassword(vaultID string) ([]byte, error) {
	if vaultID == "" {
		return nil, ErrNotFound
	}
	pw, err := keyring.Get(serviceName, vaultID)
	if err != nil {
		return nil, err
	}
	return []byte(pw), nil
}

// DeletePassword removes a password from the OS keyring
func DeletePassword(vaultID string) error {
	return keyring.Delete(serviceName, vaultID)
}

// HasPassword checks if a password is stored in the keyring
func HasPassword(vaultID string) bool {
	_, err := GetPassword(vaultID)
	return err == nil
}
