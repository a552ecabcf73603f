package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/illarion/zecret/internal/crypto"
	"github.com/illarion/zecret/internal/storage"
)

var (
	ErrWeakInput      = crypto.ErrWeakInput
	ErrAuthentication = crypto.ErrAuthentication
	ErrIntegrity      = crypto.ErrIntegrity
	ErrNotFound       = storage.ErrNotFound

	ErrNotInitialized = errors.New("vault not initialized")
	ErrAlreadyExists  = errors.New("vault already exists")
	ErrSessionClosed  = errors.New("session is closed")
	ErrInvalidID      = errors.New("invalid entry id")
	ErrTransaction    = errors.New("password change failed")
	ErrVaultChanged   = errors.New("vault changed during password change")
	ErrConflict       = errors.New("entry already exists")
	ErrImport         = errors.New("import rejected")
)

// TransactionError reports a password change that did not commit. The vault
// is unchanged. EntryID names the entry that blocked progress, if any.
type TransactionError struct {
	EntryID string
	Err     error
}

func (e *TransactionError) Error() string {
	if e.EntryID != "" {
		return fmt.Sprintf("%v: entry %s: %v", ErrTransaction, e.EntryID, e.Err)
	}
	return fmt.Sprintf("%v: %v", ErrTransaction, e.Err)
}

// Unwrap matches both ErrTransaction and the underlying cause.
func (e *TransactionError) Unwrap() []error {
	return []error{ErrTransaction, e.Err}
}

// ConflictError lists ids that already exist in the vault.
type ConflictError struct {
	IDs []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v: %s", ErrConflict, strings.Join(e.IDs, ", "))
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// ForeignKeyWarning accompanies a successful import when some records could
// not be decrypted with the vault key. Those records were quarantined as-is.
type ForeignKeyWarning struct {
	IDs []string
}

func (w *ForeignKeyWarning) Error() string {
	return fmt.Sprintf("%d record(s) encrypted under a foreign key were quarantined: %s",
		len(w.IDs), strings.Join(w.IDs, ", "))
}
