package core

import (
	"context"
	"crypto/sha256"
	"fmt"
	"maps"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/illarion/zecret/internal/crypto"
	"github.com/illarion/zecret/internal/storage"
)

const foreignKeyPrefix = "foreign/"

// ChangePassword re-encrypts every entry under a key derived from
// newPassword. The work is staged in a new generation and committed by
// swapping the CURRENT pointer, so the vault is never observed half old and
// half new. Before the commit point any failure or cancellation discards the
// staged generation and returns a *TransactionError; the vault is untouched.
func (s *Session) ChangePassword(ctx context.Context, oldPassword, newPassword []byte) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	cred, err := s.gen.DB.GetCredential()
	if err != nil {
		return ErrAuthentication
	}
	oldKey, err := crypto.Verify(oldPassword, cred)
	if err != nil {
		return err
	}
	defer oldKey.Destroy()

	if err := crypto.ValidatePassword(newPassword, s.vault.opts.MinPasswordLength); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &TransactionError{Err: err}
	}

	meta, err := s.gen.DB.GetMeta()
	if err != nil {
		return &TransactionError{Err: err}
	}

	newCred, newKey, err := crypto.Initialize(newPassword, s.vault.opts.KDF)
	if err != nil {
		return &TransactionError{Err: err}
	}
	committed := false
	defer func() {
		if !committed {
			newKey.Destroy()
		}
	}()

	name, err := s.layout.NextName()
	if err != nil {
		return &TransactionError{Err: err}
	}
	shadow, err := s.layout.Create(name)
	if err != nil {
		return &TransactionError{Err: err}
	}
	defer func() {
		if committed {
			return
		}
		if cerr := multierr.Combine(shadow.Close(), s.layout.Remove(name)); cerr != nil {
			// Swept on the next Open.
			s.log.Warn("failed to discard staged generation", zap.String("generation", name), zap.Error(cerr))
		}
	}()

	if err := shadow.DB.Initialize(meta.VaultID, meta.Created); err != nil {
		return &TransactionError{Err: err}
	}
	if err := shadow.DB.SetCredential(newCred); err != nil {
		return &TransactionError{Err: err}
	}
	if err := shadow.DB.SetCipher(s.cipher); err != nil {
		return &TransactionError{Err: err}
	}

	staged, err := s.stage(ctx, shadow, oldKey, newKey)
	if err != nil {
		return err
	}

	if s.beforeCommit != nil {
		if err := s.beforeCommit(); err != nil {
			return &TransactionError{Err: err}
		}
	}
	if err := ctx.Err(); err != nil {
		return &TransactionError{Err: err}
	}

	current, err := s.fingerprint()
	if err != nil {
		return &TransactionError{Err: err}
	}
	if !maps.Equal(staged, current) {
		return &TransactionError{Err: ErrVaultChanged}
	}

	if err := shadow.Close(); err != nil {
		return &TransactionError{Err: err}
	}

	// Commit point.
	if err := s.layout.Promote(name); err != nil {
		if cur, cerr := s.layout.Current(); cerr != nil || cur != name {
			return &TransactionError{Err: err}
		}
		// CURRENT was replaced but not synced; the new generation is in effect.
		s.log.Warn("password change committed with unsynced pointer", zap.Error(err))
	}
	committed = true

	return s.switchGeneration(name, newKey, len(staged))
}

// stage copies every entry into shadow re-encrypted under newKey and every
// quarantined record byte for byte. It returns fingerprints of the source
// records it read.
func (s *Session) stage(ctx context.Context, shadow *storage.Generation, oldKey, newKey *crypto.Key) (map[string][sha256.Size]byte, error) {
	sums := make(map[string][sha256.Size]byte)

	ids, err := s.gen.Entries.IDs()
	if err != nil {
		return nil, &TransactionError{Err: err}
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, &TransactionError{EntryID: id, Err: err}
		}

		data, err := s.gen.Entries.Get(id)
		if err != nil {
			return nil, &TransactionError{EntryID: id, Err: err}
		}
		sums[id] = sha256.Sum256(data)

		record, err := reencrypt(id, data, oldKey, newKey)
		if err != nil {
			return nil, &TransactionError{EntryID: id, Err: err}
		}
		if err := shadow.Entries.Put(id, record); err != nil {
			return nil, &TransactionError{EntryID: id, Err: err}
		}
	}

	foreign, err := s.gen.Foreign.IDs()
	if err != nil {
		return nil, &TransactionError{Err: err}
	}
	for _, id := range foreign {
		if err := ctx.Err(); err != nil {
			return nil, &TransactionError{EntryID: id, Err: err}
		}
		data, err := s.gen.Foreign.Get(id)
		if err != nil {
			return nil, &TransactionError{EntryID: id, Err: err}
		}
		sums[foreignKeyPrefix+id] = sha256.Sum256(data)
		if err := shadow.Foreign.Put(id, data); err != nil {
			return nil, &TransactionError{EntryID: id, Err: err}
		}
	}

	return sums, nil
}

// reencrypt opens one record with oldKey and seals it again under newKey with
// the same id and timestamps and a new nonce.
func reencrypt(id string, data []byte, oldKey, newKey *crypto.Key) ([]byte, error) {
	e, err := crypto.ParseEntry(id, data)
	if err != nil {
		return nil, err
	}
	plaintext, err := crypto.Decrypt(oldKey, e)
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(plaintext)

	ne, err := crypto.Encrypt(newKey, e.Algorithm, id, e.Created, e.Modified, plaintext)
	if err != nil {
		return nil, err
	}
	return ne.MarshalBinary()
}

// fingerprint hashes every record of the current generation.
func (s *Session) fingerprint() (map[string][sha256.Size]byte, error) {
	sums := make(map[string][sha256.Size]byte)
	for prefix, store := range map[string]*storage.EntryStore{"": s.gen.Entries, foreignKeyPrefix: s.gen.Foreign} {
		ids, err := store.IDs()
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			data, err := store.Get(id)
			if err != nil {
				return nil, err
			}
			sums[prefix+id] = sha256.Sum256(data)
		}
	}
	return sums, nil
}

// switchGeneration moves the session onto the committed generation and
// removes the old one. The password change has already taken effect; errors
// here leave the session closed but the vault consistent.
func (s *Session) switchGeneration(name string, newKey *crypto.Key, count int) error {
	old := s.gen
	s.gen = nil
	if err := old.Close(); err != nil {
		s.log.Warn("failed to close previous generation", zap.Error(err))
	}

	g, err := s.layout.Open(name, storage.OpenOptions{})
	if err != nil {
		s.closed = true
		s.key.Destroy()
		newKey.Destroy()
		return fmt.Errorf("password changed, but reopening the vault failed: %w", err)
	}

	s.gen = g
	s.key.Destroy()
	s.key = newKey

	if err := s.layout.Remove(old.Name); err != nil {
		s.log.Warn("failed to remove previous generation", zap.String("generation", old.Name), zap.Error(err))
	}

	s.log.Info("password changed",
		zap.String("generation", name),
		zap.Int("records", count),
		zap.String("previous", old.Name))
	return nil
}
