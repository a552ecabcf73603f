package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/illarion/zecret/internal/crypto"
)

// Foreign lists quarantined records: imports that did not decrypt under the
// vault key. They are kept byte for byte and never treated as entries.
func (s *Session) Foreign(ctx context.Context) ([]EntryInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.listStore(ctx, s.gen.Foreign)
}

// DeleteForeign removes a quarantined record.
func (s *Session) DeleteForeign(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := validateID(id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.gen.Foreign.Delete(id)
}

// AdoptForeign moves a quarantined record into the entry set. The record is
// decrypted with the key of from, a session on the vault that produced it,
// and sealed again under this vault's key. A nil from uses this session's
// own key. Decryption failure leaves the record in quarantine and returns
// ErrIntegrity. An existing entry id fails with *ConflictError unless
// overwrite is set.
func (s *Session) AdoptForeign(ctx context.Context, id string, from *Session, overwrite bool) (*EntryInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := validateID(id); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := s.key
	if from != nil && from != s {
		from.mu.RLock()
		defer from.mu.RUnlock()
		if err := from.checkOpen(); err != nil {
			return nil, err
		}
		key = from.key
	}

	if !overwrite {
		exists, err := s.gen.Entries.Has(id)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, &ConflictError{IDs: []string{id}}
		}
	}

	data, err := s.gen.Foreign.Get(id)
	if err != nil {
		return nil, err
	}
	record, err := reencrypt(id, data, key, s.key)
	if err != nil {
		return nil, fmt.Errorf("foreign record %s: %w", id, err)
	}
	e, err := crypto.ParseEntry(id, record)
	if err != nil {
		return nil, err
	}

	if err := s.gen.Entries.Put(id, record); err != nil {
		return nil, err
	}
	if err := s.gen.Foreign.Delete(id); err != nil {
		return nil, fmt.Errorf("entry %s adopted but still quarantined: %w", id, err)
	}
	if err := s.gen.DB.UpdateModified(); err != nil {
		s.log.Warn("failed to update modified time", zap.Error(err))
	}

	s.log.Info("foreign record adopted", zap.String("id", id))
	return &EntryInfo{
		ID:        id,
		Created:   e.Created,
		Modified:  e.Modified,
		Size:      int64(len(record)),
		Algorithm: e.Algorithm,
	}, nil
}
