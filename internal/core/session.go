package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/illarion/zecret/internal/crypto"
	"github.com/illarion/zecret/internal/security"
	"github.com/illarion/zecret/internal/storage"
)

const idTimeFormat = "20060102_150405"

// EntryInfo is entry metadata taken from the record header. Nothing here
// requires decryption.
type EntryInfo struct {
	ID        string
	Created   time.Time
	Modified  time.Time
	Size      int64
	Algorithm crypto.Algorithm
	// Err is set when the record header could not be read.
	Err error
}

// Session is an unlocked vault. It owns the entry key until Close.
//
// Reads share the session; writes, deletes, imports and password changes
// take it exclusively.
type Session struct {
	mu     sync.RWMutex
	vault  *Vault
	layout *storage.Layout
	gen    *storage.Generation
	key    *crypto.Key
	cipher crypto.Algorithm
	log    *zap.Logger
	closed bool

	// beforeCommit runs after a password change has staged every entry and
	// before it commits. Tests use it to inject failures.
	beforeCommit func() error
}

func (s *Session) checkOpen() error {
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

func validateID(id string) error {
	if err := security.ValidateID(id); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidID, err)
	}
	return nil
}

// VaultID returns the stable vault identifier.
func (s *Session) VaultID() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	return s.gen.DB.GetVaultID()
}

// List returns metadata of all entries, newest first.
func (s *Session) List(ctx context.Context) ([]EntryInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.listStore(ctx, s.gen.Entries)
}

func (s *Session) listStore(ctx context.Context, store *storage.EntryStore) ([]EntryInfo, error) {
	ids, err := store.IDs()
	if err != nil {
		return nil, err
	}

	infos := make([]EntryInfo, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info := EntryInfo{ID: id}
		head, size, err := store.Head(id)
		if err == nil {
			var h crypto.Header
			h, err = crypto.ParseHeader(head)
			info.Created, info.Modified, info.Algorithm = h.Created, h.Modified, h.Algorithm
		}
		info.Size = size
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			info.Err = err
			s.log.Warn("unreadable entry header", zap.String("id", id), zap.Error(err))
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].Created.Equal(infos[j].Created) {
			return infos[i].Created.After(infos[j].Created)
		}
		return infos[i].ID > infos[j].ID
	})
	return infos, nil
}

// Read decrypts entry id.
func (s *Session) Read(ctx context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := validateID(id); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.readEntry(s.gen.Entries, id, s.key)
}

func (s *Session) readEntry(store *storage.EntryStore, id string, key *crypto.Key) ([]byte, error) {
	data, err := store.Get(id)
	if err != nil {
		return nil, err
	}
	e, err := crypto.ParseEntry(id, data)
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", id, err)
	}
	plaintext, err := crypto.Decrypt(key, e)
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", id, err)
	}
	return plaintext, nil
}

// Write encrypts plaintext under id with a fresh nonce. An empty id allocates
// a new timestamped one. Overwriting keeps the original creation time.
func (s *Session) Write(ctx context.Context, id string, plaintext []byte) (*EntryInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now()
	created := now
	if id == "" {
		var err error
		if id, err = s.newID(now); err != nil {
			return nil, err
		}
	} else {
		if err := validateID(id); err != nil {
			return nil, err
		}
		head, _, err := s.gen.Entries.Head(id)
		switch {
		case err == nil:
			if h, herr := crypto.ParseHeader(head); herr == nil {
				created = h.Created
			} else {
				s.log.Warn("overwriting entry with unreadable header", zap.String("id", id), zap.Error(herr))
			}
		case !errors.Is(err, storage.ErrNotFound):
			return nil, err
		}
	}

	e, err := crypto.Encrypt(s.key, s.cipher, id, created, now, plaintext)
	if err != nil {
		return nil, err
	}
	record, err := e.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if err := s.gen.Entries.Put(id, record); err != nil {
		return nil, err
	}
	if err := s.gen.DB.UpdateModified(); err != nil {
		s.log.Warn("failed to update modified time", zap.Error(err))
	}

	s.log.Debug("entry written", zap.String("id", id))
	return &EntryInfo{
		ID:        id,
		Created:   e.Created,
		Modified:  e.Modified,
		Size:      int64(len(record)),
		Algorithm: e.Algorithm,
	}, nil
}

func (s *Session) newID(now time.Time) (string, error) {
	for range 8 {
		id := now.Format(idTimeFormat) + "_" + uuid.NewString()[:8]
		exists, err := s.gen.Entries.Has(id)
		if err != nil {
			return "", fmt.Errorf("failed to check entry id: %w", err)
		}
		if !exists {
			return id, nil
		}
	}
	return "", fmt.Errorf("failed to allocate entry id")
}

// Delete removes entry id.
func (s *Session) Delete(ctx context.Context, id string) error {
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

	if err := s.gen.Entries.Delete(id); err != nil {
		return err
	}
	if err := s.gen.DB.UpdateModified(); err != nil {
		s.log.Warn("failed to update modified time", zap.Error(err))
	}
	s.log.Debug("entry deleted", zap.String("id", id))
	return nil
}

// Close destroys the entry key and releases the vault. Later calls on the
// session return ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	s.key.Destroy()
	var err error
	if s.gen != nil {
		err = multierr.Append(err, s.gen.Close())
	}
	return multierr.Append(err, s.layout.Close())
}
