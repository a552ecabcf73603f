package storage

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/illarion/zecret/internal/crypto"
	"github.com/illarion/zecret/internal/security"
)

// EntryExt is the file extension of entry records.
const EntryExt = ".zent"

// MaxRecordSize caps the size of a single entry record read from disk.
const MaxRecordSize = 64 << 20

var ErrNotFound = errors.New("entry not found")

// EntryStore keeps one record file per entry id inside a confined directory.
// It stores opaque bytes; encryption happens above it.
type EntryStore struct {
	root *security.Root
}

// NewEntryStore wraps root as an entry store.
func NewEntryStore(root *security.Root) *EntryStore {
	return &EntryStore{root: root}
}

func fileName(id string) (string, error) {
	if err := security.ValidateID(id); err != nil {
		return "", err
	}
	return id + EntryExt, nil
}

// IDs returns all stored entry ids in lexical order.
func (s *EntryStore) IDs() ([]string, error) {
	names, err := s.root.Names(EntryExt)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	// Names validates the full file name, the id itself must validate too.
	ids := names[:0]
	for _, n := range names {
		if security.ValidateID(n) == nil {
			ids = append(ids, n)
		}
	}
	return ids, nil
}

// Has reports whether id exists.
func (s *EntryStore) Has(id string) (bool, error) {
	name, err := fileName(id)
	if err != nil {
		return false, err
	}
	_, err = s.root.Stat(name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Get returns the raw record of id.
func (s *EntryStore) Get(id string) ([]byte, error) {
	name, err := fileName(id)
	if err != nil {
		return nil, err
	}
	data, err := s.root.ReadFile(name, MaxRecordSize)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read entry %s: %w", id, err)
	}
	return data, nil
}

// Head returns the record header of id and the size of the whole record.
func (s *EntryStore) Head(id string) ([]byte, int64, error) {
	name, err := fileName(id)
	if err != nil {
		return nil, 0, err
	}
	head, info, err := s.root.ReadHead(name, crypto.HeaderSize)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read entry %s: %w", id, err)
	}
	return head, info.Size(), nil
}

// Put atomically stores record under id, replacing any previous record.
func (s *EntryStore) Put(id string, record []byte) error {
	name, err := fileName(id)
	if err != nil {
		return err
	}
	if err := s.root.WriteFileAtomic(name, record, 0600); err != nil {
		return fmt.Errorf("failed to write entry %s: %w", id, err)
	}
	return nil
}

// Delete removes id.
func (s *EntryStore) Delete(id string) error {
	name, err := fileName(id)
	if err != nil {
		return err
	}
	err = s.root.Remove(name)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete entry %s: %w", id, err)
	}
	return s.root.SyncDir()
}

// RemoveTemp clears temp files left by interrupted writes.
func (s *EntryStore) RemoveTemp() (int, error) {
	return s.root.RemoveTemp()
}

// Close releases the directory handle.
func (s *EntryStore) Close() error {
	return s.root.Close()
}
