package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/illarion/zecret/internal/crypto"
	"github.com/illarion/zecret/internal/storage"
)

const (
	ExportFormat  = "zecret-export"
	ExportVersion = 1
)

// Bundle is the export file. It carries encrypted records only: no salt, no
// KDF parameters, no key. The importing vault supplies its own key.
type Bundle struct {
	Format     string        `json:"format"`
	Version    int           `json:"version"`
	ExportedAt time.Time     `json:"exported_at"`
	VaultID    string        `json:"vault_id,omitempty"`
	Entries    []BundleEntry `json:"entries"`
}

// BundleEntry is one exported record. Algorithm and timestamps repeat the
// record header for readers; the record is authoritative.
type BundleEntry struct {
	ID        string    `json:"id"`
	Algorithm string    `json:"algorithm"`
	Created   time.Time `json:"created"`
	Modified  time.Time `json:"modified"`
	Record    []byte    `json:"record"`
}

// ImportOptions controls conflict handling and naming on import.
type ImportOptions struct {
	// Overwrite replaces existing entries instead of failing with ConflictError.
	Overwrite bool
	// ID names the entry when the input is a single raw record.
	ID string
	// RenameTo stores a single imported entry under a different id. The
	// record is decrypted and sealed again since the id is authenticated.
	RenameTo string
}

// ImportResult lists what an import stored.
type ImportResult struct {
	Imported []string
	Foreign  []string
}

type candidate struct {
	id     string
	record []byte
	entry  *crypto.Entry
}

// Export writes a bundle with the given entries, or all entries when ids is
// empty. Records are validated but never decrypted.
func (s *Session) Export(ctx context.Context, w io.Writer, ids ...string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	if len(ids) == 0 {
		var err error
		if ids, err = s.gen.Entries.IDs(); err != nil {
			return 0, err
		}
	}

	vaultID, err := s.gen.DB.GetVaultID()
	if err != nil {
		return 0, err
	}
	bundle := Bundle{
		Format:     ExportFormat,
		Version:    ExportVersion,
		ExportedAt: time.Now().UTC(),
		VaultID:    vaultID,
		Entries:    make([]BundleEntry, 0, len(ids)),
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := validateID(id); err != nil {
			return 0, err
		}
		record, err := s.gen.Entries.Get(id)
		if err != nil {
			return 0, err
		}
		e, err := crypto.ParseEntry(id, record)
		if err != nil {
			return 0, fmt.Errorf("entry %s: %w", id, err)
		}
		bundle.Entries = append(bundle.Entries, BundleEntry{
			ID:        id,
			Algorithm: e.Algorithm.String(),
			Created:   e.Created,
			Modified:  e.Modified,
			Record:    record,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(bundle); err != nil {
		return 0, fmt.Errorf("failed to write export: %w", err)
	}

	s.log.Info("entries exported", zap.Int("count", len(bundle.Entries)))
	return len(bundle.Entries), nil
}

// ExportRaw returns the stored record of one entry as-is.
func (s *Session) ExportRaw(ctx context.Context, id string) ([]byte, error) {
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
	record, err := s.gen.Entries.Get(id)
	if err != nil {
		return nil, err
	}
	if _, err := crypto.ParseEntry(id, record); err != nil {
		return nil, fmt.Errorf("entry %s: %w", id, err)
	}
	return record, nil
}

// Import reads a bundle or a single raw record from r and stores its entries.
// Input is size-limited and fully validated before anything is decrypted or
// written. Existing ids fail the whole import with *ConflictError unless
// opts.Overwrite is set.
//
// Records that do not decrypt under the vault key are quarantined unchanged
// and reported through a *ForeignKeyWarning returned alongside the result.
//
// Each record is written atomically. A write failure stops the import and
// keeps the records already stored; the returned result lists them.
func (s *Session) Import(ctx context.Context, r io.Reader, opts ImportOptions) (*ImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	limit := s.vault.opts.MaxImportSize
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImport, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: input exceeds %d bytes", ErrImport, limit)
	}

	candidates, err := parseImport(data, opts.ID)
	if err != nil {
		return nil, err
	}

	if opts.RenameTo != "" {
		if len(candidates) != 1 {
			return nil, fmt.Errorf("%w: rename needs exactly one entry, got %d", ErrImport, len(candidates))
		}
		if err := validateID(opts.RenameTo); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrImport, err)
		}
	}

	// Classify by trial decryption. Plaintext is only kept for a rename.
	var native, foreign []candidate
	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c := candidates[i]
		plaintext, err := crypto.Decrypt(s.key, c.entry)
		switch {
		case err == nil && opts.RenameTo != "":
			c, err = s.renamed(c, opts.RenameTo, plaintext)
			crypto.ClearBytes(plaintext)
			if err != nil {
				return nil, err
			}
			native = append(native, c)
		case err == nil:
			crypto.ClearBytes(plaintext)
			native = append(native, c)
		case errors.Is(err, crypto.ErrIntegrity):
			if opts.RenameTo != "" {
				return nil, fmt.Errorf("%w: entry %s is not encrypted under this vault's key and cannot be renamed", ErrImport, c.id)
			}
			foreign = append(foreign, c)
		default:
			return nil, err
		}
	}

	if !opts.Overwrite {
		if err := conflicts([]*storage.EntryStore{s.gen.Entries, s.gen.Foreign}, native, foreign); err != nil {
			return nil, err
		}
	}

	result := &ImportResult{}
	for _, c := range native {
		if err := s.gen.Entries.Put(c.id, c.record); err != nil {
			return result, err
		}
		result.Imported = append(result.Imported, c.id)
	}
	for _, c := range foreign {
		if err := s.gen.Foreign.Put(c.id, c.record); err != nil {
			return result, err
		}
		result.Foreign = append(result.Foreign, c.id)
	}
	if err := s.gen.DB.UpdateModified(); err != nil {
		s.log.Warn("failed to update modified time", zap.Error(err))
	}

	s.log.Info("entries imported", zap.Int("imported", len(result.Imported)), zap.Int("foreign", len(result.Foreign)))
	if len(result.Foreign) > 0 {
		s.log.Warn("quarantined records under a foreign key", zap.Strings("ids", result.Foreign))
		return result, &ForeignKeyWarning{IDs: result.Foreign}
	}
	return result, nil
}

func (s *Session) renamed(c candidate, id string, plaintext []byte) (candidate, error) {
	e, err := crypto.Encrypt(s.key, c.entry.Algorithm, id, c.entry.Created, c.entry.Modified, plaintext)
	if err != nil {
		return c, err
	}
	record, err := e.MarshalBinary()
	if err != nil {
		return c, err
	}
	return candidate{id: id, record: record, entry: e}, nil
}

// conflicts lists candidate ids already present in any of stores. An id is
// taken whether it names an entry or a quarantined record, so imports never
// shadow one with the other.
func conflicts(stores []*storage.EntryStore, sets ...[]candidate) error {
	var ids []string
	for _, cs := range sets {
		for _, c := range cs {
			for _, store := range stores {
				exists, err := store.Has(c.id)
				if err != nil {
					return err
				}
				if exists {
					ids = append(ids, c.id)
					break
				}
			}
		}
	}
	if len(ids) > 0 {
		return &ConflictError{IDs: ids}
	}
	return nil
}

// parseImport validates the input without touching any key.
func parseImport(data []byte, rawID string) ([]candidate, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrImport)
	}

	if crypto.IsRecord(data) {
		if rawID == "" {
			return nil, fmt.Errorf("%w: a raw entry record needs an id", ErrImport)
		}
		if err := validateID(rawID); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrImport, err)
		}
		e, err := crypto.ParseEntry(rawID, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrImport, err)
		}
		return []candidate{{id: rawID, record: data, entry: e}}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var bundle Bundle
	if err := dec.Decode(&bundle); err != nil {
		return nil, fmt.Errorf("%w: malformed export file: %w", ErrImport, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after export", ErrImport)
	}
	if bundle.Format != ExportFormat {
		return nil, fmt.Errorf("%w: unknown format %q", ErrImport, bundle.Format)
	}
	if bundle.Version != ExportVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrImport, bundle.Version)
	}
	if len(bundle.Entries) == 0 {
		return nil, fmt.Errorf("%w: no entries", ErrImport)
	}
	if len(bundle.Entries) > MaxImportEntries {
		return nil, fmt.Errorf("%w: %d entries exceed the limit of %d", ErrImport, len(bundle.Entries), MaxImportEntries)
	}

	seen := make(map[string]bool, len(bundle.Entries))
	candidates := make([]candidate, 0, len(bundle.Entries))
	for _, be := range bundle.Entries {
		if err := validateID(be.ID); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrImport, err)
		}
		if seen[be.ID] {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrImport, be.ID)
		}
		seen[be.ID] = true

		e, err := crypto.ParseEntry(be.ID, be.Record)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %s: %w", ErrImport, be.ID, err)
		}
		if be.Algorithm != "" && be.Algorithm != e.Algorithm.String() {
			return nil, fmt.Errorf("%w: entry %s: algorithm %q does not match record", ErrImport, be.ID, be.Algorithm)
		}
		candidates = append(candidates, candidate{id: be.ID, record: be.Record, entry: e})
	}
	return candidates, nil
}
