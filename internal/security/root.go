package security

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/google/uuid"
)

const (
	MaxNameLength = 255
	MaxIDLength   = 128
	tempPrefix    = ".tmp-"
)

var (
	ErrEmptyName    = errors.New("empty name not allowed")
	ErrInvalidName  = errors.New("invalid name")
	ErrNameTooLong  = errors.New("name too long")
	ErrFileTooLarge = errors.New("file too large")
)

// ValidateName checks that name is a single local path component made of
// letters, digits, '.', '_' and '-', not starting with a dot.
func ValidateName(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: %d > %d", ErrNameTooLong, len(name), MaxNameLength)
	}
	if name[0] == '.' {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '_', c == '-':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	// Rejects reserved device names on Windows.
	if !filepath.IsLocal(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// ValidateID checks an entry id: a valid name of at most MaxIDLength bytes, so
// the id plus its file extension still fits in a file name.
func ValidateID(id string) error {
	if len(id) > MaxIDLength {
		return fmt.Errorf("%w: %d > %d", ErrNameTooLong, len(id), MaxIDLength)
	}
	return ValidateName(id)
}

// Root confines file operations to one directory using os.Root, so a crafted
// name can never reach outside it.
type Root struct {
	root *os.Root
	path string
}

// OpenRoot opens an existing directory as a Root.
func OpenRoot(dir string) (*Root, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	root, err := os.OpenRoot(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open root %s: %w", absPath, err)
	}

	return &Root{root: root, path: absPath}, nil
}

// Path returns the absolute path of the root directory.
func (r *Root) Path() string {
	return r.path
}

// Close releases the directory handle.
func (r *Root) Close() error {
	if r.root != nil {
		return r.root.Close()
	}
	return nil
}

// OpenRoot opens the subdirectory name as a nested Root.
func (r *Root) OpenRoot(name string) (*Root, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	sub, err := r.root.OpenRoot(name)
	if err != nil {
		return nil, err
	}
	return &Root{root: sub, path: filepath.Join(r.path, name)}, nil
}

// Mkdir creates the subdirectory name.
func (r *Root) Mkdir(name string, perm os.FileMode) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	return r.root.Mkdir(name, perm)
}

// RemoveAll removes name and everything below it.
func (r *Root) RemoveAll(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	return r.root.RemoveAll(name)
}

// Remove removes the file name.
func (r *Root) Remove(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	return r.root.Remove(name)
}

// Stat returns file info for name.
func (r *Root) Stat(name string) (os.FileInfo, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return r.root.Stat(name)
}

// ReadFile reads name, refusing files larger than limit bytes.
func (r *Root) ReadFile(name string, limit int64) ([]byte, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	f, err := r.root.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrFileTooLarge, name, limit)
	}
	return data, nil
}

// ReadHead reads at most n bytes from the start of name and returns them with
// the file info.
func (r *Root) ReadHead(name string, n int) ([]byte, os.FileInfo, error) {
	if err := ValidateName(name); err != nil {
		return nil, nil, err
	}

	f, err := r.root.Open(name)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, nil, err
	}
	return buf[:read], info, nil
}

// WriteFileAtomic writes data to a temporary file, syncs it and renames it over
// name. Readers see either the old file or the complete new one.
func (r *Root) WriteFileAtomic(name string, data []byte, perm os.FileMode) (err error) {
	if err := ValidateName(name); err != nil {
		return err
	}

	tmp := tempPrefix + uuid.NewString()
	f, err := r.root.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			r.root.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err = f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync %s: %w", name, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err = r.root.Rename(tmp, name); err != nil {
		return fmt.Errorf("failed to rename %s: %w", name, err)
	}

	return r.SyncDir()
}

// SyncDir flushes directory metadata (renames, removals) to disk.
func (r *Root) SyncDir() error {
	// Directories cannot be fsynced on Windows.
	if runtime.GOOS == "windows" {
		return nil
	}
	d, err := r.root.Open(".")
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("failed to sync directory %s: %w", r.path, err)
	}
	return nil
}

// Names lists regular files ending in suffix, with the suffix removed, sorted.
// Files whose names do not validate are skipped.
func (r *Root) Names(suffix string) ([]string, error) {
	entries, err := fs.ReadDir(r.root.FS(), ".")
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		if ValidateName(e.Name()) != nil {
			continue
		}
		name := strings.TrimSuffix(e.Name(), suffix)
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Dirs lists subdirectories whose names start with prefix, sorted.
func (r *Root) Dirs(prefix string) ([]string, error) {
	entries, err := fs.ReadDir(r.root.FS(), ".")
	if err != nil {
		return nil, err
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), prefix) && ValidateName(e.Name()) == nil {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// RemoveTemp deletes temporary files left behind by interrupted writes and
// returns how many were removed.
func (r *Root) RemoveTemp() (int, error) {
	entries, err := fs.ReadDir(r.root.FS(), ".")
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		if err := r.root.Remove(e.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
