package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"github.com/illarion/zecret/internal/security"
)

// Vault directory layout:
//
//	CURRENT                       name of the committed generation
//	gen-000001/vault.db           credential database
//	gen-000001/entries/<id>.zent  entry records
//	gen-000001/foreign/<id>.zent  quarantined records under a foreign key
//
// A generation directory not named by CURRENT is either staging for a
// password change or left over from one that never committed.
const (
	CurrentFile = "CURRENT"
	DBFile      = "vault.db"
	EntriesDir  = "entries"
	ForeignDir  = "foreign"

	genPrefix = "gen-"
	genFormat = "gen-%06d"
)

var (
	ErrNoCurrent     = errors.New("no committed generation")
	ErrBadGeneration = errors.New("invalid generation name")
)

// Layout is an open vault directory.
type Layout struct {
	root *security.Root
	opts OpenOptions
}

// OpenLayout opens the vault directory dir. With create set the directory is
// made when missing.
func OpenLayout(dir string, create bool, opts OpenOptions) (*Layout, error) {
	if create {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create vault directory: %w", err)
		}
	}
	root, err := security.OpenRoot(dir)
	if err != nil {
		return nil, err
	}
	return &Layout{root: root, opts: opts}, nil
}

// Path returns the absolute vault directory.
func (l *Layout) Path() string {
	return l.root.Path()
}

// Close releases the directory handle.
func (l *Layout) Close() error {
	return l.root.Close()
}

func generationNumber(name string) (int, error) {
	if !strings.HasPrefix(name, genPrefix) {
		return 0, fmt.Errorf("%w: %q", ErrBadGeneration, name)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(name, genPrefix))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %q", ErrBadGeneration, name)
	}
	return n, nil
}

// Current returns the committed generation name.
func (l *Layout) Current() (string, error) {
	data, err := l.root.ReadFile(CurrentFile, 64)
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNoCurrent
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", CurrentFile, err)
	}
	name := strings.TrimSpace(string(data))
	if _, err := generationNumber(name); err != nil {
		return "", err
	}
	return name, nil
}

// Exists reports whether the directory already holds a committed vault.
func (l *Layout) Exists() (bool, error) {
	_, err := l.root.Stat(CurrentFile)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Generations lists generation directories, oldest first.
func (l *Layout) Generations() ([]string, error) {
	dirs, err := l.root.Dirs(genPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list generations: %w", err)
	}
	gens := dirs[:0]
	for _, d := range dirs {
		if _, err := generationNumber(d); err == nil {
			gens = append(gens, d)
		}
	}
	return gens, nil
}

// NextName returns a generation name higher than every existing one.
func (l *Layout) NextName() (string, error) {
	gens, err := l.Generations()
	if err != nil {
		return "", err
	}
	highest := 0
	for _, g := range gens {
		if n, _ := generationNumber(g); n > highest {
			highest = n
		}
	}
	return fmt.Sprintf(genFormat, highest+1), nil
}

// Create makes a new empty generation directory and opens it. On failure
// nothing is left behind.
func (l *Layout) Create(name string) (g *Generation, err error) {
	if _, err := generationNumber(name); err != nil {
		return nil, err
	}
	if err := l.root.Mkdir(name, 0700); err != nil {
		return nil, fmt.Errorf("failed to create generation %s: %w", name, err)
	}
	defer func() {
		if err != nil {
			l.root.RemoveAll(name)
		}
	}()

	dir, err := l.root.OpenRoot(name)
	if err != nil {
		return nil, err
	}
	for _, sub := range []string{EntriesDir, ForeignDir} {
		if err := dir.Mkdir(sub, 0700); err != nil {
			dir.Close()
			return nil, fmt.Errorf("failed to create %s: %w", sub, err)
		}
	}
	if err := dir.Close(); err != nil {
		return nil, err
	}

	return l.Open(name, OpenOptions{Timeout: l.opts.Timeout})
}

// Open opens an existing generation. opts.Timeout falls back to the layout's.
func (l *Layout) Open(name string, opts OpenOptions) (*Generation, error) {
	if _, err := generationNumber(name); err != nil {
		return nil, err
	}
	if opts.Timeout == 0 {
		opts.Timeout = l.opts.Timeout
	}

	dir, err := l.root.OpenRoot(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open generation %s: %w", name, err)
	}
	g := &Generation{Name: name, dir: dir}

	entries, err := dir.OpenRoot(EntriesDir)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to open entries: %w", err), g.Close())
	}
	g.Entries = NewEntryStore(entries)

	foreign, err := dir.OpenRoot(ForeignDir)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to open foreign: %w", err), g.Close())
	}
	g.Foreign = NewEntryStore(foreign)

	db, err := Open(filepath.Join(dir.Path(), DBFile), opts)
	if err != nil {
		return nil, multierr.Append(err, g.Close())
	}
	g.DB = db

	return g, nil
}

// Promote makes name the committed generation by atomically replacing CURRENT.
func (l *Layout) Promote(name string) error {
	if _, err := generationNumber(name); err != nil {
		return err
	}
	if err := l.root.WriteFileAtomic(CurrentFile, []byte(name+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to promote %s: %w", name, err)
	}
	return nil
}

// Remove deletes a generation directory with everything in it.
func (l *Layout) Remove(name string) error {
	if _, err := generationNumber(name); err != nil {
		return err
	}
	if err := l.root.RemoveAll(name); err != nil {
		return fmt.Errorf("failed to remove generation %s: %w", name, err)
	}
	return nil
}

// Sweep removes every generation except keep, plus stray temp files in the
// vault directory, and returns the names of removed generations.
func (l *Layout) Sweep(keep string) ([]string, error) {
	gens, err := l.Generations()
	if err != nil {
		return nil, err
	}
	var removed []string
	var errs error
	for _, g := range gens {
		if g == keep {
			continue
		}
		if err := l.Remove(g); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		removed = append(removed, g)
	}
	if _, err := l.root.RemoveTemp(); err != nil {
		errs = multierr.Append(errs, err)
	}
	return removed, errs
}

// Generation is one open generation: its credential database and its entry
// and quarantine stores.
type Generation struct {
	Name    string
	DB      *Storage
	Entries *EntryStore
	Foreign *EntryStore

	dir *security.Root
}

// Close closes the database and directory handles.
func (g *Generation) Close() error {
	var err error
	if g.DB != nil {
		err = multierr.Append(err, g.DB.Close())
		g.DB = nil
	}
	if g.Entries != nil {
		err = multierr.Append(err, g.Entries.Close())
		g.Entries = nil
	}
	if g.Foreign != nil {
		err = multierr.Append(err, g.Foreign.Close())
		g.Foreign = nil
	}
	if g.dir != nil {
		err = multierr.Append(err, g.dir.Close())
		g.dir = nil
	}
	return err
}
