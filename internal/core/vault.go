package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/illarion/zecret/internal/crypto"
	"github.com/illarion/zecret/internal/storage"
)

const (
	DefaultLockTimeout   = time.Second
	DefaultMaxImportSize = 16 << 20
	MaxImportEntries     = 10000
)

// Options tunes a Vault. The zero value is usable.
type Options struct {
	// KDF is used for new credentials: at creation and on password change.
	// Existing credentials always verify with their stored parameters.
	KDF crypto.KDFParams
	// Cipher is the entry algorithm for a new vault.
	Cipher crypto.Algorithm
	// MinPasswordLength applies to new passwords only.
	MinPasswordLength int
	// LockTimeout bounds the wait for another process holding the vault.
	LockTimeout   time.Duration
	MaxImportSize int64
	Logger        *zap.Logger
}

func (o *Options) setDefaults() {
	if o.KDF.Algorithm == "" {
		o.KDF = crypto.DefaultKDFParams()
	}
	if o.Cipher == 0 {
		o.Cipher = crypto.AlgXChaCha20Poly1305
	}
	if o.MinPasswordLength < 1 {
		o.MinPasswordLength = 1
	}
	if o.LockTimeout <= 0 {
		o.LockTimeout = DefaultLockTimeout
	}
	if o.MaxImportSize <= 0 {
		o.MaxImportSize = DefaultMaxImportSize
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Vault is a vault directory. It holds no secrets; Open returns a Session that does.
type Vault struct {
	dir  string
	opts Options
	log  *zap.Logger
}

// Status is what can be learned about a vault without its password.
type Status struct {
	Path       string
	VaultID    string
	Generation string
	Created    time.Time
	Modified   time.Time
	Cipher     crypto.Algorithm
	KDF        crypto.KDFParams
	Entries    int
	Foreign    int
	// Stale counts generations left behind by an interrupted password change.
	Stale int
}

// New creates a Vault for dir.
func New(dir string, opts Options) (*Vault, error) {
	opts.setDefaults()
	if err := opts.KDF.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kdf settings: %w", err)
	}
	if opts.Cipher.NonceSize() == 0 {
		return nil, fmt.Errorf("invalid cipher %v", opts.Cipher)
	}

	return &Vault{
		dir:  dir,
		opts: opts,
		log:  opts.Logger.With(zap.String("vault", dir)),
	}, nil
}

// Path returns the vault directory
func (v *Vault) Path() string {
	return v.dir
}

func (v *Vault) openLayout(create bool) (*storage.Layout, error) {
	layout, err := storage.OpenLayout(v.dir, create, storage.OpenOptions{Timeout: v.opts.LockTimeout})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotInitialized
	}
	return layout, err
}

// Exists reports whether dir holds a committed vault.
func (v *Vault) Exists() (bool, error) {
	layout, err := v.openLayout(false)
	if errors.Is(err, ErrNotInitialized) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer layout.Close()
	return layout.Exists()
}

// Create initializes a new vault protected by password.
func (v *Vault) Create(ctx context.Context, password []byte) (err error) {
	if err := crypto.ValidatePassword(password, v.opts.MinPasswordLength); err != nil {
		return err
	}

	layout, err := v.openLayout(true)
	if err != nil {
		return err
	}
	defer layout.Close()

	exists, err := layout.Exists()
	if err != nil {
		return err
	}
	if exists {
		return ErrAlreadyExists
	}

	// Leftovers of an earlier create that never committed.
	if removed, err := layout.Sweep(""); err != nil {
		return fmt.Errorf("failed to clean vault directory: %w", err)
	} else if len(removed) > 0 {
		v.log.Warn("removed uncommitted generations", zap.Strings("generations", removed))
	}

	cred, key, err := crypto.Initialize(password, v.opts.KDF)
	if err != nil {
		return err
	}
	key.Destroy()

	if err := ctx.Err(); err != nil {
		return err
	}

	name, err := layout.NextName()
	if err != nil {
		return err
	}
	g, err := layout.Create(name)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			err = multierr.Combine(err, g.Close(), layout.Remove(name))
		}
	}()

	vaultID := uuid.NewString()
	if err = g.DB.Initialize(vaultID, time.Now()); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if err = g.DB.SetCredential(cred); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	if err = g.DB.SetCipher(v.opts.Cipher); err != nil {
		return fmt.Errorf("failed to store cipher: %w", err)
	}
	if err = g.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	if err = layout.Promote(name); err != nil {
		return err
	}

	v.log.Info("vault created",
		zap.String("vault_id", vaultID),
		zap.Stringer("kdf", v.opts.KDF),
		zap.Stringer("cipher", v.opts.Cipher))
	return nil
}

// Open verifies password and returns a session holding the entry key.
// Generations left by an interrupted password change are discarded first.
func (v *Vault) Open(ctx context.Context, password []byte) (_ *Session, err error) {
	layout, err := v.openLayout(false)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			layout.Close()
		}
	}()

	current, err := layout.Current()
	if errors.Is(err, storage.ErrNoCurrent) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, err
	}

	g, err := layout.Open(current, storage.OpenOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			g.Close()
		}
	}()

	v.recover(layout, g)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cred, err := g.DB.GetCredential()
	if err != nil {
		// Indistinguishable from a wrong password on purpose.
		v.log.Debug("credential unreadable", zap.Error(err))
		return nil, ErrAuthentication
	}
	key, err := crypto.Verify(password, cred)
	if err != nil {
		return nil, err
	}

	cipher, err := g.DB.GetCipher()
	if err != nil {
		key.Destroy()
		return nil, err
	}

	v.log.Debug("vault opened", zap.String("generation", current))
	return &Session{
		vault:  v,
		layout: layout,
		gen:    g,
		key:    key,
		cipher: cipher,
		log:    v.log,
	}, nil
}

// recover discards uncommitted generations and temp files from interrupted
// writes. Failures are logged; the committed generation is never touched.
func (v *Vault) recover(layout *storage.Layout, g *storage.Generation) {
	removed, err := layout.Sweep(g.Name)
	if len(removed) > 0 {
		v.log.Warn("discarded incomplete password change",
			zap.Strings("generations", removed),
			zap.String("current", g.Name))
	}
	if err != nil {
		v.log.Warn("failed to sweep stale generations", zap.Error(err))
	}

	for _, s := range []*storage.EntryStore{g.Entries, g.Foreign} {
		n, err := s.RemoveTemp()
		if err != nil {
			v.log.Warn("failed to remove temp files", zap.Error(err))
		}
		if n > 0 {
			v.log.Warn("removed temp files from interrupted writes", zap.Int("count", n))
		}
	}
}

// Status describes the vault without a password.
func (v *Vault) Status() (*Status, error) {
	layout, err := v.openLayout(false)
	if err != nil {
		return nil, err
	}
	defer layout.Close()

	current, err := layout.Current()
	if errors.Is(err, storage.ErrNoCurrent) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, err
	}

	g, err := layout.Open(current, storage.OpenOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer g.Close()

	meta, err := g.DB.GetMeta()
	if err != nil {
		return nil, err
	}
	ids, err := g.Entries.IDs()
	if err != nil {
		return nil, err
	}
	foreign, err := g.Foreign.IDs()
	if err != nil {
		return nil, err
	}
	gens, err := layout.Generations()
	if err != nil {
		return nil, err
	}

	return &Status{
		Path:       layout.Path(),
		VaultID:    meta.VaultID,
		Generation: current,
		Created:    meta.Created,
		Modified:   meta.Modified,
		Cipher:     meta.Cipher,
		KDF:        meta.KDF,
		Entries:    len(ids),
		Foreign:    len(foreign),
		Stale:      len(gens) - 1,
	}, nil
}
