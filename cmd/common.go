package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/illarion/zecret/internal/config"
	"github.com/illarion/zecret/internal/core"
	"github.com/illarion/zecret/internal/crypto"
	"github.com/illarion/zecret/internal/keyring"
)

// PasswordSource tells where a password came from.
type PasswordSource int

const (
	SourcePrompt PasswordSource = iota
	SourceEnv
	SourceKeyring
)

// App carries what every command needs. Commands return errors; main reports
// them with HandleError.
type App struct {
	Config *config.Config
	Log    *zap.Logger
	In     io.Reader
	Out    io.Writer
	Err    io.Writer

	// prompt reads a password interactively. Tests replace it.
	prompt func(prompt string) ([]byte, error)
	// promptNew reads a new password with confirmation.
	promptNew func(prompt string) ([]byte, error)
}

// NewApp wires an App to the process's standard streams and terminal.
func NewApp(cfg *config.Config, log *zap.Logger) *App {
	return &App{
		Config:    cfg,
		Log:       log,
		In:        os.Stdin,
		Out:       os.Stdout,
		Err:       os.Stderr,
		prompt:    core.ReadPassword,
		promptNew: core.ReadPasswordConfirm,
	}
}

// Options converts the configuration into engine options.
func (a *App) Options() (core.Options, error) {
	alg, err := crypto.ParseAlgorithm(a.Config.Cipher)
	if err != nil {
		return core.Options{}, err
	}
	return core.Options{
		KDF:               a.Config.KDF,
		Cipher:            alg,
		MinPasswordLength: a.Config.MinPasswordLength,
		LockTimeout:       a.Config.LockTimeout,
		MaxImportSize:     a.Config.MaxImportSize,
		Logger:            a.Log,
	}, nil
}

func (a *App) vaultAt(dir string) (*core.Vault, error) {
	opts, err := a.Options()
	if err != nil {
		return nil, err
	}
	return core.New(dir, opts)
}

func (a *App) vault() (*core.Vault, error) {
	return a.vaultAt(a.Config.VaultDir)
}

// GetPassword returns the password for v: ZECRET_PASSWORD first, then the OS
// keyring, then an interactive prompt.
// The caller is responsible for calling crypto.ClearBytes on the returned password
func (a *App) GetPassword(v *core.Vault, prompt string) ([]byte, PasswordSource, error) {
	if password := core.GetPasswordFromEnv(); password != nil {
		return password, SourceEnv, nil
	}

	if a.Config.UseKeyring {
		if st, err := v.Status(); err == nil {
			if password, err := keyring.GetPassword(st.VaultID); err == nil {
				return password, SourceKeyring, nil
			}
		}
	}

	password, err := a.prompt(prompt)
	if err != nil {
		return nil, SourcePrompt, err
	}
	return password, SourcePrompt, nil
}

// GetNewPassword returns a password for a new credential: ZECRET_PASSWORD
// when set, otherwise a confirmed prompt.
func (a *App) GetNewPassword(prompt string) ([]byte, error) {
	if password := core.GetPasswordFromEnv(); password != nil {
		return password, nil
	}
	return a.promptNew(prompt)
}

// Unlock opens v. A password from the keyring that no longer verifies falls
// back to the prompt once; a typed or environment password is never retried.
// The returned password must be cleared by the caller.
func (a *App) Unlock(ctx context.Context, v *core.Vault, prompt string) (*core.Session, []byte, error) {
	// Fail before prompting for a password that could not be used.
	exists, err := v.Exists()
	if err != nil {
		return nil, nil, err
	}
	if !exists {
		return nil, nil, core.ErrNotInitialized
	}

	password, source, err := a.GetPassword(v, prompt)
	if err != nil {
		return nil, nil, err
	}

	s, err := v.Open(ctx, password)
	if err == nil {
		return s, password, nil
	}
	crypto.ClearBytes(password)
	if source != SourceKeyring || !errors.Is(err, core.ErrAuthentication) {
		return nil, nil, err
	}

	a.Log.Warn("password in keyring is stale")
	fmt.Fprintln(a.Err, "Password in keyring does not match the vault")
	password, err = a.prompt(prompt)
	if err != nil {
		return nil, nil, err
	}
	s, err = v.Open(ctx, password)
	if err != nil {
		crypto.ClearBytes(password)
		return nil, nil, err
	}
	return s, password, nil
}

func (a *App) open(ctx context.Context) (*core.Session, error) {
	v, err := a.vault()
	if err != nil {
		return nil, err
	}
	s, password, err := a.Unlock(ctx, v, "Enter password: ")
	if err != nil {
		return nil, err
	}
	crypto.ClearBytes(password)
	return s, nil
}

// withSession opens the vault, runs fn and closes the session.
func (a *App) withSession(ctx context.Context, fn func(*core.Session) error) (err error) {
	s, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(s)
}

// ErrorMessage renders err for the terminal, with a hint line where one helps.
func ErrorMessage(err error) []string {
	var conflict *core.ConflictError
	var tx *core.TransactionError
	switch {
	case errors.Is(err, core.ErrNotInitialized):
		return []string{"Error: vault not initialized", "Run 'zecret init' first"}
	case errors.Is(err, core.ErrAlreadyExists):
		return []string{"Error: vault already exists", "Use 'zecret status' to see current state"}
	case errors.Is(err, core.ErrAuthentication):
		return []string{"Error: wrong password or damaged vault"}
	case errors.As(err, &conflict):
		return []string{
			fmt.Sprintf("Error: already in the vault: %v", conflict.IDs),
			"Use -overwrite to replace, or -rename for a single entry",
		}
	case errors.As(err, &tx):
		return []string{fmt.Sprintf("Error: %s", err), "The vault was not changed"}
	case errors.Is(err, core.ErrNotFound):
		return []string{fmt.Sprintf("Error: %s", err), "Use 'zecret ls' to list entries"}
	case errors.Is(err, core.ErrNoTerminal):
		return []string{"Error: " + core.ErrNoTerminal.Error()}
	default:
		return []string{fmt.Sprintf("Error: %s", err)}
	}
}

// HandleError reports err and exits with status 1
func HandleError(err error) {
	for _, line := range ErrorMessage(err) {
		fmt.Fprintln(os.Stderr, line)
	}
	os.Exit(1)
}
