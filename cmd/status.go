package cmd

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/illarion/zecret/internal/core"
	"github.com/illarion/zecret/internal/git"
	"github.com/illarion/zecret/internal/keyring"
)

// Status shows vault metadata. No password is required.
func (a *App) Status() error {
	v, err := a.vault()
	if err != nil {
		return err
	}

	st, err := v.Status()
	if errors.Is(err, core.ErrNotInitialized) {
		fmt.Fprintf(a.Out, "No vault at %s\n", v.Path())
		fmt.Fprintln(a.Out, "Run 'zecret init' to create one")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(a.Out, "Vault:       %s\n", st.Path)
	fmt.Fprintf(a.Out, "ID:          %s\n", st.VaultID)
	fmt.Fprintf(a.Out, "Generation:  %s\n", st.Generation)
	fmt.Fprintf(a.Out, "Created:     %s\n", st.Created.Local().Format(time.RFC3339))
	fmt.Fprintf(a.Out, "Modified:    %s\n", st.Modified.Local().Format(time.RFC3339))
	fmt.Fprintf(a.Out, "Cipher:      %s\n", st.Cipher)
	fmt.Fprintf(a.Out, "KDF:         %s\n", st.KDF)
	fmt.Fprintf(a.Out, "Entries:     %d\n", st.Entries)
	if st.Foreign > 0 {
		fmt.Fprintf(a.Out, "Quarantined: %d\n", st.Foreign)
	}
	if st.Stale > 0 {
		fmt.Fprintf(a.Out, "Stale:       %d interrupted password change(s), removed on next open\n", st.Stale)
	}
	if a.Config.UseKeyring {
		stored := "not stored"
		if keyring.HasPassword(st.VaultID) {
			stored = "stored in keyring"
		}
		fmt.Fprintf(a.Out, "Password:    %s\n", stored)
	}

	gs, err := git.Check(st.Path)
	if err != nil {
		a.Log.Debug("git check failed", zap.Error(err))
		return nil
	}
	fmt.Fprint(a.Out, git.Format(gs))
	return nil
}
