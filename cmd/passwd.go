package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/illarion/zecret/internal/crypto"
	"github.com/illarion/zecret/internal/keyring"
)

// NewPasswordEnv supplies the new password to passwd in scripts.
const NewPasswordEnv = "ZECRET_NEW_PASSWORD"

// Passwd changes the vault password
func (a *App) Passwd(ctx context.Context) (err error) {
	v, err := a.vault()
	if err != nil {
		return err
	}

	s, currentPassword, err := a.Unlock(ctx, v, "Enter current password: ")
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(currentPassword)
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	var newPassword []byte
	if env := os.Getenv(NewPasswordEnv); env != "" {
		newPassword = []byte(env)
	} else if newPassword, err = a.promptNew("New password: "); err != nil {
		return err
	}
	defer crypto.ClearBytes(newPassword)

	if err := s.ChangePassword(ctx, currentPassword, newPassword); err != nil {
		return err
	}
	fmt.Fprintln(a.Out, "✓ Password changed successfully")

	// Keep a stored password in step with the vault.
	vaultID, err := s.VaultID()
	if err != nil {
		return err
	}
	if a.Config.UseKeyring && keyring.HasPassword(vaultID) {
		if err := keyring.SavePassword(vaultID, newPassword); err != nil {
			fmt.Fprintf(a.Err, "warning: failed to update keyring: %s\n", err)
		} else {
			fmt.Fprintln(a.Out, "Keyring updated with new password")
		}
	}
	return nil
}
