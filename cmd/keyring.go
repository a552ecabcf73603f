package cmd

import (
	"context"
	"fmt"

	"github.com/illarion/zecret/internal/crypto"
	"github.com/illarion/zecret/internal/keyring"
)

// KeyringSave verifies the password and stores it in the OS keyring
func (a *App) KeyringSave(ctx context.Context) error {
	v, err := a.vault()
	if err != nil {
		return err
	}

	password, err := a.prompt("Enter password: ")
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(password)

	s, err := v.Open(ctx, password)
	if err != nil {
		return err
	}
	vaultID, err := s.VaultID()
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	if err := keyring.SavePassword(vaultID, password); err != nil {
		return fmt.Errorf("failed to save to keyring: %w", err)
	}
	fmt.Fprintln(a.Out, "Password saved to keyring")
	return nil
}

// KeyringDelete removes the password from the OS keyring
func (a *App) KeyringDelete() error {
	vaultID, err := a.vaultID()
	if err != nil {
		return err
	}
	if err := keyring.DeletePassword(vaultID); err != nil {
		fmt.Fprintln(a.Out, "No password stored in keyring")
		return nil
	}
	fmt.Fprintln(a.Out, "Password removed from keyring")
	return nil
}

// KeyringStatus checks if a password is stored in the keyring
func (a *App) KeyringStatus() error {
	vaultID, err := a.vaultID()
	if err != nil {
		return err
	}
	if keyring.HasPassword(vaultID) {
		fmt.Fprintln(a.Out, "Password: stored in keyring")
	} else {
		fmt.Fprintln(a.Out, "Password: not stored")
	}
	return nil
}

func (a *App) vaultID() (string, error) {
	v, err := a.vault()
	if err != nil {
		return "", err
	}
	st, err := v.Status()
	if err != nil {
		return "", err
	}
	return st.VaultID, nil
}
