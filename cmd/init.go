package cmd

import (
	"context"
	"fmt"

	"github.com/illarion/zecret/internal/crypto"
	"github.com/illarion/zecret/internal/git"
)

// Init creates a new vault in the configured directory
func (a *App) Init(ctx context.Context) error {
	v, err := a.vault()
	if err != nil {
		return err
	}

	password, err := a.GetNewPassword("New password: ")
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(password)

	if err := v.Create(ctx, password); err != nil {
		return err
	}

	fmt.Fprintf(a.Out, "✓ Initialized vault at %s\n", v.Path())
	if gs, err := git.Check(v.Path()); err == nil {
		fmt.Fprint(a.Out, git.Format(gs))
	}
	return nil
}
