package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/illarion/zecret/internal/core"
	"github.com/illarion/zecret/internal/crypto"
)

// Diff compares a stored entry with new content from file or stdin
func (a *App) Diff(ctx context.Context, id, file string) error {
	if id == "" {
		return errors.New("diff requires an entry id\nUsage: zecret diff <id> [file]")
	}

	newData, err := a.readInput(file)
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(newData)

	return a.withSession(ctx, func(s *core.Session) error {
		vaultData, err := s.Read(ctx, id)
		if err != nil {
			return err
		}
		defer crypto.ClearBytes(vaultData)

		patch, err := core.GenerateUnifiedDiff(id, vaultData, newData)
		if err != nil {
			return err
		}
		if patch == "" {
			fmt.Fprintf(a.Out, "%s: unchanged\n", id)
			return nil
		}

		fmt.Fprint(a.Out, patch)
		if core.DetectFileType(vaultData) && core.DetectFileType(newData) {
			ins, del := core.DiffStat(vaultData, newData)
			fmt.Fprintf(a.Out, "%s: %d insertion(s)(+), %d deletion(s)(-)\n", id, ins, del)
		}
		return nil
	})
}
