package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/illarion/zecret/internal/core"
)

// Remove deletes entries from the vault
func (a *App) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return errors.New("rm requires at least one entry id\nUsage: zecret rm <id> [id...]")
	}

	return a.withSession(ctx, func(s *core.Session) error {
		for _, id := range ids {
			if err := s.Delete(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(a.Out, "✓ Removed %s\n", id)
		}
		return nil
	})
}
