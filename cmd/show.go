package cmd

import (
	"context"
	"fmt"

	"github.com/illarion/zecret/internal/core"
	"github.com/illarion/zecret/internal/crypto"
)

// Show prints an entry. Notes are rendered as title and body unless raw is set.
func (a *App) Show(ctx context.Context, id string, raw bool) error {
	return a.withSession(ctx, func(s *core.Session) error {
		plaintext, err := s.Read(ctx, id)
		if err != nil {
			return err
		}
		defer crypto.ClearBytes(plaintext)

		if raw {
			_, err := a.Out.Write(plaintext)
			return err
		}

		note := core.ParseNote(plaintext)
		if note.Title != "" {
			fmt.Fprintf(a.Out, "# %s\n\n", note.Title)
		}
		fmt.Fprint(a.Out, note.Body)
		if note.Body != "" && note.Body[len(note.Body)-1] != '\n' {
			fmt.Fprintln(a.Out)
		}
		return nil
	})
}
