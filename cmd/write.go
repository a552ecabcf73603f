package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/illarion/zecret/internal/core"
	"github.com/illarion/zecret/internal/crypto"
)

// WriteOptions selects what Write stores.
type WriteOptions struct {
	// ID of the entry to replace. Empty creates a new entry.
	ID string
	// Title makes the entry a note with this title.
	Title string
	// File to read the body from. Empty or "-" reads standard input.
	File string
}

// Write stores a new or replaced entry and prints its id.
func (a *App) Write(ctx context.Context, opts WriteOptions) error {
	body, err := a.readInput(opts.File)
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(body)

	plaintext := body
	if opts.Title != "" {
		plaintext = core.EncodeNote(core.Note{Title: opts.Title, Body: string(body)})
		defer crypto.ClearBytes(plaintext)
	}

	return a.withSession(ctx, func(s *core.Session) error {
		info, err := s.Write(ctx, opts.ID, plaintext)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "✓ Saved %s\n", info.ID)
		return nil
	})
}

func (a *App) readInput(file string) ([]byte, error) {
	if file == "" || file == "-" {
		data, err := io.ReadAll(a.In)
		if err != nil {
			return nil, fmt.Errorf("failed to read input: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file, err)
	}
	return data, nil
}
