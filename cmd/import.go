package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/illarion/zecret/internal/core"
	"github.com/illarion/zecret/internal/storage"
)

// ImportOptions mirrors the import flags.
type ImportOptions struct {
	Overwrite bool
	// ID names a raw record. Defaults to the file name without ".zent".
	ID     string
	Rename string
}

// Import reads a bundle or raw record from file ("-" for stdin) into the vault.
func (a *App) Import(ctx context.Context, file string, opts ImportOptions) error {
	if file == "" {
		return errors.New("import requires a file argument\nUsage: zecret import [flags] <file>")
	}

	var r io.Reader = a.In
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", file, err)
		}
		defer f.Close()
		r = f

		if opts.ID == "" && strings.HasSuffix(file, storage.EntryExt) {
			opts.ID = strings.TrimSuffix(filepath.Base(file), storage.EntryExt)
		}
	}

	return a.withSession(ctx, func(s *core.Session) error {
		result, err := s.Import(ctx, r, core.ImportOptions{
			Overwrite: opts.Overwrite,
			ID:        opts.ID,
			RenameTo:  opts.Rename,
		})

		var warning *core.ForeignKeyWarning
		if err != nil && !errors.As(err, &warning) {
			return err
		}

		for _, id := range result.Imported {
			fmt.Fprintf(a.Out, "✓ Imported %s\n", id)
		}
		if warning != nil {
			fmt.Fprintf(a.Err, "warning: %s\n", warning)
			fmt.Fprintln(a.Err, "Use 'zecret foreign adopt -from <vault> <id>' to re-encrypt them under this vault")
		}
		return nil
	})
}
