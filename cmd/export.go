package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/illarion/zecret/internal/core"
)

// ExportOptions selects what Export writes and where.
type ExportOptions struct {
	IDs []string
	// Output file. Empty or "-" writes to standard output.
	Output string
	// Raw writes the single entry's record instead of a bundle.
	Raw bool
}

// Export writes entries as an encrypted bundle, or one raw record.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.Raw && len(opts.IDs) != 1 {
		return errors.New("-raw exports exactly one entry")
	}

	return a.withSession(ctx, func(s *core.Session) error {
		if opts.Raw {
			record, err := s.ExportRaw(ctx, opts.IDs[0])
			if err != nil {
				return err
			}
			if err := a.writeOutput(opts.Output, func(w io.Writer) error {
				_, err := w.Write(record)
				return err
			}); err != nil {
				return err
			}
			a.report(opts.Output, "✓ Exported %s\n", opts.IDs[0])
			return nil
		}

		var n int
		err := a.writeOutput(opts.Output, func(w io.Writer) error {
			var err error
			n, err = s.Export(ctx, w, opts.IDs...)
			return err
		})
		if err != nil {
			return err
		}
		a.report(opts.Output, "✓ Exported %d entries\n", n)
		return nil
	})
}

// writeOutput sends fn's output to stdout, or atomically to a file so a
// failed export never leaves a partial bundle behind.
func (a *App) writeOutput(path string, fn func(io.Writer) error) error {
	if path == "" || path == "-" {
		return fn(a.Out)
	}

	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		return err
	}
	return writeFileAtomic(path, buf.Bytes())
}

func writeFileAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".zecret-*")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// report prints a confirmation unless the payload itself went to stdout.
func (a *App) report(path, format string, args ...any) {
	if path == "" || path == "-" {
		return
	}
	fmt.Fprintf(a.Out, format, args...)
}
