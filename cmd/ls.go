package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/illarion/zecret/internal/core"
	"github.com/illarion/zecret/internal/crypto"
)

const timeLayout = "2006-01-02 15:04"

// Ls lists entries newest first. With titles set, each entry is decrypted
// to show its note title.
func (a *App) Ls(ctx context.Context, titles bool) error {
	return a.withSession(ctx, func(s *core.Session) error {
		entries, err := s.List(ctx)
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Fprintln(a.Out, "No entries in vault")
			return nil
		}

		tw := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		for _, e := range entries {
			if e.Err != nil {
				fmt.Fprintf(tw, "  %s\t(unreadable: %s)\n", e.ID, e.Err)
				continue
			}
			line := fmt.Sprintf("  %s\t%s\t%s", e.ID, e.Modified.Local().Format(timeLayout), formatSize(e.Size))
			if titles {
				line += "\t" + a.title(ctx, s, e.ID)
			}
			fmt.Fprintln(tw, line)
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		foreign, err := s.Foreign(ctx)
		if err != nil {
			return err
		}
		if len(foreign) > 0 {
			fmt.Fprintf(a.Out, "\n%d quarantined record(s), see 'zecret foreign ls'\n", len(foreign))
		}
		return nil
	})
}

func (a *App) title(ctx context.Context, s *core.Session, id string) string {
	plaintext, err := s.Read(ctx, id)
	if err != nil {
		return "(" + err.Error() + ")"
	}
	defer crypto.ClearBytes(plaintext)

	if t := core.ParseNote(plaintext).Title; t != "" {
		return t
	}
	return "(untitled)"
}

func formatSize(size int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case size >= GB:
		return fmt.Sprintf("%.1f GB", float64(size)/GB)
	case size >= MB:
		return fmt.Sprintf("%.1f MB", float64(size)/MB)
	case size >= KB:
		return fmt.Sprintf("%.1f KB", float64(size)/KB)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}
