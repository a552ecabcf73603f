package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/illarion/zecret/internal/core"
	"github.com/illarion/zecret/internal/crypto"
)

// ForeignList shows quarantined records
func (a *App) ForeignList(ctx context.Context) error {
	return a.withSession(ctx, func(s *core.Session) error {
		records, err := s.Foreign(ctx)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(a.Out, "No quarantined records")
			return nil
		}

		fmt.Fprintln(a.Out, "Quarantined records (encrypted under another vault's key):")
		for _, r := range records {
			if r.Err != nil {
				fmt.Fprintf(a.Out, "  %s (unreadable: %s)\n", r.ID, r.Err)
				continue
			}
			fmt.Fprintf(a.Out, "  %s (%s, %s)\n", r.ID, r.Created.Local().Format(timeLayout), formatSize(r.Size))
		}
		return nil
	})
}

// ForeignRemove deletes quarantined records
func (a *App) ForeignRemove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return errors.New("foreign rm requires at least one id")
	}
	return a.withSession(ctx, func(s *core.Session) error {
		for _, id := range ids {
			if err := s.DeleteForeign(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(a.Out, "✓ Removed quarantined %s\n", id)
		}
		return nil
	})
}

// ForeignAdopt re-encrypts a quarantined record under this vault's key. The
// record is decrypted with the vault at from, which is unlocked with its own
// password. An empty from retries with this vault's key.
func (a *App) ForeignAdopt(ctx context.Context, id, from string, overwrite bool) error {
	if id == "" {
		return errors.New("foreign adopt requires an id")
	}

	return a.withSession(ctx, func(s *core.Session) (err error) {
		var source *core.Session
		if from != "" {
			if source, err = a.openSource(ctx, from); err != nil {
				return err
			}
			defer func() {
				if cerr := source.Close(); cerr != nil && err == nil {
					err = cerr
				}
			}()
		}

		info, err := s.AdoptForeign(ctx, id, source, overwrite)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "✓ Adopted %s\n", info.ID)
		return nil
	})
}

// openSource unlocks another vault by prompt. Its password is never taken
// from ZECRET_PASSWORD, which belongs to the target vault.
func (a *App) openSource(ctx context.Context, dir string) (*core.Session, error) {
	v, err := a.vaultAt(dir)
	if err != nil {
		return nil, err
	}
	password, err := a.prompt(fmt.Sprintf("Password for %s: ", v.Path()))
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(password)

	s, err := v.Open(ctx, password)
	if err != nil {
		return nil, fmt.Errorf("source vault: %w", err)
	}
	return s, nil
}
