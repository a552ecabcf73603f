package core

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/illarion/zecret/internal/crypto"
)

var fastKDF = crypto.KDFParams{Algorithm: crypto.AlgArgon2id, Time: 1, Memory: 64, Threads: 1}

func testOptions() Options {
	return Options{
		KDF:         fastKDF,
		LockTimeout: 100 * time.Millisecond,
		Logger:      zap.NewNop(),
	}
}

func newTestVault(t *testing.T, opts Options) (*Vault, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "vault")
	v, err := New(dir, opts)
	require.NoError(t, err)
	return v, dir
}

func createAndOpen(t *testing.T, opts Options, password string) (*Vault, *Session, string) {
	t.Helper()
	v, dir := newTestVault(t, opts)
	require.NoError(t, v.Create(context.Background(), []byte(password)))
	s, err := v.Open(context.Background(), []byte(password))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return v, s, dir
}

func currentGen(t *testing.T, dir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "CURRENT"))
	require.NoError(t, err)
	return strings.TrimSpace(string(data))
}

func entryPath(t *testing.T, dir, id string) string {
	t.Helper()
	return filepath.Join(dir, currentGen(t, dir), "entries", id+".zent")
}

func genDirs(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var gens []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "gen-") {
			gens = append(gens, e.Name())
		}
	}
	return gens
}
