package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/illarion/zecret/internal/storage"
)

// Create with "pw1", write, change to "pw2", export, delete, import, read back.
func TestVaultLifecycle(t *testing.T) {
	ctx := context.Background()
	v, s, _ := createAndOpen(t, testOptions(), "pw1")

	_, err := s.Write(ctx, "e1", []byte("hello"))
	require.NoError(t, err)
	got, err := s.Read(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	require.NoError(t, s.ChangePassword(ctx, []byte("pw1"), []byte("pw2")))
	require.NoError(t, s.Close())

	_, err = v.Open(ctx, []byte("pw1"))
	assert.ErrorIs(t, err, ErrAuthentication)

	s, err = v.Open(ctx, []byte("pw2"))
	require.NoError(t, err)
	defer s.Close()
	got, err = s.Read(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	var buf bytes.Buffer
	n, err := s.Export(ctx, &buf, "e1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.Delete(ctx, "e1"))

	res, err := s.Import(ctx, &buf, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"e1"}, res.Imported)
	assert.Empty(t, res.Foreign)

	got, err = s.Read(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestExportBundle(t *testing.T) {
	ctx := context.Background()
	_, s, _ := createAndOpen(t, testOptions(), "pw1")
	writeEntries(t, s, 3)

	var buf bytes.Buffer
	n, err := s.Export(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Secrets and key parameters never leave the vault.
	assert.NotContains(t, buf.String(), "entry number")
	assert.NotContains(t, buf.String(), "salt")
	assert.NotContains(t, buf.String(), "argon2id")

	var bundle Bundle
	require.NoError(t, json.Unmarshal(buf.Bytes(), &bundle))
	assert.Equal(t, ExportFormat, bundle.Format)
	assert.Equal(t, ExportVersion, bundle.Version)
	vaultID, err := s.VaultID()
	require.NoError(t, err)
	assert.Equal(t, vaultID, bundle.VaultID)
	require.Len(t, bundle.Entries, 3)
	assert.Equal(t, "xchacha20poly1305", bundle.Entries[0].Algorithm)

	_, err = s.Export(ctx, &buf, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestImportConflict(t *testing.T) {
	ctx := context.Background()
	_, s, _ := createAndOpen(t, testOptions(), "pw1")
	writeEntries(t, s, 2)

	var buf bytes.Buffer
	_, err := s.Export(ctx, &buf)
	require.NoError(t, err)
	exported := buf.Bytes()

	require.NoError(t, s.Delete(ctx, "e1"))
	_, err = s.Write(ctx, "e2", []byte("changed"))
	require.NoError(t, err)

	// e2 exists: nothing is imported, not even e1.
	_, err = s.Import(ctx, bytes.NewReader(exported), ImportOptions{})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, []string{"e2"}, conflict.IDs)
	_, err = s.Read(ctx, "e1")
	assert.ErrorIs(t, err, ErrNotFound)

	res, err := s.Import(ctx, bytes.NewReader(exported), ImportOptions{Overwrite: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"e1", "e2"}, res.Imported)

	got, err := s.Read(ctx, "e2")
	require.NoError(t, err)
	assert.Equal(t, "entry number 2", string(got))
}

func TestImportRename(t *testing.T) {
	ctx := context.Background()
	_, s, _ := createAndOpen(t, testOptions(), "pw1")
	writeEntries(t, s, 1)

	var buf bytes.Buffer
	_, err := s.Export(ctx, &buf, "e1")
	require.NoError(t, err)

	res, err := s.Import(ctx, &buf, ImportOptions{RenameTo: "e1-copy"})
	require.NoError(t, err)
	assert.Equal(t, []string{"e1-copy"}, res.Imported)

	got, err := s.Read(ctx, "e1-copy")
	require.NoError(t, err)
	assert.Equal(t, "entry number 1", string(got))

	_, err = s.Import(ctx, strings.NewReader("{}"), ImportOptions{RenameTo: "../x"})
	assert.ErrorIs(t, err, ErrImport)
}

func TestImportRaw(t *testing.T) {
	ctx := context.Background()
	_, s, _ := createAndOpen(t, testOptions(), "pw1")
	writeEntries(t, s, 1)

	raw, err := s.ExportRaw(ctx, "e1")
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "e1"))

	_, err = s.Import(ctx, bytes.NewReader(raw), ImportOptions{})
	assert.ErrorIs(t, err, ErrImport)

	// The id is authenticated, so a raw record only opens under its own id.
	res, err := s.Import(ctx, bytes.NewReader(raw), ImportOptions{ID: "e1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"e1"}, res.Imported)

	got, err := s.Read(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "entry number 1", string(got))
}

func TestImportRejectsMalformedInput(t *testing.T) {
	ctx := context.Background()
	_, s, _ := createAndOpen(t, testOptions(), "pw1")
	writeEntries(t, s, 1)

	var buf bytes.Buffer
	_, err := s.Export(ctx, &buf, "e1")
	require.NoError(t, err)
	var valid Bundle
	require.NoError(t, json.Unmarshal(buf.Bytes(), &valid))

	mutate := func(f func(b *Bundle)) string {
		b := valid
		b.Entries = append([]BundleEntry(nil), valid.Entries...)
		f(&b)
		data, err := json.Marshal(b)
		require.NoError(t, err)
		return string(data)
	}

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace", "  \n"},
		{"not json", "hello world"},
		{"truncated", buf.String()[:buf.Len()/2]},
		{"unknown field", `{"format":"zecret-export","version":1,"entries":[],"key":"x"}`},
		{"trailing data", buf.String() + "{}"},
		{"wrong format", mutate(func(b *Bundle) { b.Format = "other" })},
		{"wrong version", mutate(func(b *Bundle) { b.Version = 2 })},
		{"no entries", mutate(func(b *Bundle) { b.Entries = nil })},
		{"bad id", mutate(func(b *Bundle) { b.Entries[0].ID = "../../etc/passwd" })},
		{"duplicate id", mutate(func(b *Bundle) { b.Entries = append(b.Entries, b.Entries[0]) })},
		{"short record", mutate(func(b *Bundle) { b.Entries[0].Record = b.Entries[0].Record[:10] })},
		{"bad magic", mutate(func(b *Bundle) {
			r := append([]byte(nil), b.Entries[0].Record...)
			r[0] = 'X'
			b.Entries[0].Record = r
		})},
		{"algorithm mismatch", mutate(func(b *Bundle) { b.Entries[0].Algorithm = "aes-256-gcm" })},
		{"raw record too short", "ZENT\x01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Import(ctx, strings.NewReader(tt.input), ImportOptions{ID: "x1"})
			assert.ErrorIs(t, err, ErrImport)
		})
	}

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestImportSizeLimit(t *testing.T) {
	ctx := context.Background()
	opts := testOptions()
	opts.MaxImportSize = 1024
	_, s, _ := createAndOpen(t, opts, "pw1")

	_, err := s.Write(ctx, "big", bytes.Repeat([]byte("x"), 2048))
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = s.Export(ctx, &buf)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "big"))

	_, err = s.Import(ctx, &buf, ImportOptions{})
	assert.ErrorIs(t, err, ErrImport)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestImportEntryLimit(t *testing.T) {
	ctx := context.Background()
	_, s, _ := createAndOpen(t, testOptions(), "pw1")

	var sb strings.Builder
	sb.WriteString(`{"format":"zecret-export","version":1,"entries":[`)
	for i := range MaxImportEntries + 1 {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString("{}")
	}
	sb.WriteString("]}")

	_, err := s.Import(ctx, strings.NewReader(sb.String()), ImportOptions{})
	assert.ErrorIs(t, err, ErrImport)
	assert.Contains(t, err.Error(), fmt.Sprint(MaxImportEntries))
}

func TestImportForeignKey(t *testing.T) {
	ctx := context.Background()
	_, src, _ := createAndOpen(t, testOptions(), "other")
	_, err := src.Write(ctx, "theirs", []byte("from another vault"))
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = src.Export(ctx, &buf)
	require.NoError(t, err)

	core, logs := observer.New(zapcore.WarnLevel)
	opts := testOptions()
	opts.Logger = zap.New(core)
	_, s, _ := createAndOpen(t, opts, "pw1")
	_, err = s.Write(ctx, "mine", []byte("local"))
	require.NoError(t, err)
	var mine bytes.Buffer
	_, err = s.Export(ctx, &mine)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "mine"))

	res, err := s.Import(ctx, &buf, ImportOptions{})
	var warn *ForeignKeyWarning
	require.ErrorAs(t, err, &warn)
	assert.Equal(t, []string{"theirs"}, warn.IDs)
	require.NotNil(t, res)
	assert.Equal(t, []string{"theirs"}, res.Foreign)
	assert.Empty(t, res.Imported)
	assert.Equal(t, 1, logs.FilterMessage("quarantined records under a foreign key").Len())

	// Quarantined records are not entries.
	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	_, err = s.Read(ctx, "theirs")
	assert.ErrorIs(t, err, ErrNotFound)

	foreign, err := s.Foreign(ctx)
	require.NoError(t, err)
	require.Len(t, foreign, 1)
	assert.Equal(t, "theirs", foreign[0].ID)

	// Native records still import normally.
	res, err = s.Import(ctx, &mine, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"mine"}, res.Imported)
}

func TestImportForeignCannotRename(t *testing.T) {
	ctx := context.Background()
	_, src, _ := createAndOpen(t, testOptions(), "other")
	_, err := src.Write(ctx, "theirs", []byte("x"))
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = src.Export(ctx, &buf)
	require.NoError(t, err)

	_, s, _ := createAndOpen(t, testOptions(), "pw1")
	_, err = s.Import(ctx, &buf, ImportOptions{RenameTo: "renamed"})
	assert.ErrorIs(t, err, ErrImport)

	foreign, err := s.Foreign(ctx)
	require.NoError(t, err)
	assert.Empty(t, foreign)
}

func TestImportWriteFailureKeepsStored(t *testing.T) {
	ctx := context.Background()
	_, s, dir := createAndOpen(t, testOptions(), "pw1")
	_, src, _ := createAndOpen(t, testOptions(), "other")

	_, err := s.Write(ctx, "mine", []byte("native body"))
	require.NoError(t, err)
	_, err = src.Write(ctx, "theirs", []byte("foreign body"))
	require.NoError(t, err)

	var nativeBuf, foreignBuf bytes.Buffer
	_, err = s.Export(ctx, &nativeBuf, "mine")
	require.NoError(t, err)
	_, err = src.Export(ctx, &foreignBuf, "theirs")
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "mine"))

	var mixed, other Bundle
	require.NoError(t, json.Unmarshal(nativeBuf.Bytes(), &mixed))
	require.NoError(t, json.Unmarshal(foreignBuf.Bytes(), &other))
	mixed.Entries = append(mixed.Entries, other.Entries...)
	data, err := json.Marshal(mixed)
	require.NoError(t, err)

	// Native records are stored before the quarantine is touched.
	require.NoError(t, os.RemoveAll(filepath.Join(dir, currentGen(t, dir), storage.ForeignDir)))

	res, err := s.Import(ctx, bytes.NewReader(data), ImportOptions{})
	require.Error(t, err)
	var warn *ForeignKeyWarning
	assert.False(t, errors.As(err, &warn))
	require.NotNil(t, res)
	assert.Equal(t, []string{"mine"}, res.Imported)
	assert.Empty(t, res.Foreign)

	got, err := s.Read(ctx, "mine")
	require.NoError(t, err)
	assert.Equal(t, "native body", string(got))
}
