package core

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illarion/zecret/internal/crypto"
)

func TestWriteRead(t *testing.T) {
	ctx := context.Background()
	_, s, _ := createAndOpen(t, testOptions(), "pw1")

	info, err := s.Write(ctx, "e1", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "e1", info.ID)
	assert.Equal(t, crypto.AlgXChaCha20Poly1305, info.Algorithm)

	got, err := s.Read(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	_, err = s.Read(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWriteEmptyPlaintext(t *testing.T) {
	ctx := context.Background()
	_, s, _ := createAndOpen(t, testOptions(), "pw1")

	_, err := s.Write(ctx, "empty", nil)
	require.NoError(t, err)

	got, err := s.Read(ctx, "empty")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWriteGeneratesID(t *testing.T) {
	ctx := context.Background()
	_, s, _ := createAndOpen(t, testOptions(), "pw1")

	info, err := s.Write(ctx, "", []byte("note"))
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^\d{8}_\d{6}_[0-9a-f]{8}$`), info.ID)

	got, err := s.Read(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, "note", string(got))
}

func TestWriteFreshNonce(t *testing.T) {
	ctx := context.Background()
	_, s, dir := createAndOpen(t, testOptions(), "pw1")

	_, err := s.Write(ctx, "e1", []byte("same"))
	require.NoError(t, err)
	first, err := os.ReadFile(entryPath(t, dir, "e1"))
	require.NoError(t, err)

	_, err = s.Write(ctx, "e1", []byte("same"))
	require.NoError(t, err)
	second, err := os.ReadFile(entryPath(t, dir, "e1"))
	require.NoError(t, err)

	e1, err := crypto.ParseEntry("e1", first)
	require.NoError(t, err)
	e2, err := crypto.ParseEntry("e1", second)
	require.NoError(t, err)
	assert.NotEqual(t, e1.Nonce, e2.Nonce)
	assert.NotEqual(t, e1.Ciphertext, e2.Ciphertext)
}

func TestWriteKeepsCreated(t *testing.T) {
	ctx := context.Background()
	_, s, _ := createAndOpen(t, testOptions(), "pw1")

	first, err := s.Write(ctx, "e1", []byte("v1"))
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := s.Write(ctx, "e1", []byte("v2"))
	require.NoError(t, err)

	assert.True(t, first.Created.Equal(second.Created))
	assert.True(t, second.Modified.After(first.Modified))

	got, err := s.Read(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))
}

func TestNoPlaintextOnDisk(t *testing.T) {
	ctx := context.Background()
	_, s, dir := createAndOpen(t, testOptions(), "pw1")

	secret := []byte("very secret diary content")
	_, err := s.Write(ctx, "e1", secret)
	require.NoError(t, err)

	data, err := os.ReadFile(entryPath(t, dir, "e1"))
	require.NoError(t, err)
	assert.False(t, bytes.Contains(data, secret))
}

func TestInvalidIDs(t *testing.T) {
	ctx := context.Background()
	_, s, _ := createAndOpen(t, testOptions(), "pw1")

	for _, id := range []string{"../escape", ".hidden", "a/b", "with space"} {
		_, err := s.Write(ctx, id, []byte("x"))
		assert.ErrorIs(t, err, ErrInvalidID, id)
		_, err = s.Read(ctx, id)
		assert.ErrorIs(t, err, ErrInvalidID, id)
		assert.ErrorIs(t, s.Delete(ctx, id), ErrInvalidID, id)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	_, s, _ := createAndOpen(t, testOptions(), "pw1")

	_, err := s.Write(ctx, "e1", []byte("hello"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "e1"))
	_, err = s.Read(ctx, "e1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "e1"), ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	_, s, _ := createAndOpen(t, testOptions(), "pw1")

	for _, id := range []string{"a", "b", "c"} {
		_, err := s.Write(ctx, id, []byte(id))
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
	assert.Equal(t, "a", list[2].ID)
	for _, e := range list {
		assert.NoError(t, e.Err)
		assert.Positive(t, e.Size)
	}
}

func TestListReportsUnreadableEntry(t *testing.T) {
	ctx := context.Background()
	_, s, dir := createAndOpen(t, testOptions(), "pw1")

	_, err := s.Write(ctx, "good", []byte("x"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(entryPath(t, dir, "bad"), []byte("garbage"), 0600))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	var bad *EntryInfo
	for i := range list {
		if list[i].ID == "bad" {
			bad = &list[i]
		}
	}
	require.NotNil(t, bad)
	assert.ErrorIs(t, bad.Err, ErrIntegrity)
}

func TestReadTamperedEntry(t *testing.T) {
	ctx := context.Background()
	_, s, dir := createAndOpen(t, testOptions(), "pw1")

	_, err := s.Write(ctx, "e1", []byte("hello"))
	require.NoError(t, err)

	path := entryPath(t, dir, "e1")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0x01
	require.NoError(t, os.WriteFile(path, data, 0600))

	got, err := s.Read(ctx, "e1")
	assert.ErrorIs(t, err, ErrIntegrity)
	assert.Contains(t, err.Error(), "e1")
	assert.Nil(t, got)
}

func TestReadSwappedRecord(t *testing.T) {
	ctx := context.Background()
	_, s, dir := createAndOpen(t, testOptions(), "pw1")

	_, err := s.Write(ctx, "e1", []byte("one"))
	require.NoError(t, err)
	_, err = s.Write(ctx, "e2", []byte("two"))
	require.NoError(t, err)

	data, err := os.ReadFile(entryPath(t, dir, "e1"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(entryPath(t, dir, "e2"), data, 0600))

	_, err = s.Read(ctx, "e2")
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestWriteStorageErrorWrapped(t *testing.T) {
	ctx := context.Background()
	_, s, dir := createAndOpen(t, testOptions(), "pw1")

	require.NoError(t, os.RemoveAll(filepath.Join(dir, currentGen(t, dir), "entries")))

	_, err := s.Write(ctx, "e1", []byte("hello"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist), err)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "failed to write entry e1")
}

func TestSessionClosed(t *testing.T) {
	ctx := context.Background()
	_, s, _ := createAndOpen(t, testOptions(), "pw1")

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.List(ctx)
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = s.Read(ctx, "e1")
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = s.Write(ctx, "e1", []byte("x"))
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.ErrorIs(t, s.Delete(ctx, "e1"), ErrSessionClosed)
	assert.ErrorIs(t, s.ChangePassword(ctx, []byte("pw1"), []byte("pw2")), ErrSessionClosed)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	_, s, _ := createAndOpen(t, testOptions(), "pw1")
	_, err := s.Write(context.Background(), "e1", []byte("x"))
	require.NoError(t, err)
	cancel()

	_, err = s.Write(ctx, "e2", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.Read(ctx, "e1")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAESVault(t *testing.T) {
	ctx := context.Background()
	opts := testOptions()
	opts.Cipher = crypto.AlgAES256GCM
	_, s, _ := createAndOpen(t, opts, "pw1")

	info, err := s.Write(ctx, "e1", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, crypto.AlgAES256GCM, info.Algorithm)

	got, err := s.Read(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}
