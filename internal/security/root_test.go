package security

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		shouldErr bool
		errType   error
	}{
		{"simple", "note1", false, nil},
		{"timestamp id", "20240101_120000_ab12cd34", false, nil},
		{"with extension", "e1.zent", false, nil},
		{"dashes", "gen-000001", false, nil},
		{"empty", "", true, ErrEmptyName},
		{"leading dot", ".hidden", true, ErrInvalidName},
		{"dot", ".", true, ErrInvalidName},
		{"dot dot", "..", true, ErrInvalidName},
		{"slash", "a/b", true, ErrInvalidName},
		{"backslash", "a\\b", true, ErrInvalidName},
		{"traversal", "../etc", true, ErrInvalidName},
		{"space", "a b", true, ErrInvalidName},
		{"unicode", "café", true, ErrInvalidName},
		{"null byte", "a\x00b", true, ErrInvalidName},
		{"too long", strings.Repeat("a", MaxNameLength+1), true, ErrNameTooLong},
		{"max length", strings.Repeat("a", MaxNameLength), false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if tt.shouldErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				if tt.errType != nil && !errors.Is(err, tt.errType) {
					t.Errorf("expected %v, got %v", tt.errType, err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateID(t *testing.T) {
	if err := ValidateID(strings.Repeat("a", MaxIDLength)); err != nil {
		t.Errorf("unexpected error at max length: %v", err)
	}
	if err := ValidateID(strings.Repeat("a", MaxIDLength+1)); !errors.Is(err, ErrNameTooLong) {
		t.Errorf("expected ErrNameTooLong, got %v", err)
	}
	if err := ValidateID("../x"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("expected ErrInvalidName, got %v", err)
	}
}

func openTestRoot(t *testing.T) (*Root, string) {
	t.Helper()
	dir := t.TempDir()
	r, err := OpenRoot(dir)
	if err != nil {
		t.Fatalf("OpenRoot failed: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r, dir
}

func TestWriteFileAtomic(t *testing.T) {
	r, dir := openTestRoot(t)

	if err := r.WriteFileAtomic("CURRENT", []byte("gen-000001"), 0600); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}
	if err := r.WriteFileAtomic("CURRENT", []byte("gen-000002"), 0600); err != nil {
		t.Fatalf("WriteFileAtomic overwrite failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "CURRENT"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "gen-000002" {
		t.Errorf("expected gen-000002, got %q", data)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only CURRENT, found %d files", len(entries))
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Join(dir, "CURRENT"))
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("expected mode 0600, got %v", info.Mode().Perm())
		}
	}
}

func TestWriteFileAtomicRejectsBadName(t *testing.T) {
	r, _ := openTestRoot(t)

	for _, name := range []string{"../escape", "/abs", ".tmp-x", ""} {
		if err := r.WriteFileAtomic(name, []byte("x"), 0600); err == nil {
			t.Errorf("expected error for %q", name)
		}
	}
}

func TestReadFileLimit(t *testing.T) {
	r, _ := openTestRoot(t)

	if err := r.WriteFileAtomic("big", make([]byte, 100), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := r.ReadFile("big", 100); err != nil {
		t.Errorf("read at limit failed: %v", err)
	}
	if _, err := r.ReadFile("big", 99); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
	if _, err := r.ReadFile("missing", 10); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestReadHead(t *testing.T) {
	r, _ := openTestRoot(t)

	if err := r.WriteFileAtomic("rec", []byte("0123456789"), 0600); err != nil {
		t.Fatal(err)
	}

	head, info, err := r.ReadHead("rec", 4)
	if err != nil {
		t.Fatalf("ReadHead failed: %v", err)
	}
	if string(head) != "0123" {
		t.Errorf("expected 0123, got %q", head)
	}
	if info.Size() != 10 {
		t.Errorf("expected size 10, got %d", info.Size())
	}

	head, _, err = r.ReadHead("rec", 64)
	if err != nil {
		t.Fatalf("ReadHead past end failed: %v", err)
	}
	if len(head) != 10 {
		t.Errorf("expected 10 bytes, got %d", len(head))
	}
}

func TestNamesAndDirs(t *testing.T) {
	r, dir := openTestRoot(t)

	for _, name := range []string{"b.zent", "a.zent", "c.txt"} {
		if err := r.WriteFileAtomic(name, []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
	}
	// Files that fail validation are invisible.
	if err := os.WriteFile(filepath.Join(dir, ".hidden.zent"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := r.Mkdir("gen-000002", 0700); err != nil {
		t.Fatal(err)
	}
	if err := r.Mkdir("gen-000001", 0700); err != nil {
		t.Fatal(err)
	}
	if err := r.Mkdir("other", 0700); err != nil {
		t.Fatal(err)
	}

	names, err := r.Names(".zent")
	if err != nil {
		t.Fatalf("Names failed: %v", err)
	}
	if strings.Join(names, ",") != "a,b" {
		t.Errorf("unexpected names %v", names)
	}

	dirs, err := r.Dirs("gen-")
	if err != nil {
		t.Fatalf("Dirs failed: %v", err)
	}
	if strings.Join(dirs, ",") != "gen-000001,gen-000002" {
		t.Errorf("unexpected dirs %v", dirs)
	}
}

func TestNestedRootAndRemoveAll(t *testing.T) {
	r, dir := openTestRoot(t)

	if err := r.Mkdir("gen-000001", 0700); err != nil {
		t.Fatal(err)
	}
	sub, err := r.OpenRoot("gen-000001")
	if err != nil {
		t.Fatalf("nested OpenRoot failed: %v", err)
	}
	if err := sub.WriteFileAtomic("vault.db", []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if sub.Path() != filepath.Join(dir, "gen-000001") {
		t.Errorf("unexpected nested path %s", sub.Path())
	}
	sub.Close()

	if err := r.RemoveAll("gen-000001"); err != nil {
		t.Fatalf("RemoveAll failed: %v", err)
	}
	if _, err := r.Stat("gen-000001"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected directory to be gone, got %v", err)
	}
}

func TestSymlinkEscapeBlocked(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	r, dir := openTestRoot(t)

	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret"), []byte("s"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(outside, "secret"), filepath.Join(dir, "link")); err != nil {
		t.Fatal(err)
	}

	if _, err := r.ReadFile("link", 10); err == nil {
		t.Error("expected error reading through symlink leaving the root")
	}
}

func TestRemoveTemp(t *testing.T) {
	r, dir := openTestRoot(t)

	for _, name := range []string{".tmp-1", ".tmp-2"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.WriteFileAtomic("keep", []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	n, err := r.RemoveTemp()
	if err != nil {
		t.Fatalf("RemoveTemp failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 removed, got %d", n)
	}
	if _, err := r.Stat("keep"); err != nil {
		t.Errorf("keep was removed: %v", err)
	}
}
