package api

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestTokenFile(t *testing.T) {
	t.Parallel()

	t.Run("round trip with owner-only mode", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "data", "api-token.json")
		token := NewToken()
		if err := WriteTokenFile(path, token); err != nil {
			t.Fatal(err)
		}
		got, err := ReadTokenFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if got != token {
			t.Errorf("ReadTokenFile() = %q, want %q", got, token)
		}
		if runtime.GOOS == "windows" {
			return
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Errorf("mode = %o, want 600", perm)
		}
	})

	t.Run("replaces a readable file", func(t *testing.T) {
		t.Parallel()
		if runtime.GOOS == "windows" {
			t.Skip("unix permissions")
		}
		path := filepath.Join(t.TempDir(), "api-token.json")
		if err := os.WriteFile(path, []byte(`{"token":"old"}`), 0o644); err != nil { //nolint:gosec // test file
			t.Fatal(err)
		}
		if err := WriteTokenFile(path, "new"); err != nil {
			t.Fatal(err)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Errorf("mode = %o, want 600", perm)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := ReadTokenFile(filepath.Join(t.TempDir(), "none.json"))
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("ReadTokenFile() = %v, want os.ErrNotExist", err)
		}
	})

	t.Run("empty token", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "api-token.json")
		if err := os.WriteFile(path, []byte(`{}`), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := ReadTokenFile(path); !errors.Is(err, ErrNoToken) {
			t.Errorf("ReadTokenFile() = %v, want ErrNoToken", err)
		}
		if err := WriteTokenFile(path, ""); !errors.Is(err, ErrNoToken) {
			t.Errorf("WriteTokenFile(\"\") = %v, want ErrNoToken", err)
		}
	})
}
