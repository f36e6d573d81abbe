// Package jsonfile reads and atomically replaces small JSON state files.
package jsonfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrMalformed is returned by Load when the file exists but is not valid
// JSON for the target value.
var ErrMalformed = errors.New("malformed state file")

// Load decodes the file at path into v. A missing file leaves v untouched
// and reports os.ErrNotExist.
func Load(path string, v any) error {
	data, err := os.ReadFile(path) //nolint:gosec // state file path is built by the caller
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("reading %s: %w", path, os.ErrNotExist)
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMalformed, path, err)
	}
	return nil
}

// Save writes v to path through a temporary file in the same directory and
// a rename, so readers see either the old or the new content. The file is
// synced before the rename.
func Save(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	tmpName = ""
	return nil
}
