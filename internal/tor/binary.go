package tor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// platformDir is the per-OS directory below <root>/tor/ holding the bundled binary.
func platformDir(goos string) string {
	switch goos {
	case "darwin":
		return "mac"
	case "windows":
		return "win"
	default:
		return "linux"
	}
}

func binaryName(goos string) string {
	if goos == "windows" {
		return "tor.exe"
	}
	return "tor"
}

// candidates lists the binary locations in lookup order: the configured
// override, the bundled resources directory, the development vendor
// directory and finally the bare name.
func (s *Supervisor) candidates() []string {
	name := binaryName(s.goos)
	list := make([]string, 0, 4)
	if s.binary != "" {
		list = append(list, s.binary)
	}
	if s.resourcesDir != "" {
		list = append(list, filepath.Join(s.resourcesDir, "tor", platformDir(s.goos), name))
	}
	if s.vendorDir != "" {
		list = append(list, filepath.Join(s.vendorDir, "tor", platformDir(s.goos), name))
	}
	return append(list, name)
}

// isPathCandidate reports whether c names a file rather than a command to
// look up on PATH.
func isPathCandidate(c string) bool {
	return strings.ContainsAny(c, `/\`)
}

// resolveBinary returns the first usable candidate. Path candidates are
// taken only when something exists there; bare names go through PATH.
// isPath is true when the result came from a path candidate, which is what
// decides whether it is validated and gets a library search path.
func (s *Supervisor) resolveBinary() (path string, isPath bool, err error) {
	checked := s.candidates()
	for _, c := range checked {
		if isPathCandidate(c) {
			if _, err := os.Stat(c); err == nil {
				return c, true, nil
			}
			continue
		}
		found, err := s.lookPath(c)
		if err == nil {
			return found, false, nil
		}
	}
	return "", false, fmt.Errorf("%w (checked %s)", ErrBinaryNotFound, strings.Join(checked, ", "))
}

// validateBinary checks that path is a regular file with an execute bit.
// Windows has no execute bit, so only the file type is checked there.
func validateBinary(path, goos string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBinaryNotFound, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: not a regular file (mode %s)", ErrBinaryNotExecutable, info.Mode())
	}
	if goos != "windows" && info.Mode()&0o111 == 0 {
		return fmt.Errorf("%w: mode %s", ErrBinaryNotExecutable, info.Mode())
	}
	return nil
}

// libraryPathVar returns the dynamic loader search variable for goos and
// its list separator.
func libraryPathVar(goos string) (name, sep string) {
	switch goos {
	case "darwin":
		return "DYLD_LIBRARY_PATH", ":"
	case "windows":
		return "PATH", ";"
	default:
		return "LD_LIBRARY_PATH", ":"
	}
}

// libraryPathEnv returns a copy of env with dir prepended to the loader
// search variable, so shared libraries shipped next to the binary resolve.
func libraryPathEnv(goos string, env []string, dir string) []string {
	name, sep := libraryPathVar(goos)
	out := make([]string, 0, len(env)+1)
	found := false
	for _, kv := range env {
		k, v, ok := strings.Cut(kv, "=")
		if ok && !found && envKeyEqual(goos, k, name) {
			found = true
			if v != "" {
				kv = k + "=" + dir + sep + v
			} else {
				kv = k + "=" + dir
			}
		}
		out = append(out, kv)
	}
	if !found {
		out = append(out, name+"="+dir)
	}
	return out
}

func envKeyEqual(goos, a, b string) bool {
	if goos == "windows" {
		return strings.EqualFold(a, b)
	}
	return a == b
}
