// Package pathutil confines file references found in scenario files to
// the directory they were loaded from.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RedactPath reduces a path to .../<parent>/<basename> for error messages.
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	parent := filepath.Base(filepath.Dir(cleaned))
	base := filepath.Base(cleaned)
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return ".../" + parent + "/" + base
}

// Within checks that path lies inside dir once both are made absolute and
// symlinks are resolved. The file need not exist yet.
func Within(path, dir string) error {
	switch {
	case path == "":
		return fmt.Errorf("path is empty")
	case dir == "":
		return fmt.Errorf("no base directory to check %s against", RedactPath(path))
	case strings.ContainsRune(path, '\x00'):
		return fmt.Errorf("path contains null byte")
	}

	resolved, err := resolve(path)
	if err != nil {
		return err
	}
	base, err := resolve(dir)
	if err != nil {
		return err
	}

	if !isSubpath(resolved, base) {
		return fmt.Errorf("%s is outside %s", RedactPath(path), RedactPath(dir))
	}
	return nil
}

// resolve makes path absolute and resolves symlinks on its deepest
// existing ancestor, re-appending the missing tail.
func resolve(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("cannot resolve %s: %w", RedactPath(path), err)
	}

	existing, tail := abs, ""
	for {
		if r, err := filepath.EvalSymlinks(existing); err == nil {
			return filepath.Join(r, tail), nil
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return "", fmt.Errorf("cannot resolve %s", RedactPath(path))
		}
		tail = filepath.Join(filepath.Base(existing), tail)
		existing = parent
	}
}

// isSubpath reports whether path equals base or lies below it.
func isSubpath(path, base string) bool {
	if path == base {
		return true
	}
	// "/tmp/foo" must not match "/tmp/foobar"
	return strings.HasPrefix(path, strings.TrimSuffix(base, string(os.PathSeparator))+string(os.PathSeparator))
}
