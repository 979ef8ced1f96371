// Package filex holds filesystem helpers for the console.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDataDir creates dir (relative paths are resolved against the
// working directory) with owner-only permissions and returns its absolute
// path. The directory holds the persisted refresh token.
func EnsureDataDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}

	if err := os.MkdirAll(abs, 0o700); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", abs, err)
	}

	fi, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", abs, err)
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("%s is not a directory", abs)
	}
	return abs, nil
}
