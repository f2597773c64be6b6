package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// cleanPath keeps name relative to the scope root.
func cleanPath(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || filepath.VolumeName(clean) != "" {
		return "", fmt.Errorf("%w: %q is absolute", ErrOutsideScope, name)
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrOutsideScope, name)
	}
	return clean, nil
}

// confine resolves symlinks along root/rel and fails with ErrOutsideScope
// when the target lands outside realRoot. Components that do not exist yet
// are checked through their deepest existing parent.
func confine(root, realRoot, rel string) error {
	existing := filepath.Join(root, rel)
	var rest []string

	for {
		resolved, err := filepath.EvalSymlinks(existing)
		if err == nil {
			target := filepath.Join(append([]string{resolved}, rest...)...)
			if !within(realRoot, target) {
				return fmt.Errorf("%w: %q resolves to %s", ErrOutsideScope, rel, target)
			}
			return nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}

		// a dangling link would be followed by a later create
		if info, lerr := os.Lstat(existing); lerr == nil && info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("%w: %q is a dangling link", ErrOutsideScope, rel)
		}

		parent := filepath.Dir(existing)
		if parent == existing {
			return nil
		}
		rest = append([]string{filepath.Base(existing)}, rest...)
		existing = parent
	}
}

func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
