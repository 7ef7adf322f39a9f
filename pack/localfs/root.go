package localfs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrPathOutsideRoot is returned for any path that escapes the root.
	ErrPathOutsideRoot = errors.New("path outside root")

	// ErrDeleteRoot is returned when a delete targets the root itself.
	ErrDeleteRoot = errors.New("refusing to delete the root directory")
)

// Root confines path arguments to one directory tree.
type Root struct {
	dir     string
	real    string
	outside error
}

// NewRoot creates a resolver for dir. A leading "~" is the user's home.
// Paths escaping the tree are rejected with outside, or ErrPathOutsideRoot
// when outside is nil.
func NewRoot(dir string, outside error) (*Root, error) {
	if outside == nil {
		outside = ErrPathOutsideRoot
	}
	dir, err := expandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid root directory: %w", err)
	}
	real := abs
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		real = resolved
	}
	return &Root{dir: abs, real: real, outside: outside}, nil
}

func expandHome(dir string) (string, error) {
	if dir == "" || dir == "~" || strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if dir == "" || dir == "~" {
			return home, nil
		}
		return filepath.Join(home, dir[2:]), nil
	}
	return dir, nil
}

// Dir returns the absolute root directory.
func (r *Root) Dir() string {
	return r.dir
}

// Resolve maps a path argument to an absolute path inside the root.
// "~" names the root itself and relative paths are taken from the root.
func (r *Root) Resolve(p string) (string, error) {
	p = strings.TrimSpace(p)
	switch {
	case p == "" || p == "~":
		return r.dir, nil
	case strings.HasPrefix(p, "~/"):
		p = filepath.Join(r.dir, p[2:])
	case !filepath.IsAbs(p):
		p = filepath.Join(r.dir, p)
	}
	p = filepath.Clean(p)

	if !within(r.dir, p) {
		return "", fmt.Errorf("%w: %s", r.outside, p)
	}
	if real, ok := realPath(p); !ok || !within(r.real, real) {
		return "", fmt.Errorf("%w: %s", r.outside, p)
	}
	return p, nil
}

// realPath resolves symlinks in p. For a path that does not exist yet the
// nearest existing ancestor is resolved and the missing tail re-appended.
// A dangling symlink cannot be resolved and reports false.
func realPath(p string) (string, bool) {
	var tail []string
	for {
		if real, err := filepath.EvalSymlinks(p); err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				real = filepath.Join(real, tail[i])
			}
			return real, true
		}
		if _, err := os.Lstat(p); err == nil {
			return "", false
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p, true
		}
		tail = append(tail, filepath.Base(p))
		p = parent
	}
}

// Rel returns p relative to the root, or p unchanged if it is outside.
func (r *Root) Rel(p string) string {
	rel, err := filepath.Rel(r.dir, p)
	if err != nil {
		return p
	}
	return rel
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
