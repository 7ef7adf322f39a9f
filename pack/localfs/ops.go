package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultSearchLimit caps the number of search hits.
const DefaultSearchLimit = 100

// errStopWalk ends a directory walk early.
var errStopWalk = errors.New("stop walk")

// ListDir returns the sorted entry names of dir. A missing directory lists
// as empty.
func ListDir(dir string, filesOnly bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if filesOnly && !e.Type().IsRegular() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Search walks base and returns the paths of files whose name contains
// query, interpreted as a glob. At most limit paths are returned.
func Search(ctx context.Context, base, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	pattern := "*" + query + "*"
	if _, err := filepath.Match(pattern, ""); err != nil {
		pattern = ""
	}

	hits := make([]string, 0)
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped.
			if d != nil && d.IsDir() && path != base {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		if matchName(pattern, query, d.Name()) {
			hits = append(hits, path)
			if len(hits) >= limit {
				return errStopWalk
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopWalk) {
		return nil, err
	}
	return hits, nil
}

func matchName(pattern, query, name string) bool {
	if pattern == "" {
		return strings.Contains(name, query)
	}
	ok, _ := filepath.Match(pattern, name)
	return ok
}

// CopyFile copies src to dest, keeping mode and modification time. When dest
// is an existing directory the file is copied into it. It returns the path
// written.
func CopyFile(src, dest string) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("cannot copy directory %s", src)
	}
	if di, err := os.Stat(dest); err == nil && di.IsDir() {
		dest = filepath.Join(dest, filepath.Base(src))
	}

	in, err := os.Open(src) // #nosec G304 -- path confined by caller
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm()) // #nosec G304 -- path confined by caller
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	_ = os.Chtimes(dest, info.ModTime(), info.ModTime())
	return dest, nil
}

// MoveFile moves src to dest, into dest when it is a directory. Moves across
// filesystems fall back to copy and remove.
func MoveFile(src, dest string) (string, error) {
	if di, err := os.Stat(dest); err == nil && di.IsDir() {
		dest = filepath.Join(dest, filepath.Base(src))
	}
	if err := os.Rename(src, dest); err == nil {
		return dest, nil
	} else if !isCrossDevice(err) {
		return "", err
	}
	written, err := CopyFile(src, dest)
	if err != nil {
		return "", err
	}
	if err := os.Remove(src); err != nil {
		return "", err
	}
	return written, nil
}

func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	return errors.As(err, &linkErr) && strings.Contains(linkErr.Err.Error(), "cross-device")
}
