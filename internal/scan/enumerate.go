package scan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultExtensions are the image types searched when walking a directory.
var DefaultExtensions = []string{".dll", ".exe", ".sys"}

// EnumerateOptions controls which files Enumerate returns.
type EnumerateOptions struct {
	// Extensions are matched case-insensitively, with or without a leading dot.
	// Empty means DefaultExtensions.
	Extensions []string
	// Exclude holds doublestar patterns matched against the slash-separated
	// path relative to the root, for example "**/WinSxS/**".
	Exclude []string
}

// Validate checks that every exclude pattern is well formed.
func (o EnumerateOptions) Validate() error {
	for _, p := range o.Exclude {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("排除模式无效: %q", p)
		}
	}
	return nil
}

// Enumerate walks root recursively and returns the sorted paths of all
// regular files, or symlinks to regular files, with a matching extension.
// Entries that cannot be read are skipped silently.
func Enumerate(root string, opts EnumerateOptions) ([]string, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	exts := normalizeExtensions(opts.Extensions)

	seen := make(map[string]struct{})
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Inaccessible entry; keep walking the rest of the tree.
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}

		if path != root && excluded(root, path, opts.Exclude) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !isRegularFile(path, d) {
			return nil
		}
		if _, ok := exts[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}
		seen[path] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("遍历目录失败: %w", err)
	}

	files := make([]string, 0, len(seen))
	for path := range seen {
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}

// isRegularFile reports whether the entry is a regular file or a symlink to
// one. Links to directories are not followed.
func isRegularFile(path string, d fs.DirEntry) bool {
	if d.Type()&fs.ModeSymlink == 0 {
		return d.Type().IsRegular()
	}
	fi, err := os.Stat(path)
	if err != nil {
		// Dangling or inaccessible link.
		return false
	}
	return fi.Mode().IsRegular()
}

func normalizeExtensions(extensions []string) map[string]struct{} {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}

	exts := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = struct{}{}
	}
	return exts
}

func excluded(root, path string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)

	for _, p := range patterns {
		// Patterns were validated up front.
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}
