// SPDX-License-Identifier: MPL-2.0

package imagebuild

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// defaultIgnores are never copied into the build context.
var defaultIgnores = []string{
	".git/**",
	"**/__pycache__/**",
	"**/*.pyc",
	".venv/**",
	"**/.DS_Store",
}

// HashFile returns the hex sha256 of a file's contents.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }() // Read-only file; close error non-critical

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// matcher reports whether a slash-separated relative path is excluded.
type matcher struct {
	patterns []string
}

func newMatcher(extra []string) (*matcher, error) {
	patterns := make([]string, 0, len(defaultIgnores)+len(extra))
	patterns = append(patterns, defaultIgnores...)
	for _, p := range extra {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid ignore pattern %q", p)
		}
		patterns = append(patterns, p)
	}
	return &matcher{patterns: patterns}, nil
}

func (m *matcher) ignored(rel string, isDir bool) bool {
	for _, pat := range m.patterns {
		if ok, _ := doublestar.Match(pat, rel); ok {
			return true
		}
		// A directory is skipped when everything below it is.
		if isDir {
			if ok, _ := doublestar.Match(pat, rel+"/"); ok {
				return true
			}
		}
	}
	return false
}

// listTree returns the slash-separated relative paths of every regular file
// or symlink under root that is not ignored, in lexical order.
func listTree(root string, m *matcher) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if m.ignored(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk source tree: %w", err)
	}
	return files, nil
}

// hashTree hashes the listed files by path, permission bits and content, so
// the result changes exactly when the copied layer would.
func hashTree(root string, files []string) (string, error) {
	h := sha256.New()
	for _, rel := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		info, err := os.Lstat(path)
		if err != nil {
			return "", err
		}

		var content string
		if info.Mode()&fs.ModeSymlink != 0 {
			target, err := os.Readlink(path)
			if err != nil {
				return "", err
			}
			content = "link:" + target
		} else {
			content, err = HashFile(path)
			if err != nil {
				return "", err
			}
		}
		fmt.Fprintf(h, "%s\x00%o\x00%s\n", rel, info.Mode().Perm(), content)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// copyTree copies the listed files from src to dst, preserving modes and
// symlinks.
func copyTree(src, dst string, files []string) error {
	for _, rel := range files {
		from := filepath.Join(src, filepath.FromSlash(rel))
		to := filepath.Join(dst, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", rel, err)
		}

		info, err := os.Lstat(from)
		if err != nil {
			return err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			target, err := os.Readlink(from)
			if err != nil {
				return err
			}
			if err := os.Symlink(target, to); err != nil {
				return fmt.Errorf("failed to copy symlink %s: %w", rel, err)
			}
			continue
		}
		if err := copyFile(from, to, info.Mode().Perm()); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string, perm fs.FileMode) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer func() { _ = in.Close() }() // Read-only file; close error non-critical

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close destination file: %w", closeErr)
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy file contents: %w", err)
	}
	return nil
}
