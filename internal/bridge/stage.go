// Package bridge implements the remote submission path: staging a user's
// upload root to the remote cluster via rsync over SSH, and forwarding
// submit/status/cancel/logs/fetch calls to the Remote Server over HTTP.
package bridge

import (
	"io"
	"os"
	"path/filepath"
	"strings"
)

// excluded reports whether rel (a path relative to the upload root) must be
// skipped during staging: it is excluded iff any of its ancestors —
// including itself — resolves to a member of ignore. ignore holds resolved
// absolute paths; root is the upload root rel is relative to.
func excluded(root, rel string, ignore map[string]struct{}) bool {
	if len(ignore) == 0 {
		return false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	acc := root
	for _, part := range parts {
		acc = filepath.Join(acc, part)
		if _, ok := ignore[acc]; ok {
			return true
		}
	}
	return false
}

// resolveIgnoreSet resolves each entry of ignore to an absolute, cleaned
// path so later membership checks are exact-match.
func resolveIgnoreSet(ignore []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ignore))
	for _, p := range ignore {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = filepath.Clean(p)
		}
		set[abs] = struct{}{}
	}
	return set
}

// buildStagingTree rebuilds stagingDir from scratch as a filtered copy of
// uploadRoot, skipping anything excluded by ignore. The staging directory is
// cleared and rebuilt on every submit; idempotence comes from rsync, not
// from incremental diffing here.
func buildStagingTree(uploadRoot, stagingDir string, ignore []string) error {
	if err := os.RemoveAll(stagingDir); err != nil {
		return err
	}
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return err
	}

	ignoreSet := resolveIgnoreSet(ignore)

	return filepath.Walk(uploadRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(uploadRoot, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if excluded(uploadRoot, rel, ignoreSet) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		dest := filepath.Join(stagingDir, rel)
		if info.IsDir() {
			return os.MkdirAll(dest, info.Mode().Perm())
		}
		return copyFile(path, dest, info.Mode().Perm())
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
