package bridge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExcludedMatchesFileOrAncestor(t *testing.T) {
	root := "/home/alice/job"
	ignore := resolveAbsSet(t, root, []string{"a", "x/y"})

	require.True(t, excluded(root, "a", ignore))
	require.True(t, excluded(root, "a/b", ignore))
	require.True(t, excluded(root, "a/b/c", ignore))
	require.True(t, excluded(root, "x/y", ignore))
	require.True(t, excluded(root, "x/y/z", ignore))
	require.False(t, excluded(root, "x", ignore))
	require.False(t, excluded(root, "other", ignore))
}

func resolveAbsSet(t *testing.T, root string, rels []string) map[string]struct{} {
	t.Helper()
	abs := make([]string, len(rels))
	for i, r := range rels {
		abs[i] = filepath.Join(root, r)
	}
	return resolveIgnoreSet(abs)
}

func TestBuildStagingTreeSkipsIgnoredPaths(t *testing.T) {
	upload := t.TempDir()
	staging := filepath.Join(t.TempDir(), "staging")

	require.NoError(t, os.MkdirAll(filepath.Join(upload, "keep"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(upload, "skip", "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(upload, "keep", "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(upload, "skip", "b.txt"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(upload, "skip", "nested", "c.txt"), []byte("c"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(upload, "top.txt"), []byte("top"), 0o644))

	ignore := []string{filepath.Join(upload, "skip")}
	require.NoError(t, buildStagingTree(upload, staging, ignore))

	require.FileExists(t, filepath.Join(staging, "keep", "a.txt"))
	require.FileExists(t, filepath.Join(staging, "top.txt"))
	require.NoDirExists(t, filepath.Join(staging, "skip"))
}

func TestBuildStagingTreeRebuildsFromScratch(t *testing.T) {
	upload := t.TempDir()
	staging := filepath.Join(t.TempDir(), "staging")

	require.NoError(t, os.WriteFile(filepath.Join(upload, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, buildStagingTree(upload, staging, nil))
	require.NoError(t, os.WriteFile(filepath.Join(staging, "stale.txt"), []byte("stale"), 0o644))

	require.NoError(t, buildStagingTree(upload, staging, nil))
	require.NoFileExists(t, filepath.Join(staging, "stale.txt"))
	require.FileExists(t, filepath.Join(staging, "a.txt"))
}
