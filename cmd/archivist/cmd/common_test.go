package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveProject_FindsGitRootAboveCwd(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	pp, err := resolveProject(nested)
	require.NoError(t, err)

	realRoot, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	realPPRoot, err := filepath.EvalSymlinks(pp.root)
	require.NoError(t, err)
	require.Equal(t, realRoot, realPPRoot)
	require.Equal(t, filepath.Join(pp.root, ".archivist"), pp.dataDir)
}

func TestResolveProject_FallsBackToGivenPath(t *testing.T) {
	dir := t.TempDir()

	pp, err := resolveProject(dir)
	require.NoError(t, err)

	realDir, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	realPPRoot, err := filepath.EvalSymlinks(pp.root)
	require.NoError(t, err)
	require.Equal(t, realDir, realPPRoot)
}

func TestLoadConfig_MissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg := loadConfig(dir)
	require.Equal(t, ".archivist", cfg.DataDir)
	require.Equal(t, "ollama", cfg.Embed.Provider)
}
