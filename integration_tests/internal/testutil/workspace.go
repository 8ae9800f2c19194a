package testutil

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// SetupTestWorkspace copies the project at scenarioPath into a unique
// directory under tmp_integration_tests/ and returns its path. The directory
// is removed when the test ends unless PRESERVE_WORKSPACE is true.
func SetupTestWorkspace(t *testing.T, scenarioPath string) string {
	t.Helper()

	root, err := filepath.Abs(filepath.Join("..", "tmp_integration_tests"))
	require.NoError(t, err, "failed to get workspace root path")

	randomBytes := make([]byte, 4)
	_, err = rand.Read(randomBytes)
	require.NoError(t, err, "failed to generate random bytes")

	testName := strings.ReplaceAll(t.Name(), "/", "_")
	workspaceDir := filepath.Join(root, fmt.Sprintf("%s-%s", testName, hex.EncodeToString(randomBytes)))
	require.NoError(t, os.MkdirAll(workspaceDir, 0o755), "failed to create test workspace directory")

	require.NoError(t, copyProject(scenarioPath, workspaceDir), "failed to copy project to workspace")

	t.Cleanup(func() {
		if os.Getenv("PRESERVE_WORKSPACE") == "true" {
			t.Logf("PRESERVE_WORKSPACE is set to true, workspace kept in %s", workspaceDir)
			return
		}
		if err := os.RemoveAll(workspaceDir); err != nil {
			t.Logf("Warning: failed to clean up workspace directory %s: %v", workspaceDir, err)
		}
	})

	return workspaceDir
}

// copyProject copies project.toml and the modules directory. Build files,
// outputs and databases of the source project are left behind.
func copyProject(src, dst string) error {
	if err := copyFile(filepath.Join(src, "project.toml"), filepath.Join(dst, "project.toml")); err != nil {
		return err
	}

	modules := filepath.Join(src, "modules")
	return filepath.WalkDir(modules, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if strings.HasSuffix(path, "_test.go") {
			return nil
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
