package testutil

import (
	"os"
	"path/filepath"
)

// BinaryEnv names a prebuilt quickstart binary to test instead of building one.
const BinaryEnv = "TASKGRAPH_BINARY"

// GetBinaryPath returns the path to the quickstart binary for integration tests.
// It checks these locations in order of preference:
// 1. $TASKGRAPH_BINARY
// 2. Current directory (./quickstart)
// 3. bin directory (../bin/quickstart)
// It returns "" when none exists.
func GetBinaryPath() string {
	if p := os.Getenv(BinaryEnv); p != "" {
		return p
	}

	if _, err := os.Stat("quickstart"); err == nil {
		return "./quickstart"
	}

	binPath := filepath.Join("..", "bin", "quickstart")
	if _, err := os.Stat(binPath); err == nil {
		return binPath
	}

	return ""
}
