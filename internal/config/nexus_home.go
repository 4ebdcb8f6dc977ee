package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetNexusHome returns the directory Nexus stores its working state in
// (checkpoints, logs): an explicit environment override first, then the
// repository root (detected by walking up for go.mod), then cwd as a
// last resort. The directory is created if it doesn't exist.
func GetNexusHome() (string, error) {
	if home := os.Getenv("NEXUS_HOME"); home != "" {
		return ensureDir(home)
	}

	if root, err := findModuleRoot(); err == nil && root != "" {
		return ensureDir(filepath.Join(root, ".nexus"))
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("config: get working directory: %w", err)
	}
	return ensureDir(filepath.Join(cwd, ".nexus"))
}

func ensureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("config: create %s: %w", dir, err)
	}
	return dir, nil
}

// findModuleRoot walks up from the working directory looking for go.mod.
func findModuleRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("config: go.mod not found above %s", dir)
		}
		dir = parent
	}
}
