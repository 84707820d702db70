// Package testutil provides utilities for testing the launcher in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Env describes the isolated directories created by SetupTestEnv.
type Env struct {
	Root       string
	ConfigDir  string
	ConfigFile string
	DataDir    string
	HomeDir    string
}

// SetupTestEnv points the launcher's config file, data directory and the
// user's home at a fresh temp directory so tests never touch a real
// install. t.TempDir and t.Setenv undo everything when the test ends.
func SetupTestEnv(t *testing.T) Env {
	t.Helper()

	tmpDir := t.TempDir()
	env := Env{
		Root:      tmpDir,
		ConfigDir: filepath.Join(tmpDir, "config"),
		DataDir:   filepath.Join(tmpDir, "data"),
		HomeDir:   filepath.Join(tmpDir, "home"),
	}
	env.ConfigFile = filepath.Join(env.ConfigDir, "launcher.lua")

	t.Setenv("THRIVE_LAUNCHER_CONFIG", env.ConfigFile)
	t.Setenv("THRIVE_LAUNCHER_DATA_DIR", env.DataDir)
	t.Setenv("HOME", env.HomeDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(env.HomeDir, ".config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(env.HomeDir, ".local", "share"))

	for _, dir := range []string{env.ConfigDir, env.DataDir, env.HomeDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}

	return env
}

// WriteConfig writes a launcher.lua into the test environment.
func (e Env) WriteConfig(t *testing.T, luaCode string) {
	t.Helper()
	if err := os.WriteFile(e.ConfigFile, []byte(luaCode), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
}
