package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
)

// Paths locates the settings file and the default data directory.
type Paths struct {
	ConfigFile string
	ConfigDir  string
	DataDir    string
}

// ResolvePaths picks the settings file from flagPath, then
// THRIVE_LAUNCHER_CONFIG, then <UserConfigDir>/thrive-launcher/launcher.lua.
// The data directory comes from THRIVE_LAUNCHER_DATA_DIR or the platform's
// per-user data location.
func ResolvePaths(flagPath string) (Paths, error) {
	var paths Paths

	switch {
	case flagPath != "":
		paths.ConfigFile = flagPath
	case os.Getenv(EnvConfigPath) != "":
		paths.ConfigFile = os.Getenv(EnvConfigPath)
	default:
		dir, err := os.UserConfigDir()
		if err != nil {
			return Paths{}, fmt.Errorf("cannot determine config directory: %w", err)
		}
		paths.ConfigFile = filepath.Join(dir, AppName, FileName)
	}
	paths.ConfigDir = filepath.Dir(paths.ConfigFile)

	if dir := os.Getenv(EnvDataDir); dir != "" {
		paths.DataDir = dir
		return paths, nil
	}

	dir, err := defaultDataDir()
	if err != nil {
		return Paths{}, err
	}
	paths.DataDir = filepath.Join(dir, AppName)
	return paths, nil
}

func defaultDataDir() (string, error) {
	if runtime.GOOS == "windows" {
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			return dir, nil
		}
		return os.UserConfigDir()
	}
	if runtime.GOOS == "darwin" {
		return os.UserConfigDir()
	}

	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" && filepath.IsAbs(dir) {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share"), nil
}

// Load reads the settings file named by paths on top of Defaults.
// A missing file yields the defaults. THRIVE_LAUNCHER_DATA_DIR, when set,
// wins over data_dir from the file.
func (p *Parser) Load(ctx context.Context, paths Paths) (*Settings, error) {
	base := Defaults(paths.ConfigDir, paths.DataDir)

	settings, err := p.ParseFile(ctx, paths.ConfigFile, base)
	if errors.Is(err, fs.ErrNotExist) {
		p.logger.Debug("no config file, using defaults", "path", paths.ConfigFile)
		settings = &base
		err = settings.Validate()
	}
	if err != nil {
		return nil, err
	}

	if dir := os.Getenv(EnvDataDir); dir != "" {
		settings.DataDir = dir
	}
	return settings, nil
}
