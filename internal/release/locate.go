package release

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	// DefaultBinDirName is the conventional binary directory inside a release.
	DefaultBinDirName = "bin"
	// maxSearchDepth bounds how deep Locate descends into a release.
	maxSearchDepth = 8
)

// Locator finds the launch executable inside an unpacked release.
type Locator struct {
	executable string
	binDir     string
	goos       string
}

// NewLocator creates a locator for the given executable base name
// (without ".exe"). goos selects the executable naming; "" means the
// running OS.
func NewLocator(executable, binDir, goos string) *Locator {
	if binDir == "" {
		binDir = DefaultBinDirName
	}
	if goos == "" {
		goos = runtime.GOOS
	}
	return &Locator{executable: executable, binDir: binDir, goos: goos}
}

// ExecutableName is the platform-specific file name Locate looks for.
func (l *Locator) ExecutableName() string {
	if l.goos == "windows" {
		return l.executable + ".exe"
	}
	return l.executable
}

// Locate returns the path of the executable under installRoot.
//
// The bin directory may sit at any depth; the shallowest match wins, ties
// broken by name. The distinct errors ErrBinDirectoryMissing and
// ErrExecutableMissing tell the caller which part was not found.
func (l *Locator) Locate(installRoot string) (string, error) {
	binDir, err := l.findBinDir(installRoot)
	if err != nil {
		return "", err
	}

	exePath := filepath.Join(binDir, l.ExecutableName())
	info, err := os.Stat(exePath)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s not found in %s", ErrExecutableMissing, l.ExecutableName(), binDir)
	}

	// Archives created on Windows carry no unix permission bits.
	if l.goos != "windows" && info.Mode().Perm()&0111 == 0 {
		if err := SetExecutable(exePath); err != nil {
			return "", err
		}
	}

	return exePath, nil
}

// findBinDir searches breadth-first for the bin directory.
func (l *Locator) findBinDir(installRoot string) (string, error) {
	type node struct {
		path  string
		depth int
	}

	queue := []node{{path: installRoot}}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		entries, err := os.ReadDir(current.path)
		if err != nil {
			if current.path == installRoot {
				return "", fmt.Errorf("%w: read install folder: %v", ErrBinDirectoryMissing, err)
			}
			continue
		}

		// os.ReadDir sorts by name, so the first match at a depth is stable.
		for _, e := range entries {
			if e.IsDir() && strings.EqualFold(e.Name(), l.binDir) {
				return filepath.Join(current.path, e.Name()), nil
			}
		}

		if current.depth+1 >= maxSearchDepth {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				queue = append(queue, node{path: filepath.Join(current.path, e.Name()), depth: current.depth + 1})
			}
		}
	}

	return "", fmt.Errorf("%w: no %q directory under %s", ErrBinDirectoryMissing, l.binDir, installRoot)
}
