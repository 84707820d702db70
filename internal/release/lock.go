package release

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// StaleLockThreshold is the maximum age of an install lock before it's
// considered stale even when its owner still appears to be running.
const StaleLockThreshold = 30 * time.Minute

// ErrInstallLocked is returned when another launcher process is installing
// the same release.
var ErrInstallLocked = fmt.Errorf("%w: another launcher is installing this release", ErrDownloadInProgress)

// installLock is an exclusive, cross-process lock on one cache folder.
type installLock struct {
	path string
	file *os.File
}

func lockPath(root, folderName string) string {
	return filepath.Join(root, "."+folderName+".lock")
}

// acquireInstallLock creates the lock file with O_EXCL. A lock left behind by
// a dead process or older than StaleLockThreshold is taken over once.
func acquireInstallLock(root, folderName string) (*installLock, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	path := lockPath(root, folderName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}
		if !lockIsStale(path) {
			return nil, ErrInstallLocked
		}
		os.Remove(path)
		file, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
		if err != nil {
			return nil, ErrInstallLocked
		}
	}

	data := fmt.Sprintf("pid=%d\ntimestamp=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if _, err := file.WriteString(data); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write lock data: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("sync lock file: %w", err)
	}

	return &installLock{path: path, file: file}, nil
}

// Release removes the lock file.
func (l *installLock) Release() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	if l.path != "" {
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove lock file: %w", err)
		}
	}
	return nil
}

func lockIsStale(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if time.Since(info.ModTime()) > StaleLockThreshold {
		return true
	}

	pid, err := lockOwner(path)
	if err != nil {
		// Unreadable or half-written metadata; only age can expire it.
		return false
	}
	alive, err := process.PidExists(int32(pid))
	if err != nil {
		return false
	}
	return !alive
}

func lockOwner(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if ok && key == "pid" {
			return strconv.Atoi(value)
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, errors.New("lock file has no pid")
}
