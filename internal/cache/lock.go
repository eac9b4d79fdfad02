package cache

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// StaleThreshold is the age after which a lock or temp file left behind by
// an interrupted run is considered abandoned.
const StaleThreshold = 10 * time.Minute

// ErrLocked is returned when another rv process is fetching the same key.
var ErrLocked = errors.New("cache entry is locked: another download may be in progress (`rv cache clean` removes stale locks)")

// lock is an advisory per-key lock file.
type lock struct {
	path string
	file *os.File
}

// acquireLock creates path exclusively. A stale lock is taken over once; a
// live one fails with ErrLocked.
func acquireLock(path string) (*lock, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}
		if !isStaleLock(path) {
			return nil, ErrLocked
		}
		os.Remove(path)
		file, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
		if err != nil {
			return nil, ErrLocked
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

	return &lock{path: path, file: file}, nil
}

// Release removes the lock file.
func (l *lock) Release() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}

// isStale reports whether path is older than StaleThreshold.
func isStale(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) > StaleThreshold
}

// isStaleLock reports whether the lock at path is abandoned: it is older
// than StaleThreshold or the process that wrote it is gone.
func isStaleLock(path string) bool {
	if isStale(path) {
		return true
	}
	pid, ok := lockOwner(path)
	if !ok {
		return false
	}
	// A failed liveness check counts as alive.
	alive, err := process.PidExists(pid)
	return err == nil && !alive
}

// lockOwner reads the pid= line of a lock file.
func lockOwner(path string) (int32, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		value, found := strings.CutPrefix(scanner.Text(), "pid=")
		if !found {
			continue
		}
		pid, err := strconv.ParseInt(strings.TrimSpace(value), 10, 32)
		if err != nil || pid <= 0 {
			return 0, false
		}
		return int32(pid), true
	}
	return 0, false
}
