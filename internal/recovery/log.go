package recovery

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// Log appends a timestamped line to the recovery log at path, guarded by an
// exclusive advisory lock on a sibling .lock file so concurrent agents never
// interleave partial writes — the same os.O_APPEND-under-flock shape
// internal/store/flock.go uses to serialize migrations.
func Log(path, message string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	lockPath := path + ".lock"
	lf, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644) //nolint:gosec // G304: lockPath derived from trusted caller-configured path
	if err != nil {
		return fmt.Errorf("open recovery log lock %s: %w", lockPath, err)
	}
	defer func() {
		_ = syscall.Flock(int(lf.Fd()), syscall.LOCK_UN)
		_ = lf.Close()
	}()
	if err := syscall.Flock(int(lf.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("lock recovery log %s: %w", lockPath, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec // G304: path is the caller's own configured log path
	if err != nil {
		return fmt.Errorf("open recovery log %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	line := fmt.Sprintf("[%s] %s\n", time.Now().UTC().Format(time.RFC3339), message)
	_, err = f.WriteString(line)
	return err
}
