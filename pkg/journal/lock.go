package journal

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	lockRetry      = 10 * time.Millisecond
	lockStaleAfter = 2 * time.Minute
)

// ErrLockTimeout is returned when the journal lock cannot be acquired
// within the configured timeout.
var ErrLockTimeout = errors.New("timed out acquiring journal lock")

// Lock is an exclusive cross-process lock guarding the journal's
// load -> compute -> save sequence. It is a create-exclusive lock file
// next to the journal; a lock older than lockStaleAfter is treated as
// abandoned by a killed run and taken over.
type Lock struct {
	path string
}

// AcquireLock takes the exclusive lock for the journal at journalPath,
// retrying until timeout. The caller must release it on every exit
// path.
func AcquireLock(journalPath string, timeout time.Duration) (*Lock, error) {
	lockPath := journalPath + ".lock"
	deadline := time.Now().Add(timeout)

	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
			if cerr := f.Close(); cerr != nil {
				_ = os.Remove(lockPath)
				return nil, fmt.Errorf("write journal lock: %w", cerr)
			}
			return &Lock{path: lockPath}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create journal lock: %w", err)
		}

		if info, serr := os.Stat(lockPath); serr == nil {
			if time.Since(info.ModTime()) > lockStaleAfter {
				// Holder died without releasing. Takeover goes through
				// rename so only one waiter can reclaim it; the loser's
				// rename fails, and neither ever removes a lock another
				// waiter has just re-created at lockPath.
				stale := fmt.Sprintf("%s.stale.%d", lockPath, os.Getpid())
				if os.Rename(lockPath, stale) == nil {
					_ = os.Remove(stale)
				}
				continue
			}
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, lockPath)
		}
		time.Sleep(lockRetry)
	}
}

// Release removes the lock file. Safe to call once per acquisition.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("release journal lock: %w", err)
	}
	return nil
}
