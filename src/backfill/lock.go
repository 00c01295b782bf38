package backfill

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"stock-cache/src/logger"

	"github.com/gofrs/flock"
)

// ErrPeerFetchFailed is returned to a caller that waited for another holder of
// the same resource lock when that holder did not finish successfully.
var ErrPeerFetchFailed = errors.New("backfill: concurrent fetch of the same resource did not complete")

// FetchLock serializes fetches of one resource across processes with a lock
// file named after the resource's hash. A ".done" sentinel next to the lock
// file records that the last holder succeeded.
type FetchLock struct {
	Dir          string
	PollInterval time.Duration
	Logger       *logger.Logger
}

func NewFetchLock(dir string, pollInterval time.Duration, log *logger.Logger) *FetchLock {
	if dir == "" {
		dir = os.TempDir()
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &FetchLock{Dir: dir, PollInterval: pollInterval, Logger: log}
}

// -----------------------------------------------------------------------------

// Path returns the lock file used for resource.
func (l *FetchLock) Path(resource string) string {
	sum := sha256.Sum256([]byte(resource))
	return filepath.Join(l.Dir, "stock-cache-"+hex.EncodeToString(sum[:])+".lock")
}

// -----------------------------------------------------------------------------

// Do runs fn while holding the lock for resource. If another holder is active,
// Do waits until it releases the lock and returns without running fn: nil when
// the holder succeeded, ErrPeerFetchFailed otherwise.
func (l *FetchLock) Do(ctx context.Context, resource string, fn func(ctx context.Context) error) error {
	path := l.Path(resource)
	donePath := path + ".done"
	fl := flock.New(path)

	locked, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("acquire %s: %w", path, err)
	}

	if locked {
		defer fl.Unlock()
		if err := os.Remove(donePath); err != nil && !os.IsNotExist(err) {
			l.Logger.Warning("Could not clear %s: %v", donePath, err)
		}

		if err := fn(ctx); err != nil {
			return err
		}

		stamp := []byte(time.Now().UTC().Format(time.RFC3339))
		if err := os.WriteFile(donePath, stamp, 0644); err != nil {
			l.Logger.Warning("Could not record completion in %s: %v", donePath, err)
		}
		return nil
	}

	l.Logger.Info("Resource is being fetched by another worker, waiting on %s", path)
	locked, err = fl.TryLockContext(ctx, l.PollInterval)
	if err != nil {
		return fmt.Errorf("wait for %s: %w", path, err)
	}
	if !locked {
		return fmt.Errorf("wait for %s: lock not acquired", path)
	}
	fl.Unlock()

	if _, err := os.Stat(donePath); err != nil {
		return ErrPeerFetchFailed
	}
	return nil
}
