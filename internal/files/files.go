// Package files implements small file system helpers: existence checks, cross-process file locks
// and atomic (write to temporary file, then rename) writes.
package files

import (
	"bufio"
	"context"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// DefaultDirCreationPerm is used when creating directories for written files.
const DefaultDirCreationPerm = 0755

// Exists returns whether path exists. Errors other than "not exist" are reported as existing, so
// callers don't overwrite what they can't inspect.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !os.IsNotExist(err)
}

// ExecOnFileLock opens the lockPath file (or creates it if it doesn't exist yet), locks it, and
// executes fn. If lockPath is already locked, it polls every 100 to 200 milliseconds (randomly)
// until it acquires the lock or ctx is done.
//
// The lock file is not removed.
func ExecOnFileLock(ctx context.Context, lockPath string, fn func() error) (err error) {
	fileLock := flock.New(lockPath)
	for {
		locked, err := fileLock.TryLock()
		if err != nil {
			return errors.Wrapf(err, "while trying to lock %q", lockPath)
		}
		if locked {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "waiting for lock %q", lockPath)
		case <-time.After(time.Millisecond * time.Duration(100+rand.IntN(100))):
		}
	}

	// Unlock in a deferred function, so it happens even if fn panics.
	defer func() {
		unlockErr := fileLock.Unlock()
		if unlockErr != nil {
			if err == nil {
				err = errors.Wrapf(unlockErr, "unlocking file %q", lockPath)
			} else {
				klog.Errorf("Error unlocking file %q: %v", lockPath, unlockErr)
			}
		}
	}()
	return fn()
}

// WriteFileAtomic writes filePath with the contents produced by write.
//
// The contents go to a temporary file in the same directory first, which is renamed to filePath
// only once write succeeded. Readers never see a partially written file.
func WriteFileAtomic(filePath string, write func(w io.Writer) error) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, DefaultDirCreationPerm); err != nil {
		return errors.Wrapf(err, "failed to create directory for file %q", filePath)
	}
	tmpFile, err := os.CreateTemp(dir, filepath.Base(filePath)+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "creating temporary file for %q", filePath)
	}
	tmpPath := tmpFile.Name()
	done := false
	defer func() {
		if done {
			return
		}
		// Exiting with an error: close and remove the unfinished temporary file.
		if err := tmpFile.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			klog.Warningf("Failed closing temporary file %q: %v", tmpPath, err)
		}
		if err := os.Remove(tmpPath); err != nil {
			klog.Warningf("Failed removing temporary file %q: %v", tmpPath, err)
		}
	}()

	bw := bufio.NewWriter(tmpFile)
	if err := write(bw); err != nil {
		return errors.WithMessagef(err, "while writing %q", filePath)
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrapf(err, "writing %q", tmpPath)
	}
	if err := tmpFile.Close(); err != nil {
		return errors.Wrapf(err, "failed to close temporary file %q", tmpPath)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		return errors.Wrapf(err, "failed to move %q to %q", tmpPath, filePath)
	}
	done = true
	return nil
}
