// Package filelock provides OS-level advisory file locking used both by
// the store (to enforce its single-writer policy) and by the pipeline
// (the update.lock process mutex).
//
// Grounded on jpl-au-folio's lock_unix.go: that repo reaches for
// syscall.Flock directly rather than a third-party flock library, which
// is the idiomatic choice here too — flock(2) is a single syscall with
// no useful abstraction to buy from a dependency.
package filelock

import (
	"os"

	"github.com/pkg/errors"
)

// Lock is a non-reentrant advisory lock backed by a file.
type Lock struct {
	path string
	file *os.File
}

// New returns a Lock for the given path. The file is created on first
// TryLock/Lock if it doesn't exist yet.
func New(path string) *Lock {
	return &Lock{path: path}
}

// TryLock acquires an exclusive, non-blocking lock. It returns
// (false, nil) if another process already holds it.
func (l *Lock) TryLock() (bool, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		return false, errors.Wrapf(err, "unable to open lock file %s", l.path)
	}

	ok, err := tryFlock(f)
	if err != nil {
		f.Close()
		return false, errors.Wrapf(err, "unable to flock %s", l.path)
	}
	if !ok {
		f.Close()
		return false, nil
	}

	l.file = f
	return true, nil
}

// Unlock releases the lock and closes the underlying file handle.
func (l *Lock) Unlock() error {
	if l.file == nil {
		return nil
	}
	err := unlockFlock(l.file)
	closeErr := l.file.Close()
	l.file = nil
	if err != nil {
		return err
	}
	return closeErr
}
