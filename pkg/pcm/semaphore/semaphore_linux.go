// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

//go:build linux

// Package semaphore provides the host-wide counting semaphore that
// tracks PMU clients across processes, per spec §5. Neither the Go
// standard library nor golang.org/x/sys/unix wraps POSIX sem_open, so
// this is implemented over an flock'd file under /dev/shm — the same
// surface PCM's own macOS fallback uses when sem_getvalue is
// unavailable, generalized here to the single backing primitive that
// works uniformly across Linux, *BSD, and Darwin.
package semaphore

import (
	"os"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/antimetal/pcm/pkg/pcmerrors"
)

const defaultPath = "/dev/shm/pcm.lock"

// Exclusion is the host-wide PMU exclusion semaphore. Program increments
// it; Cleanup decrements it. By default only one holder is permitted at
// a time; AllowMultipleInstances opts into shared holding.
type Exclusion struct {
	path string
	file *os.File
}

// New opens (creating if necessary) the backing lock file at path, or
// defaultPath if path is empty.
func New(path string) *Exclusion {
	if path == "" {
		path = defaultPath
	}
	return &Exclusion{path: path}
}

// Acquire takes the exclusion lock. If allowMultiple is false and the
// lock is already held by another process, Acquire returns a Busy
// error immediately rather than blocking, matching spec §4.4's
// "PMUBusy is returned when the exclusion semaphore is held by another
// process" contract.
func (e *Exclusion) Acquire(allowMultiple bool) error {
	f, err := os.OpenFile(e.path, os.O_CREATE|os.O_RDWR, 0o666)
	if err != nil {
		return pcmerrors.Wrap(pcmerrors.AccessDenied, "semaphore.Acquire", err)
	}

	how := unix.LOCK_EX | unix.LOCK_NB
	if allowMultiple {
		how = unix.LOCK_SH | unix.LOCK_NB
	}
	if err := unix.Flock(int(f.Fd()), how); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return pcmerrors.NewKind(pcmerrors.Busy, "semaphore.Acquire", "pmu held by another process")
		}
		return pcmerrors.Wrap(pcmerrors.AccessDenied, "semaphore.Acquire", err)
	}

	// Record the holder pid for diagnostics; best-effort.
	_ = f.Truncate(0)
	_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0)

	e.file = f
	return nil
}

// Release is idempotent: calling it twice leaves the semaphore count
// unchanged after the first call, per spec §8.
func (e *Exclusion) Release() error {
	if e.file == nil {
		return nil
	}
	err := unix.Flock(int(e.file.Fd()), unix.LOCK_UN)
	closeErr := e.file.Close()
	e.file = nil
	if err != nil {
		return err
	}
	return closeErr
}

// Held reports whether this handle currently holds the lock. Used by
// signal-safe cleanup paths to decide whether Release has anything to
// do without touching any allocating code.
func (e *Exclusion) Held() bool {
	return e.file != nil
}
