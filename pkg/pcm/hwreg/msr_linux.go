// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

//go:build linux

package hwreg

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sys/unix"

	"github.com/antimetal/pcm/pkg/pcmerrors"
)

// MSR is a per-OS-CPU handle to /dev/cpu/N/msr. Reads and writes are
// pinned to the target CPU via scoped thread-affinity; the pinning is
// released on every exit path, including error returns.
type MSR struct {
	cpu     int
	address uint32

	mu   sync.Mutex
	file *os.File
}

// NewMSR opens /dev/cpu/<cpu>/msr read-write. The caller owns the
// returned handle and must Close it.
func NewMSR(cpu int, address uint32) (*MSR, error) {
	f, err := os.OpenFile(fmt.Sprintf("/dev/cpu/%d/msr", cpu), os.O_RDWR, 0)
	if err != nil {
		if os.IsPermission(err) {
			return nil, pcmerrors.Wrap(pcmerrors.AccessDenied, "hwreg.NewMSR", err)
		}
		return nil, pcmerrors.Wrap(pcmerrors.HardwareAbsent, "hwreg.NewMSR", err)
	}
	return &MSR{cpu: cpu, address: address, file: f}, nil
}

func (m *MSR) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	return err
}

func (m *MSR) Read(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	unpin, err := pinCurrentThread(m.cpu)
	if err != nil {
		return 0, pcmerrors.Wrap(pcmerrors.AccessDenied, "hwreg.MSR.Read", err)
	}
	defer unpin()

	op, err := backoff.Retry(ctx, func() (uint64, error) {
		var buf [8]byte
		n, err := m.file.ReadAt(buf[:], int64(m.address))
		if err != nil {
			if isTransient(err) {
				return 0, pcmerrors.NewRetryable(err.Error())
			}
			return 0, err
		}
		if n != 8 {
			return 0, pcmerrors.NewRetryable("short msr read")
		}
		return binary.LittleEndian.Uint64(buf[:]), nil
	}, backoff.WithMaxTries(3))
	if err != nil {
		return 0, pcmerrors.Wrap(pcmerrors.TransientIO, "hwreg.MSR.Read", err)
	}
	return op, nil
}

func (m *MSR) Write(ctx context.Context, value uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	unpin, err := pinCurrentThread(m.cpu)
	if err != nil {
		return pcmerrors.Wrap(pcmerrors.AccessDenied, "hwreg.MSR.Write", err)
	}
	defer unpin()

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], value)
		n, err := m.file.WriteAt(buf[:], int64(m.address))
		if err != nil {
			if isTransient(err) {
				return struct{}{}, pcmerrors.NewRetryable(err.Error())
			}
			if os.IsPermission(err) {
				return struct{}{}, backoff.Permanent(pcmerrors.Wrap(pcmerrors.AccessDenied, "hwreg.MSR.Write", err))
			}
			return struct{}{}, backoff.Permanent(err)
		}
		if n != 8 {
			return struct{}{}, pcmerrors.NewRetryable("short msr write")
		}
		return struct{}{}, nil
	}, backoff.WithMaxTries(3))
	if err != nil {
		return pcmerrors.Wrap(pcmerrors.TransientIO, "hwreg.MSR.Write", err)
	}
	return nil
}

// pinCurrentThread locks the calling goroutine to its current OS thread
// and sets that thread's CPU affinity to cpu, returning a restore
// function that must run before the goroutine may migrate again.
func pinCurrentThread(cpu int) (restore func(), err error) {
	runtime.LockOSThread()

	var prior unix.CPUSet
	if err := unix.SchedGetaffinity(0, &prior); err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}

	var target unix.CPUSet
	target.Zero()
	target.Set(cpu)
	if err := unix.SchedSetaffinity(0, &target); err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}

	return func() {
		_ = unix.SchedSetaffinity(0, &prior)
		runtime.UnlockOSThread()
	}, nil
}

func isTransient(err error) bool {
	return err == unix.EINTR || err == unix.EAGAIN
}
