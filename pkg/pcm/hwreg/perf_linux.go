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

	"golang.org/x/sys/unix"

	"github.com/antimetal/pcm/pkg/pcmerrors"
)

// Perf wraps a kernel perf_event file descriptor; each Read returns the
// single 64-bit count of that one event (group reads are not used). It
// is read-only: Write always fails.
type Perf struct {
	fd int
}

// NewPerf opens a perf event of the given type/config, pinned to cpu (or
// -1 for "any CPU", pid -1 meaning "all processes on that CPU").
func NewPerf(typ, config uint64, cpu, pid int) (*Perf, error) {
	attr := unix.PerfEventAttr{
		Type:   uint32(typ),
		Size:   uint32(unsafeSizeofPerfEventAttr),
		Config: config,
		Bits:   unix.PerfBitDisabled | unix.PerfBitInherit,
	}
	fd, err := unix.PerfEventOpen(&attr, pid, cpu, -1, unix.PERF_FLAG_FD_CLOEXEC)
	if err != nil {
		return nil, pcmerrors.Wrap(pcmerrors.AccessDenied, "hwreg.NewPerf", err)
	}
	if err := unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_ENABLE, 0); err != nil {
		unix.Close(fd)
		return nil, pcmerrors.Wrap(pcmerrors.Invariant, "hwreg.NewPerf", err)
	}
	return &Perf{fd: fd}, nil
}

const unsafeSizeofPerfEventAttr = 120 // sizeof(struct perf_event_attr) as of the Linux ABI this module targets

func (p *Perf) Close() error {
	if p.fd < 0 {
		return nil
	}
	err := unix.Close(p.fd)
	p.fd = -1
	return err
}

func (p *Perf) Read(ctx context.Context) (uint64, error) {
	var buf [8]byte
	n, err := unix.Read(p.fd, buf[:])
	if err != nil {
		return 0, pcmerrors.Wrap(pcmerrors.TransientIO, "hwreg.Perf.Read", err)
	}
	if n != 8 {
		return 0, pcmerrors.NewKind(pcmerrors.TransientIO, "hwreg.Perf.Read", "short read")
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func (p *Perf) Write(ctx context.Context, value uint64) error {
	return &ReadOnlyError{Register: "hwreg.Perf"}
}
