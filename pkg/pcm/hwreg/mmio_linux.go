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
	"os"

	"golang.org/x/sys/unix"

	"github.com/antimetal/pcm/pkg/pcmerrors"
)

// MMIO maps a page-aligned physical range from /dev/mem into the
// process address space. Releases the mapping on Close.
type MMIO struct {
	offset     uint32
	width      int
	pageOffset int64
	data       []byte
}

// NewMMIO maps [base, base+length) from /dev/mem. writable selects
// PROT_READ|PROT_WRITE over PROT_READ.
func NewMMIO(base uint64, length int, width int, writable bool) (*MMIO, error) {
	pageSize := int64(os.Getpagesize())
	alignedBase := int64(base) &^ (pageSize - 1)
	pageOffset := int64(base) - alignedBase
	mapLen := int(pageOffset) + length
	// round up to a page multiple
	if rem := mapLen % int(pageSize); rem != 0 {
		mapLen += int(pageSize) - rem
	}

	prot := unix.PROT_READ
	flags := os.O_RDONLY
	if writable {
		prot |= unix.PROT_WRITE
		flags = os.O_RDWR
	}

	f, err := os.OpenFile("/dev/mem", flags, 0)
	if err != nil {
		return nil, pcmerrors.Wrap(pcmerrors.AccessDenied, "hwreg.NewMMIO", err)
	}
	defer f.Close()

	data, err := unix.Mmap(int(f.Fd()), alignedBase, mapLen, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, pcmerrors.Wrap(pcmerrors.HardwareAbsent, "hwreg.NewMMIO", err)
	}

	return &MMIO{width: width, pageOffset: pageOffset, data: data}, nil
}

func (m *MMIO) Close() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	return err
}

func (m *MMIO) Read(ctx context.Context) (uint64, error) {
	if m.width == 4 {
		return uint64(binary.LittleEndian.Uint32(m.data[m.pageOffset : m.pageOffset+4])), nil
	}
	return binary.LittleEndian.Uint64(m.data[m.pageOffset : m.pageOffset+8]), nil
}

func (m *MMIO) Write(ctx context.Context, value uint64) error {
	if m.width == 4 {
		binary.LittleEndian.PutUint32(m.data[m.pageOffset:m.pageOffset+4], uint32(value))
		return nil
	}
	binary.LittleEndian.PutUint64(m.data[m.pageOffset:m.pageOffset+8], value)
	return nil
}
