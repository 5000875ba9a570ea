// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package hwreg

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/antimetal/pcm/pkg/pcmerrors"
)

// PCI addresses a register in PCI configuration space by
// (domain, bus, device, function, offset). It reads through the sysfs
// "config" resource file rather than raw port I/O, matching the
// teacher's procfs/sysfs-first posture: non-throwing existence probe,
// a missing function returns HardwareAbsent instead of erroring.
type PCI struct {
	domain, bus, device, function int
	offset                        uint32
	width                         int // 4 or 8 bytes
}

func pciConfigPath(domain, bus, device, function int) string {
	return fmt.Sprintf("/sys/bus/pci/devices/%04x:%02x:%02x.%x/config", domain, bus, device, function)
}

// NewPCI32 creates a 32-bit PCI config register. NewPCI64 composes two
// 32-bit operations low-then-high, per spec §4.1.
func NewPCI32(domain, bus, device, function int, offset uint32) *PCI {
	return &PCI{domain: domain, bus: bus, device: device, function: function, offset: offset, width: 4}
}

func NewPCI64(domain, bus, device, function int, offset uint32) *PCI {
	return &PCI{domain: domain, bus: bus, device: device, function: function, offset: offset, width: 8}
}

// Probe reports whether the PCI function exists. A missing function is
// not an error; callers use this to implement the non-throwing
// existence probe spec §4.1 requires.
func (p *PCI) Probe() bool {
	_, err := os.Stat(pciConfigPath(p.domain, p.bus, p.device, p.function))
	return err == nil
}

func (p *PCI) Close() error { return nil }

func (p *PCI) Read(ctx context.Context) (uint64, error) {
	path := pciConfigPath(p.domain, p.bus, p.device, p.function)
	f, err := os.Open(path)
	if err != nil {
		return 0, pcmerrors.Wrap(pcmerrors.HardwareAbsent, "hwreg.PCI.Read", err)
	}
	defer f.Close()

	if p.width == 4 {
		var buf [4]byte
		if _, err := f.ReadAt(buf[:], int64(p.offset)); err != nil {
			return 0, pcmerrors.Wrap(pcmerrors.HardwareAbsent, "hwreg.PCI.Read", err)
		}
		return uint64(binary.LittleEndian.Uint32(buf[:])), nil
	}

	var lo, hi [4]byte
	if _, err := f.ReadAt(lo[:], int64(p.offset)); err != nil {
		return 0, pcmerrors.Wrap(pcmerrors.HardwareAbsent, "hwreg.PCI.Read", err)
	}
	if _, err := f.ReadAt(hi[:], int64(p.offset+4)); err != nil {
		return 0, pcmerrors.Wrap(pcmerrors.HardwareAbsent, "hwreg.PCI.Read", err)
	}
	return uint64(binary.LittleEndian.Uint32(hi[:]))<<32 | uint64(binary.LittleEndian.Uint32(lo[:])), nil
}

func (p *PCI) Write(ctx context.Context, value uint64) error {
	path := pciConfigPath(p.domain, p.bus, p.device, p.function)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if os.IsPermission(err) {
			return pcmerrors.Wrap(pcmerrors.AccessDenied, "hwreg.PCI.Write", err)
		}
		return pcmerrors.Wrap(pcmerrors.HardwareAbsent, "hwreg.PCI.Write", err)
	}
	defer f.Close()

	if p.width == 4 {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(value))
		_, err := f.WriteAt(buf[:], int64(p.offset))
		return err
	}

	var lo, hi [4]byte
	binary.LittleEndian.PutUint32(lo[:], uint32(value))
	binary.LittleEndian.PutUint32(hi[:], uint32(value>>32))
	if _, err := f.WriteAt(lo[:], int64(p.offset)); err != nil {
		return err
	}
	_, err = f.WriteAt(hi[:], int64(p.offset+4))
	return err
}
