// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

//go:build !linux

package hwreg

import (
	"context"

	"github.com/antimetal/pcm/pkg/pcmerrors"
)

// MSR on non-Linux platforms is a stub: the BSD /dev/cpuctlN, macOS
// kext, and Windows signed-driver paths are out of scope for this
// module (see spec §6 for the surfaces a full port would need).
type MSR struct{}

func NewMSR(cpu int, address uint32) (*MSR, error) {
	return nil, pcmerrors.NewKind(pcmerrors.HardwareAbsent, "hwreg.NewMSR", "msr backend requires linux")
}

func (m *MSR) Read(ctx context.Context) (uint64, error)  { return 0, errUnsupportedPlatform }
func (m *MSR) Write(ctx context.Context, v uint64) error { return errUnsupportedPlatform }
func (m *MSR) Close() error                              { return nil }
