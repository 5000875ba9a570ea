// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

//go:build !linux

package semaphore

import "github.com/antimetal/pcm/pkg/pcmerrors"

// Exclusion on non-Linux platforms is a stub. A real port needs a
// Windows named semaphore or the macOS file-lock surrogate noted in
// spec §5; neither is implemented here.
type Exclusion struct{}

func New(path string) *Exclusion { return &Exclusion{} }

func (e *Exclusion) Acquire(allowMultiple bool) error {
	return pcmerrors.NewKind(pcmerrors.HardwareAbsent, "semaphore.Acquire", "not supported on this platform")
}

func (e *Exclusion) Release() error { return nil }
func (e *Exclusion) Held() bool     { return false }
