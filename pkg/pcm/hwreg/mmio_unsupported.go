// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

//go:build !linux

package hwreg

import "context"

type MMIO struct{}

func NewMMIO(base uint64, length int, width int, writable bool) (*MMIO, error) {
	return nil, errUnsupportedPlatform
}

func (m *MMIO) Read(ctx context.Context) (uint64, error)  { return 0, errUnsupportedPlatform }
func (m *MMIO) Write(ctx context.Context, v uint64) error { return errUnsupportedPlatform }
func (m *MMIO) Close() error                              { return nil }
