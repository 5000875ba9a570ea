// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

//go:build !linux

package hwreg

import "context"

type Perf struct{}

func NewPerf(typ, config uint64, cpu, pid int) (*Perf, error) {
	return nil, errUnsupportedPlatform
}

func (p *Perf) Read(ctx context.Context) (uint64, error)  { return 0, errUnsupportedPlatform }
func (p *Perf) Write(ctx context.Context, v uint64) error { return errUnsupportedPlatform }
func (p *Perf) Close() error                              { return nil }
