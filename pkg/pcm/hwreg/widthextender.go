// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package hwreg

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// WidthExtender wraps a narrow hardware register (32 or 48 bits) and
// presents a monotonically growing 64-bit view. It is the only
// mechanism that guarantees 64-bit monotonicity over the lifetime of a
// session: on every sample, newRaw := inner.Read(); if newRaw dropped
// since the last sample the register is assumed to have wrapped and the
// missing span is added back in.
type WidthExtender struct {
	inner HWRegister
	width uint // 32 or 48

	mu       sync.Mutex
	extended uint64
	lastRaw  uint64

	watchdogPeriod time.Duration
	stop           chan struct{}
	done           chan struct{}
	logger         logr.Logger
}

// NewWidthExtender wraps inner, whose hardware width is width bits (32
// or 48). watchdogPeriod must be strictly shorter than the minimum
// wraparound interval for the fastest expected event rate on inner; the
// caller computes that bound per mode, per spec §4.4's overflow policy.
func NewWidthExtender(inner HWRegister, width uint, watchdogPeriod time.Duration, logger logr.Logger) (*WidthExtender, error) {
	w := &WidthExtender{
		inner:          inner,
		width:          width,
		watchdogPeriod: watchdogPeriod,
		logger:         logger.WithName("width-extender"),
	}
	if err := w.Reset(context.Background()); err != nil {
		return nil, err
	}
	return w, nil
}

// StartWatchdog launches the background sampler. Stop joins it within
// one watchdogPeriod.
func (w *WidthExtender) StartWatchdog() {
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	go w.watchdogLoop()
}

func (w *WidthExtender) watchdogLoop() {
	defer close(w.done)
	ticker := time.NewTicker(w.watchdogPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			if _, err := w.Read(context.Background()); err != nil {
				w.logger.V(1).Info("width extender sample failed, will retry next period", "error", err)
			}
		}
	}
}

// Stop halts the watchdog and waits for it to exit. Safe to call even if
// StartWatchdog was never called.
func (w *WidthExtender) Stop() {
	if w.stop == nil {
		return
	}
	close(w.stop)
	<-w.done
}

func (w *WidthExtender) Close() error {
	w.Stop()
	return w.inner.Close()
}

// Read samples the inner register and returns the current widened
// value. Safe to call concurrently with the watchdog.
func (w *WidthExtender) Read(ctx context.Context) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	newRaw, err := w.inner.Read(ctx)
	if err != nil {
		return 0, err
	}

	if newRaw < w.lastRaw {
		w.extended += ((uint64(1) << w.width) - w.lastRaw) + newRaw
	} else {
		w.extended += newRaw - w.lastRaw
	}
	w.lastRaw = newRaw
	return w.extended, nil
}

// Reset forces extended = lastRaw = inner.Read(). Equivalent to the C++
// original's reset(): it does not change the inner register's contents,
// only the extender's bookkeeping.
func (w *WidthExtender) Reset(ctx context.Context) error {
	raw, err := w.inner.Read(ctx)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.extended = raw
	w.lastRaw = raw
	return nil
}

// Write rejects any non-zero value; writing zero resets the extender.
func (w *WidthExtender) Write(ctx context.Context, value uint64) error {
	if value != 0 {
		return &ReadOnlyError{Register: "hwreg.WidthExtender"}
	}
	return w.Reset(ctx)
}
