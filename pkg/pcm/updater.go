// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package pcm

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/antimetal/pcm/pkg/pcm/ringbuffer"
)

// Sample is one Updater tick's full counter-state snapshot.
type Sample struct {
	System  SystemCounterState
	Sockets []SocketUncoreCounterState
	Cores   []CoreCounterState
}

// Updater is the optional background ticker described in spec §4.6: it
// samples the engine at a fixed cadence and keeps the two most recent
// snapshots (current and previous) available to readers, who take a
// read lock, for delta computation, plus a bounded rolling history of older samples
// for callers that want a wider window than one delta. Only one
// Updater may run per Engine.
type Updater struct {
	engine  *Engine
	cadence time.Duration
	logger  logr.Logger

	mu       sync.RWMutex
	previous Sample
	current  Sample
	sampled  bool
	history  *ringbuffer.RingBuffer[Sample]

	stop chan struct{}
	done chan struct{}
}

func newUpdater(e *Engine, cadence time.Duration, logger logr.Logger) *Updater {
	depth := e.config.SnapshotHistoryDepth
	if depth <= 0 {
		depth = 1
	}
	history, _ := ringbuffer.New[Sample](depth)
	return &Updater{
		engine:  e,
		cadence: cadence,
		logger:  logger.WithName("updater"),
		history: history,
	}
}

func (u *Updater) start() {
	u.stop = make(chan struct{})
	u.done = make(chan struct{})
	go u.loop()
}

func (u *Updater) loop() {
	defer close(u.done)
	ticker := time.NewTicker(u.cadence)
	defer ticker.Stop()
	for {
		select {
		case <-u.stop:
			return
		case <-ticker.C:
			u.tick()
		}
	}
}

func (u *Updater) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), u.cadence)
	defer cancel()

	sys, sockets, cores, err := u.engine.Snapshot(ctx)
	if err != nil {
		u.logger.V(1).Info("snapshot failed, keeping previous sample", "error", err)
		return
	}

	newSample := Sample{System: sys, Sockets: sockets, Cores: cores}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.previous = u.current
	u.current = newSample
	u.sampled = true
	u.history.Push(newSample)
}

// Stop halts the ticker and waits for the in-flight tick, if any, to
// finish, joining within one cadence period as spec §5's shutdown
// contract requires. Calling Stop again is a no-op.
func (u *Updater) Stop() {
	if u.stop == nil {
		return
	}
	close(u.stop)
	<-u.done
	u.stop = nil
}

// Latest returns the most recent pair of samples and whether at least
// one sample has completed. Safe for concurrent readers while the
// updater keeps ticking.
func (u *Updater) Latest() (previous, current Sample, ok bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.previous, u.current, u.sampled
}

// History returns up to config.SnapshotHistoryDepth most recent samples,
// oldest first.
func (u *Updater) History() []Sample {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.history.GetAll()
}
