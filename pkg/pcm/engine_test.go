// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package pcm

import (
	"context"
	"testing"

	"github.com/antimetal/pcm/pkg/pcm/semaphore"
	"github.com/antimetal/pcm/pkg/pcm/topology"
)

func twoSocketOneCoreTopology() *Topology {
	return &Topology{
		Sockets: []Socket{
			{ID: 0, ReferenceCore: 0, Tiles: []Tile{{ID: 0, Cores: []Core{{ID: 0, Threads: []Thread{{OSID: 0}, {OSID: 1}}}}}}},
			{ID: 1, ReferenceCore: 2, Tiles: []Tile{{ID: 0, Cores: []Core{{ID: 0, Threads: []Thread{{OSID: 2}, {OSID: 3}}}}}}},
		},
	}
}

func TestOnlineCoreSocketMap(t *testing.T) {
	e := &Engine{topology: twoSocketOneCoreTopology()}
	m := e.onlineCoreSocketMap()

	want := map[int]int{0: 0, 1: 0, 2: 1, 3: 1}
	if len(m) != len(want) {
		t.Fatalf("got %d entries, want %d", len(m), len(want))
	}
	for osID, socketID := range want {
		if m[osID] != socketID {
			t.Errorf("cpu %d: got socket %d, want %d", osID, m[osID], socketID)
		}
	}
}

func TestProgramCustomCoreRejectsTooManySelectors(t *testing.T) {
	e := &Engine{topology: twoSocketOneCoreTopology(), coreFixed: map[int]*coreFixedCounters{}}
	selectors := make([]EventSelect, 9)
	if err := e.programCustomCore(context.Background(), selectors); err == nil {
		t.Fatal("expected an error for 9 event selectors, got nil")
	}
}

func TestProgramRawPMURejectsOverBudgetPMU(t *testing.T) {
	e := &Engine{}
	raw := map[string]RawPMUEvents{
		"iio": {Programmable: make([]EventSelect, 9)},
	}
	if err := e.programRawPMU(context.Background(), raw); err == nil {
		t.Fatal("expected an error for a 9-counter raw PMU, got nil")
	}
}

func TestResetPMUClearsProgrammedFlag(t *testing.T) {
	e := &Engine{topology: &topology.Topology{}, coreFixed: map[int]*coreFixedCounters{}, programmed: true}
	if err := e.ResetPMU(context.Background()); err != nil {
		t.Fatalf("ResetPMU: %v", err)
	}
	if e.programmed {
		t.Fatal("expected programmed=false after ResetPMU")
	}
}

func TestCleanupIsIdempotentWhenNeverProgrammed(t *testing.T) {
	e := &Engine{
		topology:  &topology.Topology{},
		coreFixed: map[int]*coreFixedCounters{},
		resctrl:   nil,
		sema:      semaphore.New(t.TempDir() + "/pcm.lock"),
	}
	if err := e.Cleanup(context.Background()); err != nil {
		t.Fatalf("first Cleanup: %v", err)
	}
	if err := e.Cleanup(context.Background()); err != nil {
		t.Fatalf("second Cleanup: %v", err)
	}
}

func TestProgramTwiceWithoutResetFails(t *testing.T) {
	e := &Engine{
		topology:   twoSocketOneCoreTopology(),
		coreFixed:  map[int]*coreFixedCounters{},
		sema:       semaphore.New(t.TempDir() + "/pcm.lock"),
		programmed: true,
	}
	result, err := e.Program(context.Background(), ModeDefault, ProgramParams{})
	if err == nil {
		t.Fatal("expected an error when programming an already-programmed engine")
	}
	if result != UnknownError {
		t.Errorf("got result %v, want UnknownError", result)
	}
}
