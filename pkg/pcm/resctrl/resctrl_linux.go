// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

//go:build linux

// Package resctrl bridges cache-occupancy and memory-bandwidth
// monitoring through the Linux kernel's resctrl filesystem, per spec
// §4.7. It is an alternative to direct MSR QOS programming; the engine
// prefers resctrl when mounted.
package resctrl

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-logr/logr"

	"github.com/antimetal/pcm/pkg/pcmerrors"
)

const mountGroupsPath = "/sys/fs/resctrl/mon_groups"
const pcmGroupPrefix = "pcm"
const containerFallbackPrefix = "/pcm"

// Bridge manages one monitor group per online CPU and the per-socket
// file maps used to read llc_occupancy, mbm_local_bytes, and
// mbm_total_bytes.
type Bridge struct {
	logger logr.Logger

	coreDirs map[int]string // online core -> its mon_groups directory

	// metric -> socket -> list of mon_data file paths to sum
	l3occ map[int][]string
	mbl   map[int][]string
	mbt   map[int][]string
}

func New(logger logr.Logger) *Bridge {
	return &Bridge{
		logger:   logger.WithName("resctrl"),
		coreDirs: map[int]string{},
		l3occ:    map[int][]string{},
		mbl:      map[int][]string{},
		mbt:      map[int][]string{},
	}
}

// IsMounted reports whether resctrl monitoring is available on this
// host.
func (b *Bridge) IsMounted() bool {
	_, err := os.Stat(mountGroupsPath)
	return err == nil
}

// Init creates one monitor group per online core and discovers the
// per-socket metric file paths. onlineCores maps core id to its socket
// id. It is non-fatal: if resctrl is not mounted, Init returns nil and
// every subsequent Get* call returns zero with a HardwareAbsent error,
// matching the original's "logs error, metrics unavailable"
// posture rather than aborting the whole engine.
func (b *Bridge) Init(onlineCores map[int]int) error {
	if !b.IsMounted() {
		b.logger.Info("resctrl not mounted, cache/bandwidth monitoring unavailable")
		return nil
	}

	for core, socket := range onlineCores {
		dir := filepath.Join(mountGroupsPath, fmt.Sprintf("%s%d", pcmGroupPrefix, core))
		if err := os.MkdirAll(dir, 0o700); err != nil {
			// Fall back to a container-local path, mirroring the
			// original's behavior when the primary mount is
			// unwritable (e.g. because we're already namespaced under
			// a different resctrl root).
			fallbackDir := filepath.Join(containerFallbackPrefix, dir)
			if ferr := os.MkdirAll(fallbackDir, 0o700); ferr != nil {
				b.logger.Error(ferr, "failed to create resctrl monitor group, disabling RDT metrics",
					"core", core, "primary", dir, "fallback", fallbackDir)
				return nil
			}
			dir = fallbackDir
		}

		if err := os.WriteFile(filepath.Join(dir, "cpus_list"), []byte(strconv.Itoa(core)), 0o644); err != nil {
			b.logger.Error(err, "failed to write cpus_list", "core", core)
			continue
		}

		b.coreDirs[core] = dir
		b.addMetricFiles(dir, socket)
	}

	return nil
}

func (b *Bridge) addMetricFiles(dir string, socket int) {
	monDataDir := filepath.Join(dir, "mon_data")
	entries, err := os.ReadDir(monDataDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "mon_L3_") {
			continue
		}
		base := filepath.Join(monDataDir, e.Name())
		b.l3occ[socket] = append(b.l3occ[socket], filepath.Join(base, "llc_occupancy"))
		b.mbl[socket] = append(b.mbl[socket], filepath.Join(base, "mbm_local_bytes"))
		b.mbt[socket] = append(b.mbt[socket], filepath.Join(base, "mbm_total_bytes"))
	}
}

// GetL3Occupancy sums llc_occupancy across sockets for core's monitor
// group. Returns 0 if resctrl is unavailable for core.
func (b *Bridge) GetL3Occupancy(core int) (uint64, error) {
	return b.sumCoreMetric(core, b.l3occ)
}

func (b *Bridge) GetMBL(core int) (uint64, error) {
	return b.sumCoreMetric(core, b.mbl)
}

func (b *Bridge) GetMBT(core int) (uint64, error) {
	return b.sumCoreMetric(core, b.mbt)
}

func (b *Bridge) sumCoreMetric(core int, bySocket map[int][]string) (uint64, error) {
	dir, ok := b.coreDirs[core]
	if !ok {
		return 0, pcmerrors.NewKind(pcmerrors.HardwareAbsent, "resctrl", "resctrl not initialized for core")
	}
	var total uint64
	for _, files := range bySocket {
		for _, f := range files {
			if !strings.HasPrefix(f, dir+string(filepath.Separator)) {
				continue
			}
			data, err := os.ReadFile(f)
			if err != nil {
				continue
			}
			v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
			if err != nil {
				continue
			}
			total += v
		}
	}
	return total, nil
}

// Cleanup removes the monitor group directories this Bridge created.
// Safe to call more than once.
func (b *Bridge) Cleanup() error {
	var firstErr error
	for core, dir := range b.coreDirs {
		if err := os.RemoveAll(dir); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(b.coreDirs, core)
	}
	b.l3occ = map[int][]string{}
	b.mbl = map[int][]string{}
	b.mbt = map[int][]string{}
	return firstErr
}
