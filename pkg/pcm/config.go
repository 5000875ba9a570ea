// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package pcm

import (
	"os"
	"time"
)

// EngineConfig is a zero-value-friendly configuration struct. Call
// ApplyDefaults before use, same convention as this stack's collection
// config elsewhere: it is safe to construct with &EngineConfig{} and
// then override individual fields before calling ApplyDefaults.
type EngineConfig struct {
	HostProcPath string
	HostSysPath  string
	HostDevPath  string

	// NoMSR disables the MSR backend entirely, equivalent to PCM_NO_MSR=1.
	NoMSR bool
	// KeepNMIWatchdog records PCM_KEEP_NMI_WATCHDOG. The engine does not
	// change the kernel NMI watchdog whether or not it is set.
	KeepNMIWatchdog bool
	// AllowMultipleInstances opts out of the single-PMU-client
	// exclusion semaphore, per spec §5.
	AllowMultipleInstances bool

	WidthExtenderDefaultPeriod time.Duration
	UpdaterCadence             time.Duration

	// SnapshotHistoryDepth bounds how many past Updater samples
	// Updater.History retains; older samples are overwritten.
	SnapshotHistoryDepth int

	SemaphorePath string

	// PCIBusBase is the PCI bus number of socket 0's uncore devices;
	// socket N's PCI-transport uncore units are assumed to live on bus
	// PCIBusBase+N. Real hardware assigns these dynamically and PCM
	// discovers them by probing a UBOX register; this package does not
	// replicate that discovery, so a deployment whose bus layout
	// doesn't follow the one-bus-per-socket convention must override
	// this field (or set per-socket bus numbers via PCIBusForSocket).
	PCIBusBase int

	// PCIBusForSocket overrides PCIBusBase for callers that know the
	// real per-socket bus numbers (e.g. read from an earlier probe).
	// Nil means "use PCIBusBase + socket id".
	PCIBusForSocket func(socket int) int
}

// DefaultEngineConfig returns a fully populated configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		HostProcPath:               "/proc",
		HostSysPath:                "/sys",
		HostDevPath:                "/dev",
		WidthExtenderDefaultPeriod: 100 * time.Millisecond,
		UpdaterCadence:             1 * time.Second,
		SnapshotHistoryDepth:       5,
	}
}

// ApplyDefaults fills in zero fields from DefaultEngineConfig and then
// applies environment overrides, matching the HOST_PROC/HOST_SYS/
// HOST_DEV override convention this stack already uses elsewhere.
func (c *EngineConfig) ApplyDefaults() {
	defaults := DefaultEngineConfig()
	if c.HostProcPath == "" {
		c.HostProcPath = defaults.HostProcPath
	}
	if c.HostSysPath == "" {
		c.HostSysPath = defaults.HostSysPath
	}
	if c.HostDevPath == "" {
		c.HostDevPath = defaults.HostDevPath
	}
	if c.WidthExtenderDefaultPeriod == 0 {
		c.WidthExtenderDefaultPeriod = defaults.WidthExtenderDefaultPeriod
	}
	if c.UpdaterCadence == 0 {
		c.UpdaterCadence = defaults.UpdaterCadence
	}
	if c.SnapshotHistoryDepth == 0 {
		c.SnapshotHistoryDepth = defaults.SnapshotHistoryDepth
	}

	if v := os.Getenv("HOST_PROC"); v != "" {
		c.HostProcPath = v
	}
	if v := os.Getenv("HOST_SYS"); v != "" {
		c.HostSysPath = v
	}
	if v := os.Getenv("HOST_DEV"); v != "" {
		c.HostDevPath = v
	}
	if os.Getenv("PCM_NO_MSR") == "1" {
		c.NoMSR = true
	}
	if os.Getenv("PCM_KEEP_NMI_WATCHDOG") != "" {
		c.KeepNMIWatchdog = true
	}
}
