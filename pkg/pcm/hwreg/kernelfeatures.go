// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package hwreg

import (
	"os"
	"strconv"
	"strings"

	"github.com/cilium/ebpf/btf"
	"github.com/go-logr/logr"
)

// PerfKernelFeatures describes what the running kernel's perf subsystem
// supports, gating whether the Perf backend may be used at all.
type PerfKernelFeatures struct {
	KernelVersion      string
	HasGroupRead       bool // PERF_FORMAT_GROUP multi-counter reads
	HasRawPMUType      bool // PERF_TYPE_RAW event types
	HasBTF             bool // available for symbol-assisted diagnostics only
}

// DetectPerfKernelFeatures inspects /proc/version and the BTF sysfs node
// to decide what the Perf backend may rely on. Modeled on the CO-RE
// feature-gate used elsewhere in this stack for eBPF programs: perf
// group-read and raw PMU event types have both been present since long
// before any kernel this module targets, so gating here is a version
// floor rather than a probe, same posture as the CO-RE detector.
func DetectPerfKernelFeatures(logger logr.Logger) *PerfKernelFeatures {
	version := getKernelVersion()
	major, minor, _ := parseKernelVersion(version)

	f := &PerfKernelFeatures{KernelVersion: version}
	f.HasGroupRead = major > 2 || (major == 2 && minor >= 6)
	f.HasRawPMUType = f.HasGroupRead

	if _, err := os.Stat("/sys/kernel/btf/vmlinux"); err == nil {
		f.HasBTF = true
	}
	if f.HasBTF {
		if _, err := btf.LoadKernelSpec(); err != nil {
			logger.V(1).Info("BTF present but failed to load, diagnostics degraded", "error", err)
		}
	}

	logger.Info("perf kernel features detected",
		"kernel", f.KernelVersion, "group_read", f.HasGroupRead, "btf", f.HasBTF)
	return f
}

func getKernelVersion() string {
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return "unknown"
	}
	parts := strings.Fields(string(data))
	if len(parts) >= 3 {
		return parts[2]
	}
	return "unknown"
}

func parseKernelVersion(version string) (major, minor, patch int) {
	version = strings.Split(version, "-")[0]
	nums := strings.Split(version, ".")
	if len(nums) > 0 {
		major, _ = strconv.Atoi(nums[0])
	}
	if len(nums) > 1 {
		minor, _ = strconv.Atoi(nums[1])
	}
	if len(nums) > 2 {
		patch, _ = strconv.Atoi(nums[2])
	}
	return
}
