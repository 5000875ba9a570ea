// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package topology_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antimetal/pcm/pkg/pcm/topology"
)

const testCPUInfoTwoSocketFourCPU = `processor	: 0
vendor_id	: GenuineIntel
cpu family	: 6
model		: 143
model name	: Intel(R) Xeon(R) Platinum 8360Y CPU @ 2.40GHz
stepping	: 6
microcode	: 0xd0003a5

processor	: 1
vendor_id	: GenuineIntel
cpu family	: 6
model		: 143
model name	: Intel(R) Xeon(R) Platinum 8360Y CPU @ 2.40GHz
stepping	: 6
microcode	: 0xd0003a5

processor	: 2
vendor_id	: GenuineIntel
cpu family	: 6
model		: 143
model name	: Intel(R) Xeon(R) Platinum 8360Y CPU @ 2.40GHz
stepping	: 6
microcode	: 0xd0003a5

processor	: 3
vendor_id	: GenuineIntel
cpu family	: 6
model		: 143
model name	: Intel(R) Xeon(R) Platinum 8360Y CPU @ 2.40GHz
stepping	: 6
microcode	: 0xd0003a5
`

// writeTopologyFixture lays out a synthetic /proc + /sys tree for two
// sockets with one core (two threads) each, no L2-sharing info (so
// every core of a socket falls into tile 0), matching the fallback path
// tileIDFromL2 takes when cache topology is unavailable.
func writeTopologyFixture(t *testing.T) (procPath, sysPath string) {
	t.Helper()
	root := t.TempDir()
	procPath = filepath.Join(root, "proc")
	sysPath = filepath.Join(root, "sys")

	require.NoError(t, os.MkdirAll(procPath, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(procPath, "cpuinfo"), []byte(testCPUInfoTwoSocketFourCPU), 0o644))

	// cpu0,1 -> socket 0 core 0; cpu2,3 -> socket 1 core 0
	sockets := []int{0, 0, 1, 1}
	cores := []int{0, 0, 0, 0}
	for cpu := 0; cpu < 4; cpu++ {
		topoDir := filepath.Join(sysPath, "devices", "system", "cpu", fmt.Sprintf("cpu%d", cpu), "topology")
		require.NoError(t, os.MkdirAll(topoDir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(topoDir, "physical_package_id"), []byte(fmt.Sprintf("%d\n", sockets[cpu])), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(topoDir, "core_id"), []byte(fmt.Sprintf("%d\n", cores[cpu])), 0o644))
	}
	return procPath, sysPath
}

func TestDiscoverRoundTrip(t *testing.T) {
	procPath, sysPath := writeTopologyFixture(t)
	d := topology.New(procPath, sysPath)

	topo, err := d.Discover()
	require.NoError(t, err)

	require.Equal(t, "GenuineIntel", topo.VendorID)
	require.Equal(t, 6, topo.Family)
	require.Equal(t, 6, topo.Stepping)
	require.False(t, topo.Unsupported)
	require.Len(t, topo.Sockets, 2)

	for cpu := 0; cpu < 4; cpu++ {
		thread, ok := topo.ThreadByOSID(cpu)
		require.True(t, ok, "cpu %d should be present", cpu)
		require.Equal(t, cpu, thread.OSID)

		socketID, ok := topo.SocketOf(cpu)
		require.True(t, ok)

		found := false
		for _, s := range topo.Sockets {
			if s.ID != socketID {
				continue
			}
			for _, tile := range s.Tiles {
				for _, c := range tile.Cores {
					for _, th := range c.Threads {
						if th.OSID == cpu {
							found = true
						}
					}
				}
			}
		}
		require.True(t, found, "cpu %d should be reachable from its socket", cpu)
	}
}

func TestDiscoverOfflineCPUSkipped(t *testing.T) {
	procPath, sysPath := writeTopologyFixture(t)
	// cpu3's topology directory is absent entirely: treated as offline,
	// not an error.
	require.NoError(t, os.RemoveAll(filepath.Join(sysPath, "devices", "system", "cpu", "cpu3")))

	d := topology.New(procPath, sysPath)
	topo, err := d.Discover()
	require.NoError(t, err)

	_, ok := topo.ThreadByOSID(3)
	require.False(t, ok)
	_, ok = topo.ThreadByOSID(2)
	require.True(t, ok)
}

func TestDiscoverUnsupportedModel(t *testing.T) {
	root := t.TempDir()
	procPath := filepath.Join(root, "proc")
	sysPath := filepath.Join(root, "sys")
	require.NoError(t, os.MkdirAll(procPath, 0o755))

	cpuinfo := "processor\t: 0\nvendor_id\t: AuthenticAMD\ncpu family\t: 23\nmodel\t\t: 1\nstepping\t: 2\n"
	require.NoError(t, os.WriteFile(filepath.Join(procPath, "cpuinfo"), []byte(cpuinfo), 0o644))
	topoDir := filepath.Join(sysPath, "devices", "system", "cpu", "cpu0", "topology")
	require.NoError(t, os.MkdirAll(topoDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(topoDir, "physical_package_id"), []byte("0\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(topoDir, "core_id"), []byte("0\n"), 0o644))

	d := topology.New(procPath, sysPath)
	topo, err := d.Discover()
	require.NoError(t, err)
	require.True(t, topo.Unsupported)
}
