// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package topology discovers the System -> Socket* -> Tile* -> Core* ->
// Thread* tree and the running microarchitecture. Unlike the original
// PCM, which reads CPUID leaves directly, this discoverer follows the
// sysfs/procfs posture already established elsewhere in this stack
// (see the teacher's cpuinfo collector): vendor/family/model/stepping
// come from /proc/cpuinfo, and per-CPU topology ids come from
// /sys/devices/system/cpu/cpuN/topology/*, which the kernel derives
// from CPUID/x2APIC on our behalf. Missing CPUs are treated as offline,
// never as an error.
package topology

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/antimetal/pcm/internal/cpumodel"
)

// Topology is the rooted System -> Socket* -> Tile* -> Core* -> Thread*
// tree. Every online OS CPU id appears in exactly one Thread. Package
// pcm re-exports this as pcm.Topology so callers never need to import
// topology directly just to hold one.
type Topology struct {
	VendorID    string
	Family      int
	Model       cpumodel.Model
	Stepping    int
	Microcode   string
	Unsupported bool // not an Intel family this package supports; the engine also sets it when the model id is not in the uncore registry

	Sockets []Socket
}

type Socket struct {
	ID            int
	ReferenceCore int // lowest OS CPU id on this socket, used for socket-scoped reads
	Tiles         []Tile
}

type Tile struct {
	ID    int
	Cores []Core
}

type Core struct {
	ID      int // core id, unique within a socket
	Threads []Thread
}

type Thread struct {
	OSID int // stable OS-level CPU id
}

// ThreadByOSID returns the thread with the given OS CPU id and true, or
// the zero value and false.
func (t *Topology) ThreadByOSID(osID int) (Thread, bool) {
	for _, s := range t.Sockets {
		for _, tile := range s.Tiles {
			for _, c := range tile.Cores {
				for _, th := range c.Threads {
					if th.OSID == osID {
						return th, true
					}
				}
			}
		}
	}
	return Thread{}, false
}

// SocketOf returns the socket id owning OS CPU osID and true, or false if
// osID is not present in the topology.
func (t *Topology) SocketOf(osID int) (int, bool) {
	for _, s := range t.Sockets {
		for _, tile := range s.Tiles {
			for _, c := range tile.Cores {
				for _, th := range c.Threads {
					if th.OSID == osID {
						return s.ID, true
					}
				}
			}
		}
	}
	return 0, false
}

// Discoverer reads topology from a (possibly container-overridden)
// procfs/sysfs root, mirroring the HostProcPath/HostSysPath override
// convention used throughout this stack.
type Discoverer struct {
	procPath string
	sysPath  string
}

func New(procPath, sysPath string) *Discoverer {
	if procPath == "" {
		procPath = "/proc"
	}
	if sysPath == "" {
		sysPath = "/sys"
	}
	return &Discoverer{procPath: procPath, sysPath: sysPath}
}

// Discover builds the full topology tree.
func (d *Discoverer) Discover() (*Topology, error) {
	t := &Topology{}

	perCPU, err := d.parseCPUInfo(t)
	if err != nil {
		return nil, fmt.Errorf("parsing cpuinfo: %w", err)
	}

	t.Unsupported = !cpumodel.FamilyVendor(t.VendorID, t.Family)

	sockets := map[int]*Socket{}
	tiles := map[[2]int]*Tile{}     // (socket, tile) -> tile
	cores := map[[2]int]*Core{}     // (socket, coreID) -> core
	coreTile := map[[2]int]int{}        // (socket, coreID) -> tileID

	cpuIDs := make([]int, 0, len(perCPU))
	for id := range perCPU {
		cpuIDs = append(cpuIDs, id)
	}
	sort.Ints(cpuIDs)

	for _, osID := range cpuIDs {
		socketID, coreID, tileID, err := d.readCPUTopology(osID)
		if err != nil {
			// Offline or unreadable: skip, not an error.
			continue
		}

		sock, ok := sockets[socketID]
		if !ok {
			sock = &Socket{ID: socketID, ReferenceCore: osID}
			sockets[socketID] = sock
		} else if osID < sock.ReferenceCore {
			sock.ReferenceCore = osID
		}

		tileKey := [2]int{socketID, tileID}
		tile, ok := tiles[tileKey]
		if !ok {
			tile = &Tile{ID: tileID}
			tiles[tileKey] = tile
		}

		coreKey := [2]int{socketID, coreID}
		core, ok := cores[coreKey]
		if !ok {
			core = &Core{ID: coreID}
			cores[coreKey] = core
		}
		core.Threads = append(core.Threads, Thread{OSID: osID})
		coreTile[coreKey] = tileID
	}

	// Assemble cores into their tiles, tiles into their sockets.
	for key, core := range cores {
		socketID := key[0]
		tileID := coreTile[key]
		tile := tiles[[2]int{socketID, tileID}]
		tile.Cores = append(tile.Cores, *core)
	}
	for key, tile := range tiles {
		socketID := key[0]
		sockets[socketID].Tiles = append(sockets[socketID].Tiles, *tile)
	}

	socketIDs := make([]int, 0, len(sockets))
	for id := range sockets {
		socketIDs = append(socketIDs, id)
	}
	sort.Ints(socketIDs)
	for _, id := range socketIDs {
		s := *sockets[id]
		sort.Slice(s.Tiles, func(i, j int) bool { return s.Tiles[i].ID < s.Tiles[j].ID })
		for i := range s.Tiles {
			sort.Slice(s.Tiles[i].Cores, func(a, b int) bool { return s.Tiles[i].Cores[a].ID < s.Tiles[i].Cores[b].ID })
		}
		t.Sockets = append(t.Sockets, s)
	}

	return t, nil
}

func (d *Discoverer) parseCPUInfo(t *Topology) (map[int]struct{}, error) {
	f, err := os.Open(filepath.Join(d.procPath, "cpuinfo"))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	seen := map[int]struct{}{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.SplitN(line, ":", 2)
		if len(fields) != 2 {
			continue
		}
		key := strings.TrimSpace(fields[0])
		value := strings.TrimSpace(fields[1])

		switch key {
		case "processor":
			if id, err := strconv.Atoi(value); err == nil {
				seen[id] = struct{}{}
			}
		case "vendor_id":
			if t.VendorID == "" {
				t.VendorID = value
			}
		case "cpu family":
			if t.Family == 0 {
				if v, err := strconv.Atoi(value); err == nil {
					t.Family = v
				}
			}
		case "model":
			if t.Model == 0 {
				if v, err := strconv.Atoi(value); err == nil {
					t.Model = cpumodel.Model(v)
				}
			}
		case "stepping":
			if t.Stepping == 0 {
				if v, err := strconv.Atoi(value); err == nil {
					t.Stepping = v
				}
			}
		case "microcode":
			if t.Microcode == "" {
				t.Microcode = value
			}
		}
	}
	return seen, scanner.Err()
}

// readCPUTopology reads physical_package_id, core_id, and derives a
// tile id by grouping cores that report the same L2 shared_cpu_list.
func (d *Discoverer) readCPUTopology(osID int) (socketID, coreID, tileID int, err error) {
	base := filepath.Join(d.sysPath, "devices", "system", "cpu", fmt.Sprintf("cpu%d", osID), "topology")

	socketID, err = readIntFile(filepath.Join(base, "physical_package_id"))
	if err != nil {
		return 0, 0, 0, err
	}
	coreID, err = readIntFile(filepath.Join(base, "core_id"))
	if err != nil {
		return 0, 0, 0, err
	}

	tileID = d.tileIDFromL2(osID)
	return socketID, coreID, tileID, nil
}

// tileIDFromL2 groups cores sharing an L2 cache (a "tile") by reading
// the lowest OS CPU id in that L2's shared_cpu_list, which is stable
// and unique per tile.
func (d *Discoverer) tileIDFromL2(osID int) int {
	cacheBase := filepath.Join(d.sysPath, "devices", "system", "cpu", fmt.Sprintf("cpu%d", osID), "cache")
	entries, err := os.ReadDir(cacheBase)
	if err != nil {
		return 0
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "index") {
			continue
		}
		levelPath := filepath.Join(cacheBase, e.Name(), "level")
		level, err := readIntFile(levelPath)
		if err != nil || level != 2 {
			continue
		}
		listPath := filepath.Join(cacheBase, e.Name(), "shared_cpu_list")
		data, err := os.ReadFile(listPath)
		if err != nil {
			continue
		}
		if id, ok := lowestCPUInList(strings.TrimSpace(string(data))); ok {
			return id
		}
	}
	return osID
}

func lowestCPUInList(list string) (int, bool) {
	lowest := -1
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		bounds := strings.SplitN(part, "-", 2)
		start, err := strconv.Atoi(bounds[0])
		if err != nil {
			continue
		}
		if lowest == -1 || start < lowest {
			lowest = start
		}
	}
	if lowest == -1 {
		return 0, false
	}
	return lowest, true
}

func readIntFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}
