// Copyright The NRI Plugins Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package topology holds the read-only topology descriptor the allocator
// is built from: how many NUMA nodes, sockets, cpu packages and cores the
// machine has, and the per-core record for each of them. Discovering this
// information from firmware tables or sysfs is a collaborator's job; this
// package only describes the shape the collaborator must hand over.
package topology

import "fmt"

// Counts describes the machine's shape: how many children each level has
// under one parent, and the total NUMA node count at the top.
type Counts struct {
	NUMANodes      int
	SocketsPerNUMA int
	CPUsPerSocket  int
	CoresPerCPU    int
}

// NumSockets is the total number of sockets in the machine.
func (c Counts) NumSockets() int { return c.NUMANodes * c.SocketsPerNUMA }

// NumCPUs is the total number of cpu packages in the machine.
func (c Counts) NumCPUs() int { return c.NumSockets() * c.CPUsPerSocket }

// NumCores is the total number of cores in the machine.
func (c Counts) NumCores() int { return c.NumCPUs() * c.CoresPerCPU }

// CoreInfo is the per-core record supplied by the topology collaborator:
// the core's absolute id and its ancestor ids at every level above it.
type CoreInfo struct {
	ID     int // absolute_core_id
	CPU    int // cpu_id
	Socket int // socket_id
	NUMA   int // numa_id
	Online bool
}

// Info is the complete topology descriptor consumed by the allocator.
type Info struct {
	Counts Counts
	Cores  []CoreInfo
}

// NewInfo validates a caller-supplied core list against counts and
// returns the descriptor. Cores need not be supplied in id order; the
// slice is copied and sorted by id.
func NewInfo(counts Counts, cores []CoreInfo) (*Info, error) {
	if counts.NUMANodes <= 0 || counts.SocketsPerNUMA <= 0 || counts.CPUsPerSocket <= 0 || counts.CoresPerCPU <= 0 {
		return nil, fmt.Errorf("topology: all counts must be positive, got %+v", counts)
	}
	want := counts.NumCores()
	if len(cores) != want {
		return nil, fmt.Errorf("topology: expected %d cores, got %d", want, len(cores))
	}

	sorted := make([]CoreInfo, want)
	seen := make([]bool, want)
	for _, c := range cores {
		if c.ID < 0 || c.ID >= want {
			return nil, fmt.Errorf("topology: core id %d out of range [0,%d)", c.ID, want)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("topology: duplicate core id %d", c.ID)
		}
		seen[c.ID] = true
		sorted[c.ID] = c
	}

	return &Info{Counts: counts, Cores: sorted}, nil
}

// Generate builds a fully-online, deterministically laid out topology
// descriptor directly from counts: core id = ((numa*sockets+socket)*cpus+cpu)*cores+core,
// and ancestor ids follow the same nesting. This is the shape tests and
// the coreallocctl harness use when they don't have a discovered
// descriptor to load.
func Generate(counts Counts) (*Info, error) {
	if counts.NUMANodes <= 0 || counts.SocketsPerNUMA <= 0 || counts.CPUsPerSocket <= 0 || counts.CoresPerCPU <= 0 {
		return nil, fmt.Errorf("topology: all counts must be positive, got %+v", counts)
	}

	cores := make([]CoreInfo, 0, counts.NumCores())
	id := 0
	for numa := 0; numa < counts.NUMANodes; numa++ {
		for s := 0; s < counts.SocketsPerNUMA; s++ {
			socket := numa*counts.SocketsPerNUMA + s
			for c := 0; c < counts.CPUsPerSocket; c++ {
				cpu := socket*counts.CPUsPerSocket + c
				for k := 0; k < counts.CoresPerCPU; k++ {
					cores = append(cores, CoreInfo{
						ID:     id,
						CPU:    cpu,
						Socket: socket,
						NUMA:   numa,
						Online: true,
					})
					id++
				}
			}
		}
	}

	return &Info{Counts: counts, Cores: cores}, nil
}

// OnlineCores returns the ids of every core marked online.
func (i *Info) OnlineCores() []int {
	ids := make([]int, 0, len(i.Cores))
	for _, c := range i.Cores {
		if c.Online {
			ids = append(ids, c.ID)
		}
	}
	return ids
}
