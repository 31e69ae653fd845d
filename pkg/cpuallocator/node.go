// Copyright 2019 Intel Corporation. All Rights Reserved.
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

package cpuallocator

import (
	"fmt"
	"io"
	"strings"

	"github.com/intel/core-allocator/pkg/topology"
)

// Level is a position in the four-level hardware hierarchy.
type Level int

const (
	// Core is the leaf level: one hardware thread.
	Core Level = iota
	// CPU is a cpu package (a group of cores sharing on-die resources).
	CPU
	// Socket is a physical processor package.
	Socket
	// NUMA is a memory locality domain.
	NUMA

	numLevels = int(NUMA) + 1
)

func (l Level) String() string {
	switch l {
	case Core:
		return "core"
	case CPU:
		return "cpu"
	case Socket:
		return "socket"
	case NUMA:
		return "numa"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// node is one element of the resource tree, held by value inside the
// tree's per-level arena. parent/children are indices into the arena,
// never pointers: the arena owns every node for the tree's whole
// lifetime.
type node struct {
	id         int
	level      Level
	parent     int // index into the parent level's slice, -1 for NUMA
	childStart int // index into the child level's slice
	childCount int

	// Only refcount[Core] is maintained: for a core it is the busy/free
	// flag (0 or 1), for any other node the number of allocated cores
	// below it. The entries for the other levels stay 0.
	refcount [numLevels]int
}

// PhysicalCore is the side record attached to every CORE-level node: the
// topology back-reference, the two ownership relations, and the hooks
// used to place the core into at most one allocated-list and at most one
// provisioned-list at a time.
type PhysicalCore struct {
	Info topology.CoreInfo

	AllocatedTo   *Process
	ProvisionedTo *Process

	allocHook hook
	provHook  hook
}

// Tree is the flat storage of every node at every level, plus the
// parallel per-core side records and the distance table over cores.
type Tree struct {
	counts topology.Counts
	nodes  [numLevels][]node
	cores  []PhysicalCore
	dist   [][]int
}

// Build constructs the resource tree and distance table from a topology
// descriptor. It is the only place nodes and physical-core data are
// created; nothing is ever destroyed afterwards, only mutated in place
// as cores are allocated, freed, and (de)provisioned.
func Build(info *topology.Info) (*Tree, error) {
	c := info.Counts
	t := &Tree{counts: c}

	numCore, numCPU, numSocket, numNUMA := c.NumCores(), c.NumCPUs(), c.NumSockets(), c.NUMANodes

	t.nodes[Core] = make([]node, numCore)
	t.nodes[CPU] = make([]node, numCPU)
	t.nodes[Socket] = make([]node, numSocket)
	t.nodes[NUMA] = make([]node, numNUMA)
	t.cores = make([]PhysicalCore, numCore)

	for i := range t.nodes[Core] {
		t.nodes[Core][i] = node{id: i, level: Core, parent: i / c.CoresPerCPU}
	}
	for i := range t.nodes[CPU] {
		t.nodes[CPU][i] = node{
			id: i, level: CPU, parent: i / c.CPUsPerSocket,
			childStart: i * c.CoresPerCPU, childCount: c.CoresPerCPU,
		}
	}
	for i := range t.nodes[Socket] {
		t.nodes[Socket][i] = node{
			id: i, level: Socket, parent: i / c.SocketsPerNUMA,
			childStart: i * c.CPUsPerSocket, childCount: c.CPUsPerSocket,
		}
	}
	for i := range t.nodes[NUMA] {
		t.nodes[NUMA][i] = node{
			id: i, level: NUMA, parent: -1,
			childStart: i * c.SocketsPerNUMA, childCount: c.SocketsPerNUMA,
		}
	}

	byID := make(map[int]topology.CoreInfo, len(info.Cores))
	for _, ci := range info.Cores {
		byID[ci.ID] = ci
	}
	for id := 0; id < numCore; id++ {
		ci, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("cpuallocator: topology missing core id %d", id)
		}
		t.cores[id] = PhysicalCore{Info: ci}
	}

	t.dist = buildDistanceTable(t)

	return t, nil
}

// children returns the ids of the nodes one level below n that are n's
// own children.
func (t *Tree) children(n *node) []int {
	ids := make([]int, n.childCount)
	for i := 0; i < n.childCount; i++ {
		ids[i] = n.childStart + i
	}
	return ids
}

func (t *Tree) node(level Level, id int) *node {
	return &t.nodes[level][id]
}

// Core returns the physical-core datum for the given absolute core id.
func (t *Tree) Core(id int) *PhysicalCore {
	return &t.cores[id]
}

// NumCores is the total core count in the tree.
func (t *Tree) NumCores() int { return len(t.cores) }

// ancestor walks from a core up to the node at the requested level.
func (t *Tree) ancestor(coreID int, level Level) *node {
	n := &t.nodes[Core][coreID]
	for l := Core; l < level; l++ {
		n = &t.nodes[l+1][n.parent]
	}
	return n
}

// Occupancy returns (allocated, free) core counts for the whole tree.
func (t *Tree) Occupancy() (allocated, free int) {
	for i := range t.nodes[NUMA] {
		allocated += t.nodes[NUMA][i].refcount[Core]
	}
	return allocated, len(t.cores) - allocated
}

// Dump writes a human-readable tree of every node's refcount, indented
// by level, followed by the ownership of each core. It is a debugging
// aid only; nothing in this package parses its own output back.
func (t *Tree) Dump(w io.Writer) {
	for numaID := range t.nodes[NUMA] {
		t.dumpNode(w, NUMA, numaID, 0)
	}
	for id := range t.cores {
		c := &t.cores[id]
		fmt.Fprintf(w, "core %d: allocated-to=%s provisioned-to=%s\n",
			id, procName(c.AllocatedTo), procName(c.ProvisionedTo))
	}
}

func (t *Tree) dumpNode(w io.Writer, level Level, id int, depth int) {
	n := t.node(level, id)
	fmt.Fprintf(w, "%s%s %d: refcount=%d\n", strings.Repeat("  ", depth), level, id, n.refcount[Core])
	if level == Core {
		return
	}
	for _, childID := range t.children(n) {
		t.dumpNode(w, level-1, childID, depth+1)
	}
}

func procName(p *Process) string {
	if p == nil {
		return "-"
	}
	return p.Name
}
