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
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intel/core-allocator/pkg/topology"
)

// smallMachine builds the 8-core topology every spec scenario assumes:
// 1 NUMA node, 2 sockets, 2 cpus/socket, 2 cores/cpu.
func smallMachine(t *testing.T) (*Allocator, []*Process) {
	t.Helper()
	info, err := topology.Generate(topology.Counts{
		NUMANodes:      1,
		SocketsPerNUMA: 2,
		CPUsPerSocket:  2,
		CoresPerCPU:    2,
	})
	require.NoError(t, err)

	a, err := NewAllocator(info)
	require.NoError(t, err)

	procs := []*Process{NewProcess("P1"), NewProcess("P2"), NewProcess("P3")}
	return a, procs
}

func checkAll(t *testing.T, a *Allocator, procs []*Process) {
	t.Helper()
	require.NoError(t, a.CheckInvariants(procs))
}

func TestFirstTouchSpreading(t *testing.T) {
	a, procs := smallMachine(t)
	p1, p2 := procs[0], procs[1]

	a.AllocAny(p1, 1)
	checkAll(t, a, procs)
	require.Equal(t, []int{0}, p1.AllocatedIDs())

	a.AllocAny(p2, 1)
	checkAll(t, a, procs)
	require.Equal(t, []int{4}, p2.AllocatedIDs())
}

func TestPackingAfterAnchor(t *testing.T) {
	a, procs := smallMachine(t)
	p1 := procs[0]

	a.AllocAny(p1, 1)
	a.AllocAny(p1, 1)
	checkAll(t, a, procs)
	require.Equal(t, []int{0, 1}, p1.AllocatedIDs())

	a.AllocAny(p1, 1)
	checkAll(t, a, procs)
	require.Equal(t, []int{0, 1, 2}, p1.AllocatedIDs())
}

func TestProvisioningRedirectsChoice(t *testing.T) {
	a, procs := smallMachine(t)
	p1 := procs[0]

	a.Provision(p1, 7)
	a.AllocAny(p1, 3)
	checkAll(t, a, procs)

	ids := p1.AllocatedIDs()
	require.Equal(t, 3, len(ids))
	require.Equal(t, 7, ids[0])
	require.Equal(t, 6, ids[1])
	require.Contains(t, []int{4, 5}, ids[2])

	require.Contains(t, p1.ProvisionedIDs(), 7)
}

func TestDisplacement(t *testing.T) {
	a, procs := smallMachine(t)
	p1, p2 := procs[0], procs[1]

	a.AllocAny(p1, 1)
	checkAll(t, a, procs)
	require.Equal(t, []int{0}, p1.AllocatedIDs())

	a.Provision(p2, 0)
	a.AllocSpecific(p2, 0)
	checkAll(t, a, procs)

	require.Equal(t, []int{0}, p2.AllocatedIDs())
	require.Equal(t, 1, p1.NumAllocated())
	require.NotEqual(t, 0, p1.AllocatedIDs()[0])
}

func TestAllocSpecificOnAlreadyOwnedCoreIsNoop(t *testing.T) {
	a, procs := smallMachine(t)
	p1 := procs[0]

	a.Provision(p1, 3)
	a.AllocSpecific(p1, 3)
	checkAll(t, a, procs)
	require.Equal(t, []int{3}, p1.AllocatedIDs())

	a.AllocSpecific(p1, 3)
	checkAll(t, a, procs)
	require.Equal(t, []int{3}, p1.AllocatedIDs())
}

func TestFreeAndReallocate(t *testing.T) {
	a, procs := smallMachine(t)
	p1 := procs[0]

	a.AllocAny(p1, 2)
	checkAll(t, a, procs)
	ids := p1.AllocatedIDs()
	require.Equal(t, 2, len(ids))
	c0, c1 := ids[0], ids[1]

	require.Equal(t, 0, a.Free(p1, c0))
	checkAll(t, a, procs)
	require.Equal(t, []int{c1}, p1.AllocatedIDs())

	a.AllocAny(p1, 1)
	checkAll(t, a, procs)
	require.Equal(t, []int{c1, c0}, p1.AllocatedIDs())
}

func TestExhaustion(t *testing.T) {
	a, procs := smallMachine(t)
	p1, p2 := procs[0], procs[1]

	a.AllocAny(p1, 10)
	checkAll(t, a, procs)
	require.Equal(t, 8, p1.NumAllocated())
	allocated, free := a.Occupancy()
	require.Equal(t, 8, allocated)
	require.Equal(t, 0, free)

	a.AllocAny(p2, 1)
	checkAll(t, a, procs)
	require.Equal(t, 0, p2.NumAllocated())
}

func TestFreeUnownedCoreFails(t *testing.T) {
	a, procs := smallMachine(t)
	p1, p2 := procs[0], procs[1]

	a.AllocAny(p1, 1)
	id := p1.AllocatedIDs()[0]

	require.Equal(t, -1, a.Free(p2, id))
	checkAll(t, a, procs)
	require.Equal(t, []int{id}, p1.AllocatedIDs())
}

func TestRoundTrip(t *testing.T) {
	a, procs := smallMachine(t)
	p1 := procs[0]

	a.AllocAny(p1, 4)
	checkAll(t, a, procs)

	for _, id := range append([]int{}, p1.AllocatedIDs()...) {
		require.Equal(t, 0, a.Free(p1, id))
	}
	checkAll(t, a, procs)

	allocated, free := a.Occupancy()
	require.Equal(t, 0, allocated)
	require.Equal(t, 8, free)
	require.Equal(t, 0, p1.NumAllocated())
}

func TestDeprovisionByNonOwnerIsNoop(t *testing.T) {
	a, procs := smallMachine(t)
	p1, p2 := procs[0], procs[1]

	a.Provision(p1, 3)
	a.Deprovision(p2, 3)
	checkAll(t, a, procs)

	require.Contains(t, p1.ProvisionedIDs(), 3)
}

func TestProvisionReplacesPreviousProvisionee(t *testing.T) {
	a, procs := smallMachine(t)
	p1, p2 := procs[0], procs[1]

	a.Provision(p1, 2)
	a.Provision(p2, 2)
	checkAll(t, a, procs)

	require.NotContains(t, p1.ProvisionedIDs(), 2)
	require.Contains(t, p2.ProvisionedIDs(), 2)
}

func TestFreeAllReleasesEverything(t *testing.T) {
	a, procs := smallMachine(t)
	p1 := procs[0]

	a.AllocAny(p1, 3)
	a.FreeAll(p1)
	checkAll(t, a, procs)

	require.Equal(t, 0, p1.NumAllocated())
	allocated, _ := a.Occupancy()
	require.Equal(t, 0, allocated)
}

func TestDumpMentionsOwningProcess(t *testing.T) {
	a, procs := smallMachine(t)
	p1 := procs[0]

	a.AllocAny(p1, 1)
	id := p1.AllocatedIDs()[0]

	var buf bytes.Buffer
	a.Dump(&buf)

	require.Contains(t, buf.String(), "numa 0")
	require.Contains(t, buf.String(), fmt.Sprintf("core %d: allocated-to=P1", id))
}
