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

import "fmt"

// CheckInvariants verifies the allocator's bookkeeping is internally
// consistent for the given set of known processes: refcount sums and
// binary busy/free flags at every tree node, list membership and
// uniqueness across every process's three core lists, and conservation
// of the total core count. It is meant for tests and the coreallocctl
// harness, not the hot path.
func (a *Allocator) CheckInvariants(procs []*Process) error {
	a.Lock()
	defer a.Unlock()
	return a.tree.checkInvariants(procs)
}

func (t *Tree) checkInvariants(procs []*Process) error {
	// (1) sum property + (2) core binary, for every level.
	for lvl := CPU; lvl <= NUMA; lvl++ {
		for id := range t.nodes[lvl] {
			n := &t.nodes[lvl][id]
			sum := 0
			for i := 0; i < n.childCount; i++ {
				sum += t.nodes[lvl-1][n.childStart+i].refcount[Core]
			}
			if sum != n.refcount[Core] {
				return fmt.Errorf("sum property violated at %s %d: refcount[core]=%d, children sum=%d",
					lvl, id, n.refcount[Core], sum)
			}
		}
	}
	for id := range t.cores {
		c := &t.cores[id]
		n := &t.nodes[Core][id]
		if n.refcount[Core] != 0 && n.refcount[Core] != 1 {
			return fmt.Errorf("core %d refcount not binary: %d", id, n.refcount[Core])
		}
		if (n.refcount[Core] == 1) != (c.AllocatedTo != nil) {
			return fmt.Errorf("core %d refcount/ownership mismatch: refcount=%d allocatedTo=%v",
				id, n.refcount[Core], c.AllocatedTo)
		}
	}

	// (3) list membership + (4) uniqueness.
	allocOwner := make(map[int]*Process)
	provOwner := make(map[int]*Process)
	for _, p := range procs {
		var err error
		p.allocMe.Each(func(c *PhysicalCore) {
			if err == nil && c.AllocatedTo != p {
				err = fmt.Errorf("core %d in %s.allocMe but allocatedTo=%v", c.Info.ID, p.Name, c.AllocatedTo)
			}
			if prev, ok := allocOwner[c.Info.ID]; ok && err == nil {
				err = fmt.Errorf("core %d listed in both %s and %s allocMe", c.Info.ID, prev.Name, p.Name)
			}
			allocOwner[c.Info.ID] = p
		})
		if err != nil {
			return err
		}

		p.provAllocMe.Each(func(c *PhysicalCore) {
			if err == nil && (c.ProvisionedTo != p || c.AllocatedTo != p) {
				err = fmt.Errorf("core %d in %s.provAllocMe violates membership", c.Info.ID, p.Name)
			}
			if prev, ok := provOwner[c.Info.ID]; ok && err == nil {
				err = fmt.Errorf("core %d listed in both %s and %s provisioning lists", c.Info.ID, prev.Name, p.Name)
			}
			provOwner[c.Info.ID] = p
		})
		if err != nil {
			return err
		}

		p.provNotAllocMe.Each(func(c *PhysicalCore) {
			if err == nil && (c.ProvisionedTo != p || c.AllocatedTo == p) {
				err = fmt.Errorf("core %d in %s.provNotAllocMe violates membership", c.Info.ID, p.Name)
			}
			if prev, ok := provOwner[c.Info.ID]; ok && err == nil {
				err = fmt.Errorf("core %d listed in both %s and %s provisioning lists", c.Info.ID, prev.Name, p.Name)
			}
			provOwner[c.Info.ID] = p
		})
		if err != nil {
			return err
		}
	}

	// (5) conservation.
	allocated, free := t.Occupancy()
	if allocated+free != t.NumCores() {
		return fmt.Errorf("conservation violated: %d allocated + %d free != %d total",
			allocated, free, t.NumCores())
	}

	return nil
}
