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

// coresPerLevel returns how many cores live under one node at the given
// level, given the tree's fan-out.
func (t *Tree) coresPerLevel(level Level) int {
	c := t.counts
	switch level {
	case Core:
		return 1
	case CPU:
		return c.CoresPerCPU
	case Socket:
		return c.CoresPerCPU * c.CPUsPerSocket
	case NUMA:
		return c.CoresPerCPU * c.CPUsPerSocket * c.SocketsPerNUMA
	default:
		return 0
	}
}

// coreRange returns the contiguous [start, start+count) core-id range
// under the node at (level, id).
func (t *Tree) coreRange(level Level, id int) (start, count int) {
	n := t.coresPerLevel(level)
	return id * n, n
}

// findBestCore picks the best free core for p: it prefers a
// provisioned-but-not-mine core closest to the process's existing
// allocation, falling back to the closest free sibling, widening the
// search level by level and finally to the whole machine. It returns nil
// only when no core is free.
func (t *Tree) findBestCore(p *Process) *PhysicalCore {
	// Phase A: best provisioned.
	if p.provNotAllocMe.Len() > 0 {
		var best *PhysicalCore
		bestD := 0
		p.provNotAllocMe.Each(func(c *PhysicalCore) {
			if c.AllocatedTo != nil {
				// Not free: fall through to phase B rather than
				// handing back a core that's still in use elsewhere.
				return
			}
			d := t.sumDistance(c.Info.ID, p.allocMe)
			if best == nil || d < bestD {
				best, bestD = c, d
			}
		})
		if best != nil {
			return best
		}
	}

	// Phase B: best sibling, widening from CPU up to NUMA.
	for lvl := CPU; lvl <= NUMA; lvl++ {
		var best *PhysicalCore
		bestD := 0
		bestUnprov := false
		found := false
		visited := make(map[int]bool)

		p.allocMe.Each(func(s *PhysicalCore) {
			anc := t.ancestor(s.Info.ID, lvl)
			start, count := t.coreRange(lvl, anc.id)
			for cid := start; cid < start+count; cid++ {
				if visited[cid] {
					continue
				}
				visited[cid] = true

				c := &t.cores[cid]
				if c.AllocatedTo != nil {
					continue
				}
				d := t.sumDistance(cid, p.allocMe)
				unprov := c.ProvisionedTo == nil

				switch {
				case !found:
					best, bestD, bestUnprov, found = c, d, unprov, true
				case d < bestD:
					best, bestD, bestUnprov = c, d, unprov
				case d == bestD && unprov && !bestUnprov:
					best, bestUnprov = c, unprov
				}
			}
		})

		if found {
			return best
		}
	}

	// No free core shares a NUMA node with p's cores: take the closest
	// free core anywhere in the machine.
	var best *PhysicalCore
	bestD := 0
	for cid := range t.cores {
		c := &t.cores[cid]
		if c.AllocatedTo != nil {
			continue
		}
		d := t.sumDistance(cid, p.allocMe)
		if best == nil || d < bestD {
			best, bestD = c, d
		}
	}
	return best
}

// findFirstCore picks a core for p when it has no existing allocation
// to anchor packing against. It prefers a provisioned core outright,
// otherwise spreads the first placement across NUMA/socket/cpu by
// always descending into the least-occupied sibling with room.
func (t *Tree) findFirstCore(p *Process) *PhysicalCore {
	if p.provNotAllocMe.Len() > 0 {
		return p.provNotAllocMe.Head()
	}

	candidates := make([]int, len(t.nodes[NUMA]))
	for i := range candidates {
		candidates[i] = i
	}

	level := NUMA
	chosen := -1
	for {
		capacity := t.coresPerLevel(level)
		best := -1
		bestRef := 0
		for _, id := range candidates {
			n := t.node(level, id)
			if n.refcount[Core] >= capacity {
				continue
			}
			if best == -1 || n.refcount[Core] < bestRef {
				best, bestRef = id, n.refcount[Core]
			}
		}
		if best == -1 {
			return nil
		}
		chosen = best

		if level == Core {
			break
		}
		n := t.node(level, chosen)
		next := make([]int, n.childCount)
		for i := 0; i < n.childCount; i++ {
			next[i] = n.childStart + i
		}
		candidates = next
		level--
	}

	return &t.cores[chosen]
}
