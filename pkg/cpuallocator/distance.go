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

// Packing distances. Only the relative order matters, not the exact
// values.
const (
	distSame      = 0
	distSameCPU   = 1
	distSameSkt   = 2
	distSameNUMA  = 3
	distCrossNUMA = 4
)

// buildDistanceTable computes the N x N core distance matrix once, at
// build time, by walking each pair's ancestor chains.
func buildDistanceTable(t *Tree) [][]int {
	n := len(t.cores)
	dist := make([][]int, n)
	for i := range dist {
		dist[i] = make([]int, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			d := coreDistance(t, i, j)
			dist[i][j] = d
			dist[j][i] = d
		}
	}
	return dist
}

func coreDistance(t *Tree, i, j int) int {
	if i == j {
		return distSame
	}
	if t.ancestor(i, CPU).id == t.ancestor(j, CPU).id {
		return distSameCPU
	}
	if t.ancestor(i, Socket).id == t.ancestor(j, Socket).id {
		return distSameSkt
	}
	if t.ancestor(i, NUMA).id == t.ancestor(j, NUMA).id {
		return distSameNUMA
	}
	return distCrossNUMA
}

// Distance returns the precomputed packing distance between two cores.
func (t *Tree) Distance(i, j int) int {
	return t.dist[i][j]
}

// sumDistance computes the total packing distance from c to every core
// in s: the lower the total, the closer c packs against s as a whole.
func (t *Tree) sumDistance(c int, s *coreList) int {
	total := 0
	s.Each(func(p *PhysicalCore) {
		total += t.dist[c][p.Info.ID]
	})
	return total
}
