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

import "github.com/intel/core-allocator/pkg/utils/cpuset"

// Process is the allocator's view of a schedulable entity: an opaque
// handle identified by Name, carrying the three intrusive core-reference
// sequences the allocator maintains for it. Callers own the handle's
// lifetime; the allocator never creates or destroys one.
type Process struct {
	Name string

	// allocMe holds every core currently allocated to this process.
	allocMe *coreList
	// provAllocMe holds cores provisioned to and allocated to this process.
	provAllocMe *coreList
	// provNotAllocMe holds cores provisioned to this process but
	// currently allocated elsewhere or to nobody.
	provNotAllocMe *coreList
}

// NewProcess creates a process handle with empty allocation state.
func NewProcess(name string) *Process {
	return &Process{
		Name:           name,
		allocMe:        newCoreList(func(c *PhysicalCore) *hook { return &c.allocHook }),
		provAllocMe:    newCoreList(func(c *PhysicalCore) *hook { return &c.provHook }),
		provNotAllocMe: newCoreList(func(c *PhysicalCore) *hook { return &c.provHook }),
	}
}

// NumAllocated is the number of cores currently allocated to p.
func (p *Process) NumAllocated() int { return p.allocMe.Len() }

// AllocatedIDs returns the ids of cores currently allocated to p, in
// allocation order.
func (p *Process) AllocatedIDs() []int { return p.allocMe.IDs() }

// ProvisionedIDs returns the ids of every core provisioned to p,
// allocated-to-it first, then not-allocated-to-it.
func (p *Process) ProvisionedIDs() []int {
	ids := p.provAllocMe.IDs()
	return append(ids, p.provNotAllocMe.IDs()...)
}

// AllocatedCPUSet returns p's allocated cores as a CPUSet, for callers
// that want a set view rather than the ordered allocation list.
func (p *Process) AllocatedCPUSet() cpuset.CPUSet {
	return cpuset.New(p.AllocatedIDs()...)
}

// ProvisionedCPUSet returns p's provisioned cores (both lists) as a CPUSet.
func (p *Process) ProvisionedCPUSet() cpuset.CPUSet {
	return cpuset.New(p.ProvisionedIDs()...)
}
