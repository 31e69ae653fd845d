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

// Package cpuallocator hands out physical cores on a multi-socket,
// multi-NUMA machine to opaque process handles, honoring per-process
// provisioning promises and packing allocations tightly in the hardware
// hierarchy. It is not internally concurrent: every public entry point
// must run under the Allocator's own lock, which is exactly what they do.
package cpuallocator

import (
	"fmt"
	"io"
	"sync"

	logger "github.com/intel/core-allocator/pkg/log"
	"github.com/intel/core-allocator/pkg/topology"
)

const logSource = "cpuallocator"

var log = logger.NewLogger(logSource)

// RelocationObserver is notified when a provisioning-driven allocation
// strips a core from its previous owner. Implementations must not
// re-enter the allocator from the callback.
type RelocationObserver interface {
	OnRelocated(owner *Process, coreID int)
}

type nopObserver struct{}

func (nopObserver) OnRelocated(owner *Process, coreID int) {
	log.Debug("relocating %s off core %d (no-op observer)", owner.Name, coreID)
}

// Option configures an Allocator at construction time.
type Option func(*Allocator) error

// WithRelocationObserver sets the hook invoked whenever a displacement
// strips a core from its current owner.
func WithRelocationObserver(obs RelocationObserver) Option {
	return func(a *Allocator) error {
		if obs == nil {
			return fmt.Errorf("cpuallocator: nil relocation observer")
		}
		a.observer = obs
		return nil
	}
}

// Allocator is the core allocator: the resource tree plus the public
// entry points operating on it.
type Allocator struct {
	sync.Mutex // we're lockable

	tree     *Tree
	observer RelocationObserver
}

// NewAllocator builds the resource tree and distance table from a
// topology descriptor and returns a ready-to-use allocator.
func NewAllocator(info *topology.Info, opts ...Option) (*Allocator, error) {
	tree, err := Build(info)
	if err != nil {
		return nil, err
	}

	a := &Allocator{
		tree:     tree,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}

	log.Info("allocator initialized with %d cores", tree.NumCores())

	return a, nil
}

// NumCores is the total number of cores known to the allocator.
func (a *Allocator) NumCores() int { return a.tree.NumCores() }

// Occupancy returns (allocated, free) core counts.
func (a *Allocator) Occupancy() (allocated, free int) {
	a.Lock()
	defer a.Unlock()
	return a.tree.Occupancy()
}

// Dump writes the current tree and core ownership to w, for debugging.
func (a *Allocator) Dump(w io.Writer) {
	a.Lock()
	defer a.Unlock()
	a.tree.Dump(w)
}

// AllocAny grants up to amount best-fit cores to p. Fewer than amount
// cores may be granted if the machine runs out of free cores; running
// out is ordinary resource exhaustion, not an error.
func (a *Allocator) AllocAny(p *Process, amount int) {
	a.Lock()
	defer a.Unlock()
	a.allocAny(p, amount)
}

func (a *Allocator) allocAny(p *Process, amount int) {
	if amount > a.tree.NumCores() {
		amount = a.tree.NumCores()
	}
	for i := 0; i < amount; i++ {
		var c *PhysicalCore
		if p.allocMe.Len() == 0 {
			c = a.tree.findFirstCore(p)
		} else {
			c = a.tree.findBestCore(p)
		}
		if c == nil {
			log.Debug("%s: no free core left, granted %d/%d", p.Name, i, amount)
			return
		}
		a.allocCore(p, c)
		p.allocMe.pushBack(c)
	}
}

// AllocSpecific grants a specific, provisioned core to p, displacing
// its current owner if it has one. It is a silent no-op if the core is
// not provisioned to p, or if p already owns it.
func (a *Allocator) AllocSpecific(p *Process, coreID int) {
	a.Lock()
	defer a.Unlock()
	a.allocSpecific(p, coreID)
}

func (a *Allocator) allocSpecific(p *Process, coreID int) {
	if coreID < 0 || coreID >= a.tree.NumCores() {
		return
	}
	c := a.tree.Core(coreID)
	if c.ProvisionedTo != p || c.AllocatedTo == p {
		return
	}
	a.allocCore(p, c)
	p.allocMe.pushBack(c)
}

// Free returns core coreID from p. It returns 0 on success, -1 if p
// does not currently own the core.
func (a *Allocator) Free(p *Process, coreID int) int {
	a.Lock()
	defer a.Unlock()
	return a.free(p, coreID)
}

func (a *Allocator) free(p *Process, coreID int) int {
	if coreID < 0 || coreID >= a.tree.NumCores() {
		return -1
	}
	c := a.tree.Core(coreID)
	if c.AllocatedTo != p {
		return -1
	}

	c.AllocatedTo = nil
	p.allocMe.remove(c)
	if c.ProvisionedTo == p {
		if c.provHook.list != nil {
			c.provHook.list.remove(c)
		}
		p.provNotAllocMe.pushBack(c)
	}
	a.tree.decref(coreID)

	log.Debug("%s: freed core %d", p.Name, coreID)
	return 0
}

// FreeAll returns every core currently held by p, for process teardown.
func (a *Allocator) FreeAll(p *Process) {
	a.Lock()
	defer a.Unlock()
	for _, id := range p.AllocatedIDs() {
		a.free(p, id)
	}
}

// Provision adds or moves a provisioning promise for p. If the core was
// already provisioned to another process, that promise is withdrawn
// first, so a core is never provisioned to more than one process.
func (a *Allocator) Provision(p *Process, coreID int) {
	a.Lock()
	defer a.Unlock()
	a.provision(p, coreID)
}

func (a *Allocator) provision(p *Process, coreID int) {
	if coreID < 0 || coreID >= a.tree.NumCores() {
		return
	}
	c := a.tree.Core(coreID)
	if c.ProvisionedTo == p {
		return
	}
	if c.ProvisionedTo != nil {
		a.clearProvision(c)
	}
	c.ProvisionedTo = p
	if c.AllocatedTo == p {
		p.provAllocMe.pushBack(c)
	} else {
		p.provNotAllocMe.pushBack(c)
	}
}

// Deprovision withdraws p's provisioning promise for coreID. It is a
// silent no-op if the core is not provisioned to p.
func (a *Allocator) Deprovision(p *Process, coreID int) {
	a.Lock()
	defer a.Unlock()
	a.deprovision(p, coreID)
}

func (a *Allocator) deprovision(p *Process, coreID int) {
	if coreID < 0 || coreID >= a.tree.NumCores() {
		return
	}
	c := a.tree.Core(coreID)
	if c.ProvisionedTo != p {
		return
	}
	a.clearProvision(c)
}

func (a *Allocator) clearProvision(c *PhysicalCore) {
	if c.provHook.list != nil {
		c.provHook.list.remove(c)
	}
	c.ProvisionedTo = nil
}

// allocCore applies one allocation of c to p, including the
// provisioning-driven displacement of a previous owner and granting
// that owner one replacement core in its place.
func (a *Allocator) allocCore(p *Process, c *PhysicalCore) {
	owner := c.AllocatedTo

	a.tree.incref(c.Info.ID)

	if c.ProvisionedTo == p {
		if c.provHook.list != nil {
			c.provHook.list.remove(c)
		}
		p.provAllocMe.pushBack(c)

		if owner != nil {
			owner.allocMe.remove(c)
			log.Info("displacing %s from core %d for %s", owner.Name, c.Info.ID, p.Name)
			a.observer.OnRelocated(owner, c.Info.ID)
			a.allocAny(owner, 1)
		}
	}

	c.AllocatedTo = p
}

// incref marks coreID busy and, the first time it transitions from free
// to busy, propagates the transition to every ancestor. Re-incref of an
// already-busy core (an ownership transfer) is a no-op here: refcounts
// track "allocated to some process", not which one, so a transfer of an
// already-busy core doesn't change any count.
func (t *Tree) incref(coreID int) {
	cn := &t.nodes[Core][coreID]
	if cn.refcount[Core] != 0 {
		return
	}
	cn.refcount[Core] = 1

	n := cn
	for lvl := Core; lvl < NUMA; lvl++ {
		n = &t.nodes[lvl+1][n.parent]
		n.refcount[Core]++
	}
}

// decref marks coreID free and propagates the transition to every
// ancestor. It panics on underflow: that indicates a bookkeeping bug,
// not a recoverable condition.
func (t *Tree) decref(coreID int) {
	cn := &t.nodes[Core][coreID]
	if cn.refcount[Core] == 0 {
		panic(fmt.Sprintf("cpuallocator: decref of already-free core %d", coreID))
	}
	cn.refcount[Core] = 0

	n := cn
	for lvl := Core; lvl < NUMA; lvl++ {
		n = &t.nodes[lvl+1][n.parent]
		if n.refcount[Core] <= 0 {
			panic(fmt.Sprintf("cpuallocator: refcount underflow at %s node %d", (lvl + 1), n.id))
		}
		n.refcount[Core]--
	}
}
