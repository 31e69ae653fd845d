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

// hook is one intrusive doubly-linked-list membership slot embedded in a
// PhysicalCore. A core can be a member of at most one list using a given
// hook at a time; coreList.remove is O(1) because the hook remembers
// which list it is currently linked into.
type hook struct {
	prev, next *PhysicalCore
	list       *coreList
}

// coreList is an intrusive, index-free (pointer-based) doubly linked
// list of PhysicalCores. Several coreLists can share the same physical
// cores over time as long as each uses a distinct hook field on
// PhysicalCore -- sel picks which one this list manipulates.
type coreList struct {
	head, tail *PhysicalCore
	size       int
	sel        func(*PhysicalCore) *hook
}

func newCoreList(sel func(*PhysicalCore) *hook) *coreList {
	return &coreList{sel: sel}
}

// pushBack appends c to the tail of the list (used for ordinary inserts).
func (l *coreList) pushBack(c *PhysicalCore) {
	h := l.sel(c)
	h.prev, h.next, h.list = l.tail, nil, l
	if l.tail != nil {
		l.sel(l.tail).next = c
	} else {
		l.head = c
	}
	l.tail = c
	l.size++
}

// remove unlinks c from the list. It is a no-op if c is not currently a
// member of this particular list.
func (l *coreList) remove(c *PhysicalCore) {
	h := l.sel(c)
	if h.list != l {
		return
	}
	if h.prev != nil {
		l.sel(h.prev).next = h.next
	} else {
		l.head = h.next
	}
	if h.next != nil {
		l.sel(h.next).prev = h.prev
	} else {
		l.tail = h.prev
	}
	h.prev, h.next, h.list = nil, nil, nil
	l.size--
}

// Len returns the number of cores currently linked into the list.
func (l *coreList) Len() int {
	return l.size
}

// Head returns the first core in the list, or nil if it is empty.
func (l *coreList) Head() *PhysicalCore {
	return l.head
}

// Each calls fn for every core in the list, head to tail.
func (l *coreList) Each(fn func(c *PhysicalCore)) {
	for c := l.head; c != nil; c = l.sel(c).next {
		fn(c)
	}
}

// IDs returns the core ids currently in the list, head to tail.
func (l *coreList) IDs() []int {
	ids := make([]int, 0, l.size)
	l.Each(func(c *PhysicalCore) { ids = append(ids, c.Info.ID) })
	return ids
}
