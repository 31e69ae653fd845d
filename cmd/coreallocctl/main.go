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

package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/intel/core-allocator/pkg/cpuallocator"
	logger "github.com/intel/core-allocator/pkg/log"
	"github.com/intel/core-allocator/pkg/topology"
)

var log = logger.NewLogger("coreallocctl")

func main() {
	var (
		numaNodes      = flag.Int("numa", 1, "NUMA nodes")
		socketsPerNUMA = flag.Int("sockets-per-numa", 2, "sockets per NUMA node")
		cpusPerSocket  = flag.Int("cpus-per-socket", 2, "cpu packages per socket")
		coresPerCPU    = flag.Int("cores-per-cpu", 2, "cores per cpu package")
		scenarioFile   = flag.String("scenario-file", "", "YAML file with a list of steps to run")
		dump           = flag.Bool("dump", true, "dump the resulting tree and per-process lists")
		check          = flag.Bool("check", true, "check invariants after running the scenario")
	)
	flag.Parse()

	info, err := topology.Generate(topology.Counts{
		NUMANodes:      *numaNodes,
		SocketsPerNUMA: *socketsPerNUMA,
		CPUsPerSocket:  *cpusPerSocket,
		CoresPerCPU:    *coresPerCPU,
	})
	if err != nil {
		log.Error("failed to build topology: %v", err)
		os.Exit(1)
	}

	alloc, err := cpuallocator.NewAllocator(info)
	if err != nil {
		log.Error("failed to build allocator: %v", err)
		os.Exit(1)
	}

	scenario := &Scenario{}
	if *scenarioFile != "" {
		scenario, err = loadScenarioFile(*scenarioFile)
		if err != nil {
			log.Error("%v", err)
			os.Exit(1)
		}
	} else {
		for _, arg := range flag.Args() {
			step, err := parseStep(arg)
			if err != nil {
				log.Error("%v", err)
				os.Exit(1)
			}
			scenario.Steps = append(scenario.Steps, step)
		}
	}

	procs := map[string]*cpuallocator.Process{}
	procOf := func(name string) *cpuallocator.Process {
		p, ok := procs[name]
		if !ok {
			p = cpuallocator.NewProcess(name)
			procs[name] = p
		}
		return p
	}

	for _, s := range scenario.Steps {
		runStep(alloc, procOf, s)
	}

	if *check {
		names := make([]string, 0, len(procs))
		for name := range procs {
			names = append(names, name)
		}
		slices.Sort(names)

		all := make([]*cpuallocator.Process, 0, len(procs))
		for _, name := range names {
			all = append(all, procs[name])
		}
		if err := alloc.CheckInvariants(all); err != nil {
			log.Error("invariant check failed: %v", err)
			os.Exit(1)
		}
	}

	if *dump {
		dumpState(alloc, procs)
	}
}

func runStep(alloc *cpuallocator.Allocator, procOf func(string) *cpuallocator.Process, s Step) {
	p := procOf(s.Proc)
	switch s.Op {
	case "alloc":
		alloc.AllocAny(p, s.Amount)
	case "allocspecific":
		alloc.AllocSpecific(p, s.Core)
	case "free":
		alloc.Free(p, s.Core)
	case "provision":
		alloc.Provision(p, s.Core)
	case "deprovision":
		alloc.Deprovision(p, s.Core)
	default:
		log.Warn("ignoring unknown step op %q", s.Op)
	}
}

// parseStep parses a command-line scenario step of the form
// op:proc[:core-or-amount], e.g. "alloc:P1:3" or "free:P1:0".
func parseStep(arg string) (Step, error) {
	fields := strings.Split(arg, ":")
	if len(fields) < 2 || len(fields) > 3 || fields[0] == "" || fields[1] == "" {
		return Step{}, fmt.Errorf("coreallocctl: invalid step %q", arg)
	}
	var n int
	if len(fields) == 3 {
		v, err := strconv.Atoi(fields[2])
		if err != nil {
			return Step{}, fmt.Errorf("coreallocctl: invalid step %q", arg)
		}
		n = v
	}
	return Step{Op: fields[0], Proc: fields[1], Core: n, Amount: n}, nil
}

func dumpState(alloc *cpuallocator.Allocator, procs map[string]*cpuallocator.Process) {
	allocated, free := alloc.Occupancy()
	fmt.Printf("cores: %d allocated, %d free\n", allocated, free)
	alloc.Dump(os.Stdout)

	names := make([]string, 0, len(procs))
	for name := range procs {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		p := procs[name]
		fmt.Printf("  %s: allocated=%v provisioned=%v\n", name, p.AllocatedIDs(), p.ProvisionedIDs())
	}
}
