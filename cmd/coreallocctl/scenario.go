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

// coreallocctl builds a topology from flags, drives the allocator
// through a scripted sequence of operations (given as command-line
// arguments or in a scenario file), and dumps the resulting tree and
// per-process lists. The scenario file holds only the steps; the
// topology always comes from the flags. It has no kernel or
// container runtime of its own; actually running a process on the
// cores it's granted is somebody else's job.
package main

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// Step is one scripted allocator call.
type Step struct {
	Op     string `json:"op"`
	Proc   string `json:"proc"`
	Core   int    `json:"core,omitempty"`
	Amount int    `json:"amount,omitempty"`
}

// Scenario is an ordered list of steps, optionally loaded from a YAML
// file via -scenario-file.
type Scenario struct {
	Steps []Step `json:"steps"`
}

func loadScenarioFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("coreallocctl: failed to read scenario file %s: %w", path, err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("coreallocctl: failed to parse scenario file %s: %w", path, err)
	}
	return &s, nil
}
