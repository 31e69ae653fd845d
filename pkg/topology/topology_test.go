// Copyright The NRI Plugins Authors. All Rights Reserved.
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

package topology

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func smallCounts() Counts {
	return Counts{NUMANodes: 1, SocketsPerNUMA: 2, CPUsPerSocket: 2, CoresPerCPU: 2}
}

func TestCounts(t *testing.T) {
	c := smallCounts()
	require.Equal(t, 2, c.NumSockets())
	require.Equal(t, 4, c.NumCPUs())
	require.Equal(t, 8, c.NumCores())
}

func TestGenerate(t *testing.T) {
	info, err := Generate(smallCounts())
	require.NoError(t, err)
	require.Len(t, info.Cores, 8)

	for id, c := range info.Cores {
		require.Equal(t, id, c.ID)
		require.True(t, c.Online)
	}

	// core 4 is the first core of the second socket.
	require.Equal(t, 1, info.Cores[4].Socket)
	require.Equal(t, 0, info.Cores[0].Socket)
	require.Equal(t, 8, len(info.OnlineCores()))
}

func TestNewInfoRejectsWrongCount(t *testing.T) {
	_, err := NewInfo(smallCounts(), []CoreInfo{{ID: 0}})
	require.Error(t, err)
}

func TestNewInfoRejectsDuplicateID(t *testing.T) {
	cores := make([]CoreInfo, 8)
	for i := range cores {
		cores[i] = CoreInfo{ID: 0, Online: true}
	}
	_, err := NewInfo(smallCounts(), cores)
	require.Error(t, err)
}

func TestNewInfoSortsByID(t *testing.T) {
	generated, err := Generate(smallCounts())
	require.NoError(t, err)

	shuffled := make([]CoreInfo, len(generated.Cores))
	copy(shuffled, generated.Cores)
	shuffled[0], shuffled[7] = shuffled[7], shuffled[0]

	info, err := NewInfo(smallCounts(), shuffled)
	require.NoError(t, err)
	for id, c := range info.Cores {
		require.Equal(t, id, c.ID)
	}
}
