// Copyright 2025 go-clops Authors
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

package sort

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/go-clops/clo"
	"github.com/ajroetker/go-clops/clo/device/cpudev"
)

func mustABitonic(t *testing.T, options string) *abitonic {
	t.Helper()
	a, err := newABitonic(options)
	require.NoError(t, err)
	return a
}

func planKernels(plan []planStep) map[int]string {
	names := make(map[int]string, len(plan))
	for step := 1; step < len(plan); step++ {
		names[step] = abitonicKernels[plan[step].kernel].name
	}
	return names
}

func TestKernelTable(t *testing.T) {
	seen := make(map[string]bool)
	for id, k := range abitonicKernels {
		assert.False(t, seen[k.name], "duplicate %s", k.name)
		seen[k.name] = true
		assert.Equal(t, 1<<k.fusedSteps, k.vectorWidth, k.name)
		if k.usesLocal() {
			assert.Contains(t, stepCandidates[k.step], id, "%s is not a candidate of its step", k.name)
		}
	}
	for step, ids := range stepCandidates {
		for _, id := range ids {
			assert.Equal(t, step, abitonicKernels[id].step)
		}
	}
	for k, id := range privateKernels[1:] {
		assert.Equal(t, k+1, abitonicKernels[id].fusedSteps)
	}
}

func TestStrategyDefaults(t *testing.T) {
	a := mustABitonic(t, "")
	plan := a.strategy(1<<20, 256, 4, 64<<10)
	require.Len(t, plan, 21)
	names := planKernels(plan)
	assert.Equal(t, "abitonic_any", names[1])
	assert.Equal(t, "abitonic_local_s2", names[2])
	assert.Equal(t, "abitonic_hyb_s3_3s8v", names[3])
	assert.Equal(t, "abitonic_hyb_s4_4s16v", names[4])
	assert.Equal(t, "abitonic_local_s5", names[5])
	assert.Equal(t, "abitonic_hyb_s6_3s8v", names[6])
	assert.Equal(t, "abitonic_hyb_s8_4s16v", names[8])
	assert.Equal(t, "abitonic_hyb_s10_2s4v", names[10])
	// local_s11 would need 1024 work-items.
	assert.Equal(t, "abitonic_any", names[11])
	assert.Equal(t, "abitonic_hyb_s12_4s16v", names[12])
	for step := 13; step <= 20; step++ {
		assert.Equal(t, "abitonic_priv_4s16v", names[step], "step %d", step)
		assert.Equal(t, 1<<16, plan[step].gws)
		assert.Equal(t, 4, plan[step].numSteps)
		assert.True(t, plan[step].setStep)
	}

	s4 := plan[4]
	assert.Equal(t, 1<<16, s4.gws)
	assert.Equal(t, 256, s4.lws)
	assert.Equal(t, 4*256*16, s4.localMem)
	assert.Equal(t, 4, s4.numSteps)
	assert.False(t, s4.setStep)
}

func TestStrategyInvariants(t *testing.T) {
	for _, opts := range []string{"", "maxps=2", "minps=2", "minps=3,maxps=3", "maxsfs=6", "maxps=1"} {
		a := mustABitonic(t, opts)
		for _, lwsMax := range []int{1, 4, 64, 1024} {
			for _, localMem := range []int{64, 4096, 1 << 20} {
				for logP := 1; logP <= 22; logP++ {
					p := 1 << logP
					plan := a.strategy(p, min(lwsMax, p/2), 8, localMem)
					for step := 1; step < len(plan); step++ {
						st := plan[step]
						k := abitonicKernels[st.kernel]
						assert.Positive(t, st.lws)
						assert.Zero(t, st.gws%st.lws, "%s: gws must be a multiple of lws", k.name)
						assert.LessOrEqual(t, st.localMem, localMem)
						assert.LessOrEqual(t, st.numSteps, step)
						if st.setStep {
							assert.Zero(t, st.localMem)
							assert.Equal(t, p>>st.numSteps, st.gws)
							continue
						}
						// A finishing kernel covers the whole step in one block.
						assert.Equal(t, step, st.numSteps)
						assert.GreaterOrEqual(t, st.lws<<k.fusedSteps, 1<<step, "%s at step %d", k.name, step)
						assert.GreaterOrEqual(t, k.fusedSteps, a.minps)
						assert.LessOrEqual(t, k.fusedSteps, a.maxps)
					}
				}
			}
		}
	}
}

func TestStrategyOptions(t *testing.T) {
	// Fusing at most two steps skips the 3s8v and 4s16v kernels.
	names := planKernels(mustABitonic(t, "maxps=2").strategy(1<<14, 256, 4, 64<<10))
	assert.Equal(t, "abitonic_local_s3", names[3])
	assert.Equal(t, "abitonic_hyb_s4_2s4v", names[4])
	assert.Equal(t, "abitonic_hyb_s8_2s4v", names[8])
	assert.Equal(t, "abitonic_priv_2s4v", names[11])
	assert.Equal(t, "abitonic_priv_2s4v", names[14])

	// maxsfs bounds the finishing kernels.
	names = planKernels(mustABitonic(t, "maxsfs=3").strategy(1<<10, 256, 4, 64<<10))
	assert.Equal(t, "abitonic_hyb_s3_3s8v", names[3])
	assert.Equal(t, "abitonic_priv_4s16v", names[4])

	// Too little local memory leaves only global kernels.
	names = planKernels(mustABitonic(t, "").strategy(1<<10, 256, 4, 16))
	assert.Equal(t, "abitonic_any", names[2])
	assert.Equal(t, "abitonic_any", names[8])

	// With a single work-item only kernels fusing minps steps can finish.
	names = planKernels(mustABitonic(t, "minps=4").strategy(1<<6, 1, 4, 64<<10))
	assert.Equal(t, "abitonic_any", names[2])
	assert.Equal(t, "abitonic_any", names[3])
	assert.Equal(t, "abitonic_hyb_s4_4s16v", names[4])
	assert.Equal(t, "abitonic_priv_4s16v", names[5])
}

func TestABitonicWorkGroupCaps(t *testing.T) {
	for _, maxWG := range []int{1, 2, 16, 256} {
		h, _ := newHandle(t, cpudev.Options{MaxWorkGroupSize: maxWG, LocalMemSize: 32 << 10})
		for _, opts := range []string{"", "minps=2,maxps=3", "maxps=1", "maxsfs=4"} {
			s := newSorter(t, "abitonic", h, clo.Short, WithOptions(opts))
			r := rand.New(rand.NewPCG(uint64(maxWG), 1))
			for _, n := range []int{2, 9, 333, 4096, 5000} {
				in := make([]int16, n)
				for i := range in {
					in[i] = int16(r.IntN(1 << 16))
				}
				want := slices.Sorted(slices.Values(in))
				require.NoError(t, s.SortHost(nil, nil, clo.AsBytes(in), nil, n, 0))
				require.Equal(t, want, in, "maxWG=%d opts=%q n=%d", maxWG, opts, n)
			}
		}
	}
}
