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
	"math"

	"github.com/ajroetker/go-clops/clo"
	"github.com/ajroetker/go-clops/clo/device"
)

// family groups abitonic kernels by how they use memory.
type family uint8

const (
	// familyAny runs one step per work-item pair in global memory.
	familyAny family = iota
	// familyPrivate runs several steps per work-item in private memory.
	familyPrivate
	// familyLocal finishes a stage in local memory, one step per round.
	familyLocal
	// familyHybrid finishes a stage in local memory, several steps per
	// round.
	familyHybrid
)

// abitonicKernel describes one kernel of the abitonic library.
type abitonicKernel struct {
	name        string
	family      family
	fusedSteps  int // steps per round
	vectorWidth int // elements held by a work-item, 2^fusedSteps
	step        int // step a local or hybrid kernel starts at
}

// usesLocal reports whether the kernel takes a local memory argument
// instead of the step number.
func (k abitonicKernel) usesLocal() bool {
	return k.family == familyLocal || k.family == familyHybrid
}

const (
	kAny = iota
	kPriv2s4v
	kPriv3s8v
	kPriv4s16v
	kLocalS2
	kLocalS3
	kLocalS4
	kLocalS5
	kLocalS6
	kLocalS7
	kLocalS8
	kLocalS9
	kLocalS10
	kLocalS11
	kHybS3x3s8v
	kHybS4x4s16v
	kHybS4x2s4v
	kHybS6x3s8v
	kHybS6x2s4v
	kHybS8x4s16v
	kHybS8x2s4v
	kHybS9x3s8v
	kHybS10x2s4v
	kHybS12x4s16v
	kHybS12x3s8v
	kHybS12x2s4v
)

var abitonicKernels = []abitonicKernel{
	kAny:          {"abitonic_any", familyAny, 1, 2, 0},
	kPriv2s4v:     {"abitonic_priv_2s4v", familyPrivate, 2, 4, 0},
	kPriv3s8v:     {"abitonic_priv_3s8v", familyPrivate, 3, 8, 0},
	kPriv4s16v:    {"abitonic_priv_4s16v", familyPrivate, 4, 16, 0},
	kLocalS2:      {"abitonic_local_s2", familyLocal, 1, 2, 2},
	kLocalS3:      {"abitonic_local_s3", familyLocal, 1, 2, 3},
	kLocalS4:      {"abitonic_local_s4", familyLocal, 1, 2, 4},
	kLocalS5:      {"abitonic_local_s5", familyLocal, 1, 2, 5},
	kLocalS6:      {"abitonic_local_s6", familyLocal, 1, 2, 6},
	kLocalS7:      {"abitonic_local_s7", familyLocal, 1, 2, 7},
	kLocalS8:      {"abitonic_local_s8", familyLocal, 1, 2, 8},
	kLocalS9:      {"abitonic_local_s9", familyLocal, 1, 2, 9},
	kLocalS10:     {"abitonic_local_s10", familyLocal, 1, 2, 10},
	kLocalS11:     {"abitonic_local_s11", familyLocal, 1, 2, 11},
	kHybS3x3s8v:   {"abitonic_hyb_s3_3s8v", familyHybrid, 3, 8, 3},
	kHybS4x4s16v:  {"abitonic_hyb_s4_4s16v", familyHybrid, 4, 16, 4},
	kHybS4x2s4v:   {"abitonic_hyb_s4_2s4v", familyHybrid, 2, 4, 4},
	kHybS6x3s8v:   {"abitonic_hyb_s6_3s8v", familyHybrid, 3, 8, 6},
	kHybS6x2s4v:   {"abitonic_hyb_s6_2s4v", familyHybrid, 2, 4, 6},
	kHybS8x4s16v:  {"abitonic_hyb_s8_4s16v", familyHybrid, 4, 16, 8},
	kHybS8x2s4v:   {"abitonic_hyb_s8_2s4v", familyHybrid, 2, 4, 8},
	kHybS9x3s8v:   {"abitonic_hyb_s9_3s8v", familyHybrid, 3, 8, 9},
	kHybS10x2s4v:  {"abitonic_hyb_s10_2s4v", familyHybrid, 2, 4, 10},
	kHybS12x4s16v: {"abitonic_hyb_s12_4s16v", familyHybrid, 4, 16, 12},
	kHybS12x3s8v:  {"abitonic_hyb_s12_3s8v", familyHybrid, 3, 8, 12},
	kHybS12x2s4v:  {"abitonic_hyb_s12_2s4v", familyHybrid, 2, 4, 12},
}

// maxLocalStep is the largest step any local or hybrid kernel starts at.
const maxLocalStep = 12

// stepCandidates lists, per step, the kernels that can finish a stage from
// that step, in order of preference.
var stepCandidates = [maxLocalStep + 1][]int{
	2:  {kLocalS2},
	3:  {kHybS3x3s8v, kLocalS3},
	4:  {kHybS4x4s16v, kHybS4x2s4v, kLocalS4},
	5:  {kLocalS5},
	6:  {kHybS6x3s8v, kHybS6x2s4v, kLocalS6},
	7:  {kLocalS7},
	8:  {kHybS8x4s16v, kHybS8x2s4v, kLocalS8},
	9:  {kHybS9x3s8v, kLocalS9},
	10: {kHybS10x2s4v, kLocalS10},
	11: {kLocalS11},
	12: {kHybS12x4s16v, kHybS12x3s8v, kHybS12x2s4v},
}

// privateKernels maps fused steps to the private kernel advancing them.
var privateKernels = [5]int{1: kAny, 2: kPriv2s4v, 3: kPriv3s8v, 4: kPriv4s16v}

// abitonic holds the fused step limits.
type abitonic struct {
	minps  int
	maxps  int
	maxsfs int
}

func newABitonic(options string) (*abitonic, error) {
	opts, err := clo.ParseOptions(options, "minps", "maxps", "maxsfs")
	if err != nil {
		return nil, err
	}
	minps, err := clo.UintOption(opts, "minps", 1)
	if err != nil {
		return nil, err
	}
	maxps, err := clo.UintOption(opts, "maxps", 4)
	if err != nil {
		return nil, err
	}
	maxsfs, err := clo.UintOption(opts, "maxsfs", math.MaxUint64)
	if err != nil {
		return nil, err
	}
	switch {
	case minps < 1 || minps > 4:
		return nil, clo.InvalidArgs("minps=%d must be between 1 and 4", minps)
	case maxps < 1 || maxps > 4:
		return nil, clo.InvalidArgs("maxps=%d must be between 1 and 4", maxps)
	case minps > maxps:
		return nil, clo.InvalidArgs("minps=%d is larger than maxps=%d", minps, maxps)
	}
	return &abitonic{
		minps:  int(minps),
		maxps:  int(maxps),
		maxsfs: int(min(maxsfs, maxLocalStep)),
	}, nil
}

func (*abitonic) source() string {
	return "// Adaptive bitonic sort.\n" + clo.Library("abitonic")
}

func (*abitonic) inPlace() bool { return true }

// planStep is the dispatch chosen for one step of every stage.
type planStep struct {
	kernel   int
	gws      int
	lws      int
	localMem int
	numSteps int  // steps the dispatch advances
	setStep  bool // pass the step number instead of local memory
}

// strategy plans steps 1..TrailingZeros(p) for an array padded to p
// elements. lwsMax is a power of two bounding every local size; elemSize and
// localMemSize bound the local and hybrid kernels. The result is indexed by
// step.
func (a *abitonic) strategy(p, lwsMax, elemSize, localMemSize int) []planStep {
	stages := clo.TrailingZeros(uint64(p))
	maxSFS := min(a.maxsfs, maxLocalStep, clo.TrailingZeros(uint64(lwsMax))+a.maxps)
	plan := make([]planStep, stages+1)
	any1 := planStep{kernel: kAny, gws: p / 2, lws: min(lwsMax, p/2), numSteps: 1, setStep: true}

	for step := 1; step <= stages; step++ {
		switch {
		case step == 1:
			plan[step] = any1
		case step > maxSFS:
			k := min(step, a.maxps)
			gws := p >> k
			plan[step] = planStep{
				kernel:   privateKernels[k],
				gws:      gws,
				lws:      min(lwsMax, gws),
				numSteps: k,
				setStep:  true,
			}
		default:
			plan[step] = any1
			for _, id := range stepCandidates[step] {
				fused := abitonicKernels[id].fusedSteps
				if fused < a.minps || fused > a.maxps {
					continue
				}
				gws := p >> fused
				lws := min(lwsMax, gws)
				if lws < 1<<(step-fused) {
					continue
				}
				localMem := elemSize * lws << fused
				if localMem > localMemSize {
					continue
				}
				plan[step] = planStep{
					kernel:   id,
					gws:      gws,
					lws:      lws,
					localMem: localMem,
					numSteps: step,
				}
				break
			}
		}
	}
	return plan
}

// localSizeCap returns the power of two local size limit for an array padded
// to p elements.
func localSizeCap(dev device.Device, p, lwsMax int) (int, error) {
	lws, err := clo.Pow2LocalSize(nil, dev, p/2, lwsMax)
	if err != nil {
		return 0, err
	}
	return max(min(lws, p/2), 1), nil
}

func (a *abitonic) sort(s *Sorter, q, qComm device.Queue, in, out device.Buffer, numel, lwsMax int, wait device.WaitList) (device.WaitList, error) {
	if out != in {
		var err error
		if wait, err = s.copyInput(qComm, in, out, numel, wait); err != nil {
			return nil, err
		}
	}
	dev := q.Device()
	p := int(clo.NextPow2(uint64(numel)))
	lwsCap, err := localSizeCap(dev, p, lwsMax)
	if err != nil {
		return nil, err
	}
	plan := a.strategy(p, lwsCap, s.elem.Size(), dev.LocalMemSize())
	for step := 1; step < len(plan); step++ {
		st := plan[step]
		s.log.Debug("abitonic step plan",
			"step", step,
			"kernel", abitonicKernels[st.kernel].name,
			"gws", st.gws,
			"lws", st.lws,
			"local_mem", st.localMem,
			"steps", st.numSteps)
	}

	kernels := make(map[int]device.Kernel)
	for stage := 1; stage < len(plan); stage++ {
		for step := stage; step > 0; {
			st := plan[step]
			k, ok := kernels[st.kernel]
			if !ok {
				if k, err = s.kernel(abitonicKernels[st.kernel].name); err != nil {
					return nil, err
				}
				kernels[st.kernel] = k
			}
			third := device.Priv(uint32(step))
			if !st.setStep {
				third = device.Local(st.localMem)
			}
			ev, err := s.dispatch(q, k, st.gws, st.lws, wait,
				device.Buf(out),
				device.Priv(uint32(stage)),
				third,
				device.Priv(uint32(numel)))
			if err != nil {
				return nil, err
			}
			wait = device.WaitList{ev}
			step -= st.numSteps
		}
	}
	return wait, nil
}

func (*abitonic) numKernels() int { return len(abitonicKernels) }

func (*abitonic) kernelName(i int) string { return abitonicKernels[i].name }

func (*abitonic) localMemUsage(s *Sorter, i, lwsMax, numel int) int {
	k := abitonicKernels[i]
	if !k.usesLocal() {
		return 0
	}
	p := int(clo.NextPow2(uint64(max(numel, 2))))
	lws := min(clo.PrevPow2(maxLocalSize(s.h.Device(), lwsMax)), p>>k.fusedSteps)
	return s.elem.Size() * max(lws, 1) << k.fusedSteps
}

func (*abitonic) close() error { return nil }
