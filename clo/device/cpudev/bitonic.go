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

package cpudev

import "fmt"

// The bitonic kernels use the network formulation where every comparator
// puts the larger element at the higher index. The first step of stage s
// compares mirrored positions inside blocks of 2^s elements; later steps
// compare positions 2^(step-1) apart. Positions at or past numel act as
// maxima that never move, so arrays of any length sort in place.

// stepMask returns the XOR distance between partners at (stage, step).
func stepMask(stage, step int) int {
	if step == stage {
		return 1<<stage - 1
	}
	return 1 << (step - 1)
}

// orbitBase returns the lowest index of the o-th set of 2^r positions that
// steps step, step-1, ..., step-r+1 only ever compare among themselves.
func orbitBase(o, step, r int) int {
	low := step - r
	return (o>>low)<<step | o&(1<<low-1)
}

// runOrbit applies r steps of stage, starting at step, to the orbit rooted
// at base. Indices are relative to d, whose first element has global index
// off.
func (s *sortEnv[E]) runOrbit(d []E, off, numel, base, stage, step, r int) {
	var idx [16]int
	idx[0] = base
	for j := range r {
		m := stepMask(stage, step-j)
		for c := range 1 << j {
			idx[c|1<<j] = idx[c] ^ m
		}
	}
	for j := range r {
		bit := 1 << j
		for c := range 1 << r {
			if c&bit != 0 {
				continue
			}
			lo, hi := idx[c], idx[c|bit]
			if lo > hi {
				lo, hi = hi, lo
			}
			if off+hi >= numel {
				continue
			}
			if s.swaps(d[lo], d[hi]) {
				d[lo], d[hi] = d[hi], d[lo]
			}
		}
	}
}

// privateSteps runs r steps per work-item directly on the data buffer.
// Arguments: data, stage, step, numel.
func (s *sortEnv[E]) privateSteps(g *group, r int) error {
	stage, step, numel := g.scalar(1), g.scalar(2), g.scalar(3)
	if step < r || step > stage {
		return argError("step %d of stage %d cannot advance %d steps", step, stage, r)
	}
	data, err := elems[E](g, 0, numel)
	if err != nil {
		return err
	}
	first := g.firstItem()
	for t := first; t < first+g.localSize; t++ {
		base := orbitBase(t, step, r)
		if base >= numel {
			continue
		}
		s.runOrbit(data, 0, numel, base, stage, step, r)
	}
	return nil
}

// finishStage loads the group's block of localSize*2^p elements into local
// memory and runs every remaining step of the stage there, p steps per
// round. Arguments: data, stage, local scratch, numel.
func (s *sortEnv[E]) finishStage(g *group, step, p int) error {
	stage, numel := g.scalar(1), g.scalar(3)
	block := g.localSize << p
	switch {
	case step > stage:
		return argError("step %d is past stage %d", step, stage)
	case 1<<step > block:
		return argError("work-group block of %d elements cannot finish step %d", block, step)
	}
	data, err := elems[E](g, 0, numel)
	if err != nil {
		return err
	}
	local := view[E](g.locals[2])
	if len(local) < block {
		return argError("local memory holds %d elements, block needs %d", len(local), block)
	}
	off := g.id * block
	if off >= numel {
		return nil
	}
	cnt := min(block, numel-off)
	copy(local[:cnt], data[off:off+cnt])
	for t := step; t > 0; {
		r := min(p, t)
		for o := range block >> r {
			base := orbitBase(o, t, r)
			if off+base >= numel {
				continue
			}
			s.runOrbit(local, off, numel, base, stage, t, r)
		}
		t -= r
	}
	copy(data[off:off+cnt], local[:cnt])
	return nil
}

func (s *sortEnv[E]) bitonicAnyKernel() kernelSpec {
	return kernelSpec{
		args: []argKind{argBuffer, argScalar, argScalar, argScalar},
		fn:   func(g *group) error { return s.privateSteps(g, 1) },
	}
}

func (s *sortEnv[E]) privateKernel(r int) kernelSpec {
	return kernelSpec{
		args: []argKind{argBuffer, argScalar, argScalar, argScalar},
		fn:   func(g *group) error { return s.privateSteps(g, r) },
	}
}

func (s *sortEnv[E]) finishKernel(step, p int) kernelSpec {
	return kernelSpec{
		args: []argKind{argBuffer, argScalar, argLocal, argScalar},
		fn:   func(g *group) error { return s.finishStage(g, step, p) },
	}
}

// hybridShapes lists the (step, fused steps) pairs of the hybrid kernels.
var hybridShapes = [][2]int{
	{3, 3},
	{4, 4}, {4, 2},
	{6, 3}, {6, 2},
	{8, 4}, {8, 2},
	{9, 3},
	{10, 2},
	{12, 4}, {12, 3}, {12, 2},
}

func (s *sortEnv[E]) abitonicKernels() map[string]kernelSpec {
	ks := map[string]kernelSpec{
		"abitonic_any":        s.bitonicAnyKernel(),
		"abitonic_priv_2s4v":  s.privateKernel(2),
		"abitonic_priv_3s8v":  s.privateKernel(3),
		"abitonic_priv_4s16v": s.privateKernel(4),
	}
	for step := 2; step <= 11; step++ {
		ks[fmt.Sprintf("abitonic_local_s%d", step)] = s.finishKernel(step, 1)
	}
	for _, h := range hybridShapes {
		ks[fmt.Sprintf("abitonic_hyb_s%d_%ds%dv", h[0], h[1], 1<<h[1])] = s.finishKernel(h[0], h[1])
	}
	return ks
}

// gselectKernel ranks every element against the whole array and writes it
// at its rank. Equal keys keep their input order. Arguments: in, out, numel.
func (s *sortEnv[E]) gselectKernel() kernelSpec {
	return kernelSpec{
		args: []argKind{argBuffer, argBuffer, argScalar},
		fn: func(g *group) error {
			numel := g.scalar(2)
			in, err := elems[E](g, 0, numel)
			if err != nil {
				return err
			}
			out, err := elems[E](g, 1, numel)
			if err != nil {
				return err
			}
			first := g.firstItem()
			if first >= numel {
				return nil
			}
			keys := make([]uint64, numel)
			for j, y := range in {
				keys[j] = s.key(y)
			}
			for i := first; i < min(first+g.localSize, numel); i++ {
				ki, pos := keys[i], 0
				for j, kj := range keys {
					if kj < ki || (kj == ki && j < i) {
						pos++
					}
				}
				out[pos] = in[i]
			}
			return nil
		},
	}
}
