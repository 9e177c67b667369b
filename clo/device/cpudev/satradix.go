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

import (
	"fmt"
	"strconv"

	"github.com/ajroetker/go-clops/clo"
)

// The radix sort kernels work on blocks of one work-group's local size.
// Digits come from the order preserving key, so signed, float and
// descending keys need no special casing.

func (s *sortEnv[E]) satradixKernels(m macros) (map[string]kernelSpec, error) {
	radix, err := strconv.Atoi(m.value(clo.MacroSatRadixRadix, "16"))
	if err != nil || radix < 2 || !clo.IsPow2(uint64(radix)) {
		return nil, fmt.Errorf("%s must be a power of two >= 2, got %q", clo.MacroSatRadixRadix, m.value(clo.MacroSatRadixRadix, ""))
	}
	mask := uint64(radix - 1)
	digit := func(x E, shift int) int {
		return int((s.key(x) >> shift) & mask)
	}
	return map[string]kernelSpec{
		"satradix_localsort": {
			// src, aux, local elements, local counters, shift, numel
			args: []argKind{argBuffer, argBuffer, argLocal, argLocal, argScalar, argScalar},
			fn: func(g *group) error {
				shift, numel := g.scalar(4), g.scalar(5)
				src, err := elems[E](g, 0, numel)
				if err != nil {
					return err
				}
				aux, err := elems[E](g, 1, numel)
				if err != nil {
					return err
				}
				off := g.firstItem()
				if off >= numel {
					return nil
				}
				cnt := min(g.localSize, numel-off)
				stage := view[E](g.locals[2])
				counts := view[uint32](g.locals[3])
				if len(stage) < cnt || len(counts) < radix {
					return argError("local memory too small for %d elements and radix %d", cnt, radix)
				}
				stage, counts = stage[:cnt], counts[:radix]
				copy(stage, src[off:off+cnt])
				clear(counts)
				for _, x := range stage {
					counts[digit(x, shift)]++
				}
				var sum uint32
				for d, c := range counts {
					counts[d] = sum
					sum += c
				}
				for _, x := range stage {
					d := digit(x, shift)
					aux[off+int(counts[d])] = x
					counts[d]++
				}
				return nil
			},
		},
		"satradix_histogram": {
			// aux, offsets, counters, local counts, local offsets, shift, numel, groups
			args: []argKind{argBuffer, argBuffer, argBuffer, argLocal, argLocal, argScalar, argScalar, argScalar},
			fn: func(g *group) error {
				shift, numel, numGroups := g.scalar(5), g.scalar(6), g.scalar(7)
				aux, err := elems[E](g, 0, numel)
				if err != nil {
					return err
				}
				offsets, err := elems[uint32](g, 1, numGroups*radix)
				if err != nil {
					return err
				}
				counters, err := elems[uint32](g, 2, numGroups*radix)
				if err != nil {
					return err
				}
				counts := view[uint32](g.locals[3])
				starts := view[uint32](g.locals[4])
				if len(counts) < radix || len(starts) < radix {
					return argError("local counters hold fewer than %d entries", radix)
				}
				counts, starts = counts[:radix], starts[:radix]
				clear(counts)
				off := g.firstItem()
				if off < numel {
					for _, x := range aux[off:min(off+g.localSize, numel)] {
						counts[digit(x, shift)]++
					}
				}
				var sum uint32
				for d, c := range counts {
					starts[d] = sum
					sum += c
				}
				for d := range radix {
					offsets[g.id*radix+d] = starts[d]
					counters[d*numGroups+g.id] = counts[d]
				}
				return nil
			},
		},
		"satradix_scatter": {
			// aux, dst, offsets, scanned counters, shift, numel, groups
			args: []argKind{argBuffer, argBuffer, argBuffer, argBuffer, argScalar, argScalar, argScalar},
			fn: func(g *group) error {
				shift, numel, numGroups := g.scalar(4), g.scalar(5), g.scalar(6)
				aux, err := elems[E](g, 0, numel)
				if err != nil {
					return err
				}
				dst, err := elems[E](g, 1, numel)
				if err != nil {
					return err
				}
				offsets, err := elems[uint32](g, 2, numGroups*radix)
				if err != nil {
					return err
				}
				scanned, err := elems[uint32](g, 3, numGroups*radix)
				if err != nil {
					return err
				}
				off := g.firstItem()
				if off >= numel {
					return nil
				}
				for i, x := range aux[off:min(off+g.localSize, numel)] {
					d := digit(x, shift)
					pos := int(scanned[d*numGroups+g.id]) + i - int(offsets[g.id*radix+d])
					dst[pos] = x
				}
				return nil
			},
		},
	}, nil
}
