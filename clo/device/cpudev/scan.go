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

	"github.com/x448/float16"

	"github.com/ajroetker/go-clops/clo"
)

// blellochExclusive replaces a, whose length is a power of two, with its
// exclusive prefix sum using the up-sweep / down-sweep tree.
func blellochExclusive[S number](a []S) {
	blellochExclusiveFunc(a, addNumber[S])
}

func blellochExclusiveFunc[S any](a []S, add func(S, S) S) {
	n := len(a)
	for d := 1; d < n; d <<= 1 {
		for i := 2*d - 1; i < n; i += 2 * d {
			a[i] = add(a[i], a[i-d])
		}
	}
	var zero S
	a[n-1] = zero
	for d := n >> 1; d >= 1; d >>= 1 {
		for i := 2*d - 1; i < n; i += 2 * d {
			t := a[i-d]
			a[i-d] = a[i]
			a[i] = add(a[i], t)
		}
	}
}

func addNumber[S number](a, b S) S { return a + b }

// addHalf rounds every partial sum to half, as a device with half sums does.
func addHalf(a, b float16.Float16) float16.Float16 {
	return float16.Fromfloat32(a.Float32() + b.Float32())
}

// scanKernels builds the Blelloch kernels for elements E summed as S. conv
// widens (or narrows) one element to the sum type.
func scanKernels[E, S any](conv func(E) S, add func(S, S) S) map[string]kernelSpec {
	var zero S
	return map[string]kernelSpec{
		"workgroupScan": {
			// in, out, group sums, local 2*lws sums, numel, blocks per group
			args: []argKind{argBuffer, argBuffer, argBuffer, argLocal, argScalar, argScalar},
			fn: func(g *group) error {
				numel, blocks := g.scalar(4), g.scalar(5)
				in, err := elems[E](g, 0, numel)
				if err != nil {
					return err
				}
				out, err := elems[S](g, 1, numel)
				if err != nil {
					return err
				}
				sums, err := elems[S](g, 2, g.numGroups())
				if err != nil {
					return err
				}
				width := 2 * g.localSize
				local := view[S](g.locals[3])
				if len(local) < width {
					return argError("local memory holds %d sums, need %d", len(local), width)
				}
				local = local[:width]
				carry := zero
				start := g.id * blocks * width
				for b := range blocks {
					base := start + b*width
					if base >= numel {
						break
					}
					cnt := min(width, numel-base)
					for i := range width {
						if i < cnt {
							local[i] = conv(in[base+i])
						} else {
							local[i] = zero
						}
					}
					last := local[width-1]
					blellochExclusiveFunc(local, add)
					for i := range cnt {
						out[base+i] = add(local[i], carry)
					}
					carry = add(carry, add(local[width-1], last))
				}
				sums[g.id] = carry
				return nil
			},
		},
		"workgroupSumsScan": {
			// group sums, local 2*lws sums, count
			args: []argKind{argBuffer, argLocal, argScalar},
			fn: func(g *group) error {
				if g.id != 0 {
					return nil
				}
				count := g.scalar(2)
				width := 2 * g.localSize
				if count > width {
					return argError("%d group sums exceed the %d a single group scans", count, width)
				}
				sums, err := elems[S](g, 0, count)
				if err != nil {
					return err
				}
				local := view[S](g.locals[1])
				if len(local) < width {
					return argError("local memory holds %d sums, need %d", len(local), width)
				}
				local = local[:width]
				copy(local, sums)
				clear(local[count:])
				blellochExclusiveFunc(local, add)
				copy(sums, local[:count])
				return nil
			},
		},
		"addWorkgroupSums": {
			// group sums, out, blocks per group, numel, local cached sum
			args: []argKind{argBuffer, argBuffer, argScalar, argScalar, argLocal},
			fn: func(g *group) error {
				blocks, numel := g.scalar(2), g.scalar(3)
				out, err := elems[S](g, 1, numel)
				if err != nil {
					return err
				}
				first := g.firstItem()
				if first >= numel {
					return nil
				}
				span := blocks * 2 * g.localSize
				sums := view[S](g.bufs[0])
				if first/span >= len(sums) {
					return argError("group sum %d outside buffer of %d", first/span, len(sums))
				}
				cached := view[S](g.locals[4])
				cached[0] = sums[first/span]
				for i := first; i < min(first+g.localSize, numel); i++ {
					out[i] = add(out[i], cached[0])
				}
				return nil
			},
		},
	}
}

func numberScan[E, S number]() map[string]kernelSpec {
	return scanKernels(func(e E) S { return S(e) }, addNumber[S])
}

// halfToNumberScan sums half elements into a non-half type.
func halfToNumberScan[S number]() map[string]kernelSpec {
	return scanKernels(func(h float16.Float16) S { return S(h.Float32()) }, addNumber[S])
}

func blellochLibrary(m macros) (map[string]kernelSpec, error) {
	elem, err := m.typ(clo.MacroScanElemType)
	if err != nil {
		return nil, err
	}
	sum, err := m.typ(clo.MacroScanSumType)
	if err != nil {
		return nil, err
	}
	switch elem {
	case clo.Char:
		return scanKernelsFor[int8](sum)
	case clo.UChar:
		return scanKernelsFor[uint8](sum)
	case clo.Short:
		return scanKernelsFor[int16](sum)
	case clo.UShort:
		return scanKernelsFor[uint16](sum)
	case clo.Int:
		return scanKernelsFor[int32](sum)
	case clo.UInt:
		return scanKernelsFor[uint32](sum)
	case clo.Long:
		return scanKernelsFor[int64](sum)
	case clo.ULong:
		return scanKernelsFor[uint64](sum)
	case clo.Half:
		return halfScanKernels(sum)
	case clo.Float:
		return scanKernelsFor[float32](sum)
	case clo.Double:
		return scanKernelsFor[float64](sum)
	default:
		return nil, fmt.Errorf("scan elements of type %s are not supported", elem)
	}
}

func scanKernelsFor[E number](sum clo.Type) (map[string]kernelSpec, error) {
	switch sum {
	case clo.Char:
		return numberScan[E, int8](), nil
	case clo.UChar:
		return numberScan[E, uint8](), nil
	case clo.Short:
		return numberScan[E, int16](), nil
	case clo.UShort:
		return numberScan[E, uint16](), nil
	case clo.Int:
		return numberScan[E, int32](), nil
	case clo.UInt:
		return numberScan[E, uint32](), nil
	case clo.Long:
		return numberScan[E, int64](), nil
	case clo.ULong:
		return numberScan[E, uint64](), nil
	case clo.Half:
		return scanKernels(func(e E) float16.Float16 { return float16.Fromfloat32(float32(e)) }, addHalf), nil
	case clo.Float:
		return numberScan[E, float32](), nil
	case clo.Double:
		return numberScan[E, float64](), nil
	default:
		return nil, fmt.Errorf("scan sums of type %s are not supported", sum)
	}
}

func halfScanKernels(sum clo.Type) (map[string]kernelSpec, error) {
	switch sum {
	case clo.Char:
		return halfToNumberScan[int8](), nil
	case clo.UChar:
		return halfToNumberScan[uint8](), nil
	case clo.Short:
		return halfToNumberScan[int16](), nil
	case clo.UShort:
		return halfToNumberScan[uint16](), nil
	case clo.Int:
		return halfToNumberScan[int32](), nil
	case clo.UInt:
		return halfToNumberScan[uint32](), nil
	case clo.Long:
		return halfToNumberScan[int64](), nil
	case clo.ULong:
		return halfToNumberScan[uint64](), nil
	case clo.Half:
		return scanKernels(func(h float16.Float16) float16.Float16 { return h }, addHalf), nil
	case clo.Float:
		return halfToNumberScan[float32](), nil
	case clo.Double:
		return halfToNumberScan[float64](), nil
	default:
		return nil, fmt.Errorf("scan sums of type %s are not supported", sum)
	}
}
