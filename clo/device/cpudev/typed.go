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
	"math"
	"strings"

	"github.com/x448/float16"

	"github.com/ajroetker/go-clops/clo"
)

// number is the set of Go types backing non-half device types.
type number interface {
	int8 | uint8 | int16 | uint16 | int32 | uint32 | int64 | uint64 | float32 | float64
}

// bitsMask returns a mask of the low w bits.
func bitsMask(w int) uint64 {
	if w >= 64 {
		return math.MaxUint64
	}
	return 1<<w - 1
}

// orderedSigned maps a w-bit two's complement value to an unsigned value of
// the same width with the same order.
func orderedSigned(v int64, w int) uint64 {
	return (uint64(v) & bitsMask(w)) ^ 1<<(w-1)
}

// orderedFloat32 maps IEEE bits to an unsigned value with the float order:
// negative values flip every bit, positive values flip the sign bit.
func orderedFloat32(f float32) uint64 {
	b := math.Float32bits(f)
	if b&(1<<31) != 0 {
		return uint64(^b)
	}
	return uint64(b | 1<<31)
}

func orderedFloat64(f float64) uint64 {
	b := math.Float64bits(f)
	if b&(1<<63) != 0 {
		return ^b
	}
	return b | 1<<63
}

func orderedHalf(h float16.Float16) uint64 {
	b := h.Bits()
	if b&(1<<15) != 0 {
		return uint64(^b)
	}
	return uint64(b | 1<<15)
}

// numberKey returns a function casting an element to key type k and mapping
// it to an order preserving unsigned integer of k's width.
func numberKey[E number](k clo.Type) (func(E) uint64, error) {
	switch k {
	case clo.Char:
		return func(e E) uint64 { return orderedSigned(int64(int8(e)), 8) }, nil
	case clo.UChar:
		return func(e E) uint64 { return uint64(uint8(e)) }, nil
	case clo.Short:
		return func(e E) uint64 { return orderedSigned(int64(int16(e)), 16) }, nil
	case clo.UShort:
		return func(e E) uint64 { return uint64(uint16(e)) }, nil
	case clo.Int:
		return func(e E) uint64 { return orderedSigned(int64(int32(e)), 32) }, nil
	case clo.UInt:
		return func(e E) uint64 { return uint64(uint32(e)) }, nil
	case clo.Long:
		return func(e E) uint64 { return orderedSigned(int64(e), 64) }, nil
	case clo.ULong:
		return func(e E) uint64 { return uint64(e) }, nil
	case clo.Half:
		return func(e E) uint64 { return orderedHalf(float16.Fromfloat32(float32(e))) }, nil
	case clo.Float:
		return func(e E) uint64 { return orderedFloat32(float32(e)) }, nil
	case clo.Double:
		return func(e E) uint64 { return orderedFloat64(float64(e)) }, nil
	default:
		return nil, fmt.Errorf("invalid key type %d", k)
	}
}

// halfKey is numberKey for half elements, which widen to float first.
func halfKey(k clo.Type) (func(float16.Float16) uint64, error) {
	if k == clo.Half {
		return orderedHalf, nil
	}
	f, err := numberKey[float32](k)
	if err != nil {
		return nil, err
	}
	return func(h float16.Float16) uint64 { return f(h.Float32()) }, nil
}

// compareOp is a parsed sort comparison.
type compareOp struct {
	descending bool
	orEqual    bool
}

// parseCompare accepts "a > b", "a >= b", "a < b" and "a <= b", with any
// spacing and parentheses.
func parseCompare(body string) (compareOp, error) {
	norm := strings.NewReplacer(" ", "", "\t", "", "(", "", ")", "").Replace(body)
	switch norm {
	case "a>b":
		return compareOp{}, nil
	case "a>=b":
		return compareOp{orEqual: true}, nil
	case "a<b":
		return compareOp{descending: true}, nil
	case "a<=b":
		return compareOp{descending: true, orEqual: true}, nil
	default:
		return compareOp{}, fmt.Errorf("unsupported compare expression %q", body)
	}
}

// parseKeyGet accepts the identity key extraction, with or without a cast to
// the key type. It reports whether the cast is present.
func parseKeyGet(body string) (cast bool, err error) {
	norm := strings.NewReplacer(" ", "", "\t", "", "(", "", ")", "").Replace(body)
	switch norm {
	case "x":
		return false, nil
	case clo.MacroSortKeyType + "x":
		return true, nil
	default:
		return false, fmt.Errorf("unsupported key extraction expression %q", body)
	}
}

// sortTypes is the element and key configuration read from a sort program.
type sortTypes struct {
	elem    clo.Type
	key     clo.Type
	compare compareOp
}

func readSortTypes(m macros) (sortTypes, error) {
	elem, err := m.typ(clo.MacroSortElemType)
	if err != nil {
		return sortTypes{}, err
	}
	key := elem
	if _, ok := m[clo.MacroSortKeyType]; ok {
		if key, err = m.typ(clo.MacroSortKeyType); err != nil {
			return sortTypes{}, err
		}
	}
	op, err := parseCompare(m.value(clo.MacroSortCompare, clo.DefaultCompare))
	if err != nil {
		return sortTypes{}, err
	}
	cast, err := parseKeyGet(m.value(clo.MacroSortKeyGet, clo.DefaultKeyGet))
	if err != nil {
		return sortTypes{}, err
	}
	if !cast {
		key = elem
	}
	return sortTypes{elem: elem, key: key, compare: op}, nil
}

// sortEnv holds what the sort kernels need to order elements of type E.
type sortEnv[E any] struct {
	// key maps an element to an unsigned value whose ascending order is the
	// requested sort order.
	key     func(E) uint64
	keyBits int
	orEqual bool
}

func newSortEnv[E any](key func(E) uint64, t sortTypes) *sortEnv[E] {
	bits := t.key.Bits()
	if t.compare.descending {
		mask := bitsMask(bits)
		asc := key
		key = func(e E) uint64 { return ^asc(e) & mask }
	}
	return &sortEnv[E]{key: key, keyBits: bits, orEqual: t.compare.orEqual}
}

// swaps reports whether a pair must be exchanged when a sits below b.
func (s *sortEnv[E]) swaps(a, b E) bool {
	ka, kb := s.key(a), s.key(b)
	if s.orEqual {
		return ka >= kb
	}
	return ka > kb
}

// sortKernels builds the kernels of one sort library for element type E.
type sortKernels interface {
	kernels(lib string, m macros) (map[string]kernelSpec, error)
}

func (s *sortEnv[E]) kernels(lib string, m macros) (map[string]kernelSpec, error) {
	switch lib {
	case "sbitonic":
		return map[string]kernelSpec{"sbitonic": s.bitonicAnyKernel()}, nil
	case "abitonic":
		return s.abitonicKernels(), nil
	case "gselect":
		return map[string]kernelSpec{"gselect": s.gselectKernel()}, nil
	case "satradix":
		return s.satradixKernels(m)
	default:
		return nil, fmt.Errorf("no sort library %q", lib)
	}
}

// sortLibrary returns a library builder for the named sort library.
func sortLibrary(lib string) library {
	return func(m macros) (map[string]kernelSpec, error) {
		t, err := readSortTypes(m)
		if err != nil {
			return nil, err
		}
		env, err := sortEnvFor(t)
		if err != nil {
			return nil, err
		}
		return env.kernels(lib, m)
	}
}

func sortEnvFor(t sortTypes) (sortKernels, error) {
	switch t.elem {
	case clo.Char:
		return numberSortEnv[int8](t)
	case clo.UChar:
		return numberSortEnv[uint8](t)
	case clo.Short:
		return numberSortEnv[int16](t)
	case clo.UShort:
		return numberSortEnv[uint16](t)
	case clo.Int:
		return numberSortEnv[int32](t)
	case clo.UInt:
		return numberSortEnv[uint32](t)
	case clo.Long:
		return numberSortEnv[int64](t)
	case clo.ULong:
		return numberSortEnv[uint64](t)
	case clo.Float:
		return numberSortEnv[float32](t)
	case clo.Double:
		return numberSortEnv[float64](t)
	case clo.Half:
		key, err := halfKey(t.key)
		if err != nil {
			return nil, err
		}
		return newSortEnv(key, t), nil
	default:
		return nil, fmt.Errorf("invalid element type %d", t.elem)
	}
}

func numberSortEnv[E number](t sortTypes) (sortKernels, error) {
	key, err := numberKey[E](t.key)
	if err != nil {
		return nil, err
	}
	return newSortEnv(key, t), nil
}
