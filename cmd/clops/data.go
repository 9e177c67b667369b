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

package main

import (
	"math"
	"math/rand/v2"

	"github.com/x448/float16"

	"github.com/ajroetker/go-clops/clo"
)

// randomElems returns n random elements of type t as bytes. Floats are drawn
// from a normal distribution so that the data holds no NaN. With small set,
// values are in [0, 16).
func randomElems(t clo.Type, n int, r *rand.Rand, small bool) []byte {
	u := func() uint64 {
		if small {
			return r.Uint64N(16)
		}
		return r.Uint64()
	}
	f := func() float64 {
		if small {
			return float64(r.IntN(16))
		}
		return r.NormFloat64() * 1000
	}
	switch t {
	case clo.Char:
		return clo.AsBytes(fill(n, func() int8 { return int8(u()) }))
	case clo.UChar:
		return clo.AsBytes(fill(n, func() uint8 { return uint8(u()) }))
	case clo.Short:
		return clo.AsBytes(fill(n, func() int16 { return int16(u()) }))
	case clo.UShort:
		return clo.AsBytes(fill(n, func() uint16 { return uint16(u()) }))
	case clo.Int:
		return clo.AsBytes(fill(n, func() int32 { return int32(u()) }))
	case clo.UInt:
		return clo.AsBytes(fill(n, func() uint32 { return uint32(u()) }))
	case clo.Long:
		return clo.AsBytes(fill(n, func() int64 { return int64(u()) }))
	case clo.ULong:
		return clo.AsBytes(fill(n, u))
	case clo.Half:
		return clo.AsBytes(fill(n, func() uint16 { return float16.Fromfloat32(float32(f())).Bits() }))
	case clo.Float:
		return clo.AsBytes(fill(n, func() float32 { return float32(f()) }))
	default:
		return clo.AsBytes(fill(n, f))
	}
}

func fill[T any](n int, gen func() T) []T {
	s := make([]T, n)
	for i := range s {
		s[i] = gen()
	}
	return s
}

// values widens the elements in b to float64, which keeps their order.
func values(t clo.Type, b []byte) []float64 {
	switch t {
	case clo.Char:
		return widen(clo.FromBytes[int8](b))
	case clo.UChar:
		return widen(clo.FromBytes[uint8](b))
	case clo.Short:
		return widen(clo.FromBytes[int16](b))
	case clo.UShort:
		return widen(clo.FromBytes[uint16](b))
	case clo.Int:
		return widen(clo.FromBytes[int32](b))
	case clo.UInt:
		return widen(clo.FromBytes[uint32](b))
	case clo.Long:
		return widen(clo.FromBytes[int64](b))
	case clo.ULong:
		return widen(clo.FromBytes[uint64](b))
	case clo.Half:
		hs := clo.FromBytes[uint16](b)
		vs := make([]float64, len(hs))
		for i, h := range hs {
			vs[i] = float64(float16.Frombits(h).Float32())
		}
		return vs
	case clo.Float:
		return widen(clo.FromBytes[float32](b))
	default:
		return widen(clo.FromBytes[float64](b))
	}
}

func widen[T clo.Scalar](s []T) []float64 {
	vs := make([]float64, len(s))
	for i, v := range s {
		vs[i] = float64(v)
	}
	return vs
}

// sortKeys maps the elements in b to unsigned keys with the same order.
// Distinct integers keep distinct keys at every width, and both float zeros
// share one key.
func sortKeys(t clo.Type, b []byte) []uint64 {
	switch t {
	case clo.Char:
		return signedKeys(clo.FromBytes[int8](b))
	case clo.UChar:
		return unsignedKeys(clo.FromBytes[uint8](b))
	case clo.Short:
		return signedKeys(clo.FromBytes[int16](b))
	case clo.UShort:
		return unsignedKeys(clo.FromBytes[uint16](b))
	case clo.Int:
		return signedKeys(clo.FromBytes[int32](b))
	case clo.UInt:
		return unsignedKeys(clo.FromBytes[uint32](b))
	case clo.Long:
		return signedKeys(clo.FromBytes[int64](b))
	case clo.ULong:
		return unsignedKeys(clo.FromBytes[uint64](b))
	default:
		// half and float widen to float64 exactly.
		vs := values(t, b)
		keys := make([]uint64, len(vs))
		for i, v := range vs {
			keys[i] = floatKey(v)
		}
		return keys
	}
}

func signedKeys[T ~int8 | ~int16 | ~int32 | ~int64](s []T) []uint64 {
	keys := make([]uint64, len(s))
	for i, v := range s {
		keys[i] = uint64(int64(v)) ^ 1<<63
	}
	return keys
}

func unsignedKeys[T ~uint8 | ~uint16 | ~uint32 | ~uint64](s []T) []uint64 {
	keys := make([]uint64, len(s))
	for i, v := range s {
		keys[i] = uint64(v)
	}
	return keys
}

func floatKey(f float64) uint64 {
	if f == 0 {
		f = 0
	}
	b := math.Float64bits(f)
	if b&(1<<63) != 0 {
		return ^b
	}
	return b | 1<<63
}

// wrap truncates an integer sum to the width of t and returns its value.
func wrap(t clo.Type, v uint64) float64 {
	bits := t.Bits()
	if bits < 64 {
		v &= 1<<bits - 1
		if t.IsSigned() && v>>(bits-1) != 0 {
			return float64(int64(v) - 1<<bits)
		}
	}
	if t.IsSigned() {
		return float64(int64(v))
	}
	return float64(v)
}
