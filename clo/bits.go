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

package clo

// NextPow2 returns the smallest power of two greater than or equal to x.
// Values that already pass the x&(x-1) == 0 test are returned unchanged, so
// NextPow2(0) == 0.
func NextPow2(x uint64) uint64 {
	if x&(x-1) == 0 {
		return x
	}
	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	x |= x >> 32
	return x + 1
}

// PopCount returns the number of set bits in x.
func PopCount(x uint64) int {
	x -= (x >> 1) & 0x5555555555555555
	x = (x & 0x3333333333333333) + ((x >> 2) & 0x3333333333333333)
	x = (x + (x >> 4)) & 0x0f0f0f0f0f0f0f0f
	return int((x * 0x0101010101010101) >> 56)
}

// TrailingZeros returns the number of trailing zero bits in x. For a power of
// two this is its base 2 logarithm.
func TrailingZeros(x uint64) int {
	return PopCount((x & -x) - 1)
}

// TriangularSum returns 0 + 1 + ... + x.
func TriangularSum(x uint64) uint64 {
	return x * (x + 1) / 2
}

// IsPow2 reports whether x is a nonzero power of two.
func IsPow2(x uint64) bool {
	return x != 0 && PopCount(x) == 1
}

// DivCeil returns ceil(a / b) for positive b.
func DivCeil(a, b int) int {
	return (a + b - 1) / b
}

// RoundUp returns the smallest multiple of m that is >= n.
func RoundUp(n, m int) int {
	return m * DivCeil(n, m)
}

// PrevPow2 returns the largest power of two <= x, or 0 when x < 1.
func PrevPow2(x int) int {
	if x < 1 {
		return 0
	}
	p := int(NextPow2(uint64(x)))
	if p > x {
		p >>= 1
	}
	return p
}

// Log2 returns the base 2 logarithm of a power of two.
func Log2(x int) int {
	return TrailingZeros(uint64(x))
}
