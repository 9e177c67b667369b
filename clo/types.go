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

import (
	"fmt"
	"strings"
)

// Type is a scalar element type understood by device kernels.
type Type uint8

const (
	// Char is a signed 8-bit integer.
	Char Type = iota
	// UChar is an unsigned 8-bit integer.
	UChar
	// Short is a signed 16-bit integer.
	Short
	// UShort is an unsigned 16-bit integer.
	UShort
	// Int is a signed 32-bit integer.
	Int
	// UInt is an unsigned 32-bit integer.
	UInt
	// Long is a signed 64-bit integer.
	Long
	// ULong is an unsigned 64-bit integer.
	ULong
	// Half is an IEEE 754 binary16 float.
	Half
	// Float is an IEEE 754 binary32 float.
	Float
	// Double is an IEEE 754 binary64 float.
	Double

	numTypes
)

type typeInfo struct {
	name   string
	size   int
	signed bool
	float  bool
}

// typeTable is indexed by Type. Names are spelled the way device sources
// expect them.
var typeTable = [numTypes]typeInfo{
	Char:   {"char", 1, true, false},
	UChar:  {"uchar", 1, false, false},
	Short:  {"short", 2, true, false},
	UShort: {"ushort", 2, false, false},
	Int:    {"int", 4, true, false},
	UInt:   {"uint", 4, false, false},
	Long:   {"long", 8, true, false},
	ULong:  {"ulong", 8, false, false},
	Half:   {"half", 2, true, true},
	Float:  {"float", 4, true, true},
	Double: {"double", 8, true, true},
}

// TypeNames lists every registered type name.
const TypeNames = "char, uchar, short, ushort, int, uint, long, ulong, half, float, double"

// Types returns all registered types in table order.
func Types() []Type {
	ts := make([]Type, numTypes)
	for i := range ts {
		ts[i] = Type(i)
	}
	return ts
}

// Valid reports whether t is one of the registered types.
func (t Type) Valid() bool {
	return t < numTypes
}

// Name returns the device spelling of t, or "unknown".
func (t Type) Name() string {
	if !t.Valid() {
		return "unknown"
	}
	return typeTable[t].name
}

// String implements fmt.Stringer.
func (t Type) String() string {
	return t.Name()
}

// Size returns the size of t in bytes, or 0 for an invalid type.
func (t Type) Size() int {
	if !t.Valid() {
		return 0
	}
	return typeTable[t].size
}

// Bits returns the width of t in bits.
func (t Type) Bits() int {
	return t.Size() * 8
}

// IsSigned reports whether t can hold negative values. Floats are signed.
func (t Type) IsSigned() bool {
	return t.Valid() && typeTable[t].signed
}

// IsFloat reports whether t is a floating point type.
func (t Type) IsFloat() bool {
	return t.Valid() && typeTable[t].float
}

// TypeByName returns the type spelled name. It fails with ErrUnknownType for
// names outside the registry.
func TypeByName(name string) (Type, error) {
	n := strings.TrimSpace(name)
	for i, info := range typeTable {
		if info.name == n {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q (known types: %s)", ErrUnknownType, name, TypeNames)
}
