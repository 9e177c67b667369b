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

package device

import "fmt"

// Arg is a kernel argument: a buffer, a scalar passed by copy, or a request
// for work-group local memory.
type Arg interface {
	fmt.Stringer
	isArg()
}

// BufferArg binds a device buffer.
type BufferArg struct {
	Buffer Buffer
}

// ScalarArg binds a small value by copy. Value holds one of the Go integer or
// float types.
type ScalarArg struct {
	Value any
}

// LocalArg requests Size bytes of local memory for every work-group.
type LocalArg struct {
	Size int
}

func (BufferArg) isArg() {}
func (ScalarArg) isArg() {}
func (LocalArg) isArg()  {}

func (a BufferArg) String() string { return fmt.Sprintf("buffer(%d bytes)", a.Buffer.Size()) }
func (a ScalarArg) String() string { return fmt.Sprintf("scalar(%v)", a.Value) }
func (a LocalArg) String() string  { return fmt.Sprintf("local(%d bytes)", a.Size) }

// Buf returns a buffer argument.
func Buf(b Buffer) Arg {
	return BufferArg{Buffer: b}
}

// Priv returns a scalar argument.
func Priv[T int8 | uint8 | int16 | uint16 | int32 | uint32 | int64 | uint64 | int | uint | float32 | float64](v T) Arg {
	return ScalarArg{Value: v}
}

// Local returns a local memory argument of size bytes.
func Local(size int) Arg {
	return LocalArg{Size: size}
}

// ScalarUint64 converts a scalar argument value to uint64.
func ScalarUint64(v any) (uint64, bool) {
	switch x := v.(type) {
	case int8:
		return uint64(x), true
	case uint8:
		return uint64(x), true
	case int16:
		return uint64(x), true
	case uint16:
		return uint64(x), true
	case int32:
		return uint64(x), true
	case uint32:
		return uint64(x), true
	case int64:
		return uint64(x), true
	case uint64:
		return x, true
	case int:
		return uint64(x), true
	case uint:
		return uint64(x), true
	case float32:
		return uint64(x), true
	case float64:
		return uint64(x), true
	default:
		return 0, false
	}
}
