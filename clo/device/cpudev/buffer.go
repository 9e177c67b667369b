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
	"sync/atomic"
	"unsafe"

	"github.com/ajroetker/go-clops/clo/device"
)

// buffer is device memory backed by host memory. The contents stay valid
// after Close for commands that were already queued.
type buffer struct {
	ctx    *Context
	flags  device.MemFlags
	data   []byte
	closed atomic.Bool
}

var _ device.Buffer = (*buffer)(nil)

func (b *buffer) Size() int              { return len(b.data) }
func (b *buffer) Flags() device.MemFlags { return b.flags }

// Close releases the buffer.
func (b *buffer) Close() error {
	if b.closed.Swap(true) {
		return fmt.Errorf("%w: buffer closed twice", device.ErrReleased)
	}
	b.ctx.liveBuffers.Add(-1)
	b.ctx.metrics.liveBuffers.Dec()
	return nil
}

// asBuffer checks that buf is a live buffer of ctx.
func asBuffer(ctx *Context, buf device.Buffer) (*buffer, error) {
	b, ok := buf.(*buffer)
	if !ok || b == nil {
		return nil, fmt.Errorf("%w: buffer of type %T does not belong to a cpu context", device.ErrInvalidArg, buf)
	}
	if b.ctx != ctx {
		return nil, fmt.Errorf("%w: buffer belongs to another context", device.ErrInvalidArg)
	}
	if b.closed.Load() {
		return nil, fmt.Errorf("%w: buffer", device.ErrReleased)
	}
	return b, nil
}

// alignedBytes allocates n bytes aligned for any scalar type.
func alignedBytes(n int) []byte {
	if n <= 0 {
		return nil
	}
	words := make([]uint64, (n+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), n)
}

// view reinterprets b as a slice of T.
func view[T any](b []byte) []T {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if len(b) < size {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), len(b)/size)
}
