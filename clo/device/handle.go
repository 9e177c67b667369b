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

import (
	"fmt"
	"sync/atomic"
)

// Handle shares one Context between several owners. The context is closed
// when the last owner calls Release.
type Handle struct {
	ctx  Context
	refs atomic.Int64
}

// Share wraps ctx in a Handle holding one reference.
func Share(ctx Context) *Handle {
	if ctx == nil {
		panic("device: Share called with nil context")
	}
	h := &Handle{ctx: ctx}
	h.refs.Store(1)
	return h
}

// Context returns the shared context.
func (h *Handle) Context() Context {
	return h.ctx
}

// Device returns the default device of the shared context.
func (h *Handle) Device() Device {
	return h.ctx.Devices()[0]
}

// Retain adds a reference and returns h.
func (h *Handle) Retain() *Handle {
	if h.refs.Add(1) <= 1 {
		panic("device: Retain on released handle")
	}
	return h
}

// Release drops a reference, closing the context when none remain.
func (h *Handle) Release() error {
	n := h.refs.Add(-1)
	switch {
	case n > 0:
		return nil
	case n == 0:
		if err := h.ctx.Close(); err != nil {
			return fmt.Errorf("device: closing shared context: %w", err)
		}
		return nil
	default:
		panic("device: Release called more times than Retain")
	}
}

// Refs returns the current number of references.
func (h *Handle) Refs() int {
	return int(h.refs.Load())
}
