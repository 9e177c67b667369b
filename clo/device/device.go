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

// Package device defines the capabilities go-clops needs from a compute
// fabric: contexts, devices, in-order command queues, buffers, programs,
// kernels and completion events.
//
// The algorithms in clo/contrib only ever see these interfaces. A backend
// implements them (see clo/device/cpudev) and hands its context to the
// algorithms wrapped in a shared Handle.
package device

import "time"

// MemFlags describes how kernels may access a buffer.
type MemFlags uint8

const (
	// ReadWrite buffers can be read and written by kernels.
	ReadWrite MemFlags = iota
	// ReadOnly buffers are only read by kernels.
	ReadOnly
	// WriteOnly buffers are only written by kernels.
	WriteOnly
)

// String implements fmt.Stringer.
func (f MemFlags) String() string {
	switch f {
	case ReadWrite:
		return "read-write"
	case ReadOnly:
		return "read-only"
	case WriteOnly:
		return "write-only"
	default:
		return "unknown"
	}
}

// Context owns devices, buffers and programs.
type Context interface {
	// Devices returns the devices in this context. The first one is the
	// default device.
	Devices() []Device

	// NewQueue creates an in-order command queue on dev.
	NewQueue(dev Device) (Queue, error)

	// NewBuffer allocates size bytes of device memory.
	NewBuffer(flags MemFlags, size int) (Buffer, error)

	// NewProgram creates an unbuilt program from the concatenation of
	// sources.
	NewProgram(sources ...string) (Program, error)

	// Close releases the context. Objects created from it must not be used
	// afterwards.
	Close() error
}

// Device reports capability limits.
type Device interface {
	Name() string
	Vendor() string

	// MaxWorkGroupSize is the largest local size any kernel may use.
	MaxWorkGroupSize() int

	// LocalMemSize is the fast memory available to one work-group, in bytes.
	LocalMemSize() int

	// ComputeUnits is the number of work-groups that may run concurrently.
	ComputeUnits() int

	// SuggestWorkSizes returns a recommended (global, local) pair for n
	// work-items. k may be nil for a purely analytical query. The returned
	// local size is an upper bound callers may reduce.
	SuggestWorkSizes(k Kernel, n int) (global, local int, err error)
}

// Queue is an in-order command queue. Every Enqueue call returns as soon as
// the command is queued; the returned event completes when it has run.
type Queue interface {
	Device() Device

	// EnqueueWrite copies src into buf at offset. src must not be modified
	// until the event completes.
	EnqueueWrite(buf Buffer, offset int, src []byte, wait WaitList) (Event, error)

	// EnqueueRead copies len(dst) bytes of buf at offset into dst.
	EnqueueRead(buf Buffer, offset int, dst []byte, wait WaitList) (Event, error)

	// EnqueueCopy copies size bytes between device buffers.
	EnqueueCopy(src, dst Buffer, srcOffset, dstOffset, size int, wait WaitList) (Event, error)

	// EnqueueNDRange runs k over global work-items in groups of local. The
	// kernel arguments are captured when the call is made.
	EnqueueNDRange(k Kernel, global, local int, wait WaitList) (Event, error)

	// Finish blocks until every queued command has completed.
	Finish() error

	// Close finishes outstanding work and releases the queue.
	Close() error
}

// Buffer is a region of device memory.
type Buffer interface {
	Size() int
	Flags() MemFlags

	// Close releases the buffer. Commands already queued on it still run.
	Close() error
}

// Program is a set of kernels compiled from source.
type Program interface {
	// Build compiles the program. options is a flat compiler flag string.
	Build(options string) error

	// BuildLog returns the diagnostics of the last build.
	BuildLog() string

	// Kernel returns the named kernel. Repeated calls return the same kernel,
	// so arguments set through one handle are visible through the other.
	Kernel(name string) (Kernel, error)

	Close() error
}

// Kernel is a device function with positional arguments.
type Kernel interface {
	Name() string
	NumArgs() int

	// SetArg binds argument index.
	SetArg(index int, arg Arg) error

	// SetArgs binds arguments starting at index 0. Nil entries are skipped.
	SetArgs(args ...Arg) error

	// WorkGroupSize is the largest local size this kernel supports on dev.
	WorkGroupSize(dev Device) (int, error)

	// PreferredWorkGroupMultiple is the local size granularity that runs
	// best on dev.
	PreferredWorkGroupMultiple(dev Device) (int, error)
}

// Event tracks completion of one queued command.
type Event interface {
	Name() string
	SetName(name string)

	// Wait blocks until the command completes and returns its error.
	Wait() error

	// Duration is the time the command spent running. It is zero until the
	// command completes.
	Duration() time.Duration
}
