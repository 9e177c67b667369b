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
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ajroetker/go-clops/clo/device"
)

type argKind uint8

const (
	argBuffer argKind = iota
	argScalar
	argLocal
)

func (k argKind) String() string {
	switch k {
	case argBuffer:
		return "buffer"
	case argScalar:
		return "scalar"
	case argLocal:
		return "local"
	default:
		return "unknown"
	}
}

func kindOf(a device.Arg) argKind {
	switch a.(type) {
	case device.BufferArg:
		return argBuffer
	case device.LocalArg:
		return argLocal
	default:
		return argScalar
	}
}

// kernelFunc runs one work-group.
type kernelFunc func(g *group) error

// kernelSpec is a native kernel: its argument layout and its group function.
type kernelSpec struct {
	args []argKind
	fn   kernelFunc
}

// group is the view one work-group has of its dispatch. Work-items are
// simulated by loops inside the kernel function; a barrier is the boundary
// between two such loops.
type group struct {
	id         int
	localSize  int
	globalSize int
	bufs       [][]byte
	scalars    []uint64
	locals     [][]byte
}

func (g *group) numGroups() int { return g.globalSize / g.localSize }

// firstItem is the global id of the group's first work-item.
func (g *group) firstItem() int { return g.id * g.localSize }

func (g *group) scalar(i int) int { return int(g.scalars[i]) }

// argError reports a kernel argument the group function cannot use.
func argError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", device.ErrInvalidArg, fmt.Sprintf(format, args...))
}

// elems returns the first n elements of buffer argument i, failing when the
// buffer is too small.
func elems[T any](g *group, i, n int) ([]T, error) {
	v := view[T](g.bufs[i])
	if len(v) < n {
		return nil, argError("argument %d holds %d elements, need %d", i, len(v), n)
	}
	return v[:n], nil
}

// kernel is a native kernel bound to a program.
type kernel struct {
	prg  *program
	name string
	spec kernelSpec

	mu   sync.Mutex
	args []device.Arg
}

var _ device.Kernel = (*kernel)(nil)

func (k *kernel) Name() string { return k.name }
func (k *kernel) NumArgs() int { return len(k.spec.args) }

func (k *kernel) SetArg(index int, arg device.Arg) error {
	if index < 0 || index >= len(k.spec.args) {
		return fmt.Errorf("%w: %s has %d arguments, index %d", device.ErrInvalidArg, k.name, len(k.spec.args), index)
	}
	if arg == nil {
		return fmt.Errorf("%w: %s argument %d is nil", device.ErrInvalidArg, k.name, index)
	}
	if got, want := kindOf(arg), k.spec.args[index]; got != want {
		return fmt.Errorf("%w: %s argument %d is a %s, want %s", device.ErrInvalidArg, k.name, index, got, want)
	}
	switch a := arg.(type) {
	case device.BufferArg:
		if _, err := asBuffer(k.prg.ctx, a.Buffer); err != nil {
			return fmt.Errorf("%s argument %d: %w", k.name, index, err)
		}
	case device.ScalarArg:
		if _, ok := device.ScalarUint64(a.Value); !ok {
			return fmt.Errorf("%w: %s argument %d has unsupported scalar type %T", device.ErrInvalidArg, k.name, index, a.Value)
		}
	case device.LocalArg:
		if a.Size <= 0 {
			return fmt.Errorf("%w: %s argument %d requests %d bytes of local memory", device.ErrInvalidArg, k.name, index, a.Size)
		}
	}
	k.mu.Lock()
	k.args[index] = arg
	k.mu.Unlock()
	return nil
}

func (k *kernel) SetArgs(args ...device.Arg) error {
	for i, a := range args {
		if a == nil {
			continue
		}
		if err := k.SetArg(i, a); err != nil {
			return err
		}
	}
	return nil
}

func (k *kernel) WorkGroupSize(device.Device) (int, error) {
	return k.prg.ctx.dev.maxWorkGroup, nil
}

func (k *kernel) PreferredWorkGroupMultiple(device.Device) (int, error) {
	return k.prg.ctx.dev.prefMultiple, nil
}

// prepare validates a launch and captures the current arguments. The
// returned function runs the dispatch.
func (k *kernel) prepare(global, local int) (func() error, error) {
	dev := k.prg.ctx.dev
	switch {
	case local <= 0 || global <= 0:
		return nil, fmt.Errorf("%w: %s global=%d local=%d", device.ErrInvalidWorkSize, k.name, global, local)
	case global%local != 0:
		return nil, fmt.Errorf("%w: %s global size %d is not a multiple of local size %d", device.ErrInvalidWorkSize, k.name, global, local)
	case local > dev.maxWorkGroup:
		return nil, fmt.Errorf("%w: %s local size %d exceeds device maximum %d", device.ErrInvalidWorkSize, k.name, local, dev.maxWorkGroup)
	}

	k.mu.Lock()
	args := append([]device.Arg(nil), k.args...)
	k.mu.Unlock()

	bufs := make([][]byte, len(args))
	scalars := make([]uint64, len(args))
	localSizes := make([]int, len(args))
	localTotal := 0
	for i, a := range args {
		switch a := a.(type) {
		case nil:
			return nil, fmt.Errorf("%w: %s argument %d is not set", device.ErrInvalidArg, k.name, i)
		case device.BufferArg:
			b, err := asBuffer(k.prg.ctx, a.Buffer)
			if err != nil {
				return nil, fmt.Errorf("%s argument %d: %w", k.name, i, err)
			}
			bufs[i] = b.data
		case device.ScalarArg:
			scalars[i], _ = device.ScalarUint64(a.Value)
		case device.LocalArg:
			localSizes[i] = a.Size
			localTotal += a.Size
		}
	}
	if localTotal > dev.localMem {
		return nil, fmt.Errorf("%w: %s needs %d bytes of local memory, device has %d", device.ErrOutOfResources, k.name, localTotal, dev.localMem)
	}

	return func() error {
		return k.launch(bufs, scalars, localSizes, global, local)
	}, nil
}

// launch runs every work-group of one dispatch on the context pool.
func (k *kernel) launch(bufs [][]byte, scalars []uint64, localSizes []int, global, local int) error {
	ctx := k.prg.ctx
	numGroups := global / local
	start := time.Now()
	err := ctx.pool.Run(numGroups, func(id int) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %s work-group %d: %v", device.ErrKernelFault, k.name, id, r)
			}
		}()
		g := &group{
			id:         id,
			localSize:  local,
			globalSize: global,
			bufs:       bufs,
			scalars:    scalars,
			locals:     make([][]byte, len(localSizes)),
		}
		for i, n := range localSizes {
			if n > 0 {
				g.locals[i] = alignedBytes(n)
			}
		}
		return k.spec.fn(g)
	})
	ctx.metrics.observeDispatch(k.name, numGroups, time.Since(start))
	if err != nil {
		if !errors.Is(err, device.ErrKernelFault) && !errors.Is(err, device.ErrInvalidArg) {
			err = fmt.Errorf("%w: %s: %w", device.ErrKernelFault, k.name, err)
		}
		return err
	}
	return nil
}
