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

// Package cpudev is a device backend that runs kernels on the host CPU.
//
// Each kernel dispatch is split into work-groups exactly like on an
// accelerator: every group receives its own local memory arena and the
// groups of one dispatch run concurrently on a shared worker pool. Command
// queues are in order and asynchronous; each queue owns one goroutine that
// executes its commands after their wait-lists complete.
//
// Programs are built from source text. The "#define" lines and "-D" compiler
// flags form the macro table, and a "#pragma clo_library NAME" line selects
// the native kernel library implementing the program's kernels.
//
// # Configuration
//
// Options fields left at zero fall back to environment variables and then to
// built-in defaults:
//
//   - CLO_CPU_MAX_WORKGROUP: maximum local size (default 256)
//   - CLO_CPU_LOCAL_MEM: local memory per work-group in bytes (default
//     derived from the L1 data cache, at least 64 KiB)
//   - CLO_CPU_WORKERS: worker goroutines (default GOMAXPROCS)
package cpudev

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ajroetker/go-clops/clo"
	"github.com/ajroetker/go-clops/clo/contrib/workerpool"
	"github.com/ajroetker/go-clops/clo/device"
)

// DefaultMaxWorkGroupSize is the local size limit used when neither Options
// nor the environment set one.
const DefaultMaxWorkGroupSize = 256

// Options configures a CPU context.
type Options struct {
	// MaxWorkGroupSize is the largest local size kernels may use.
	MaxWorkGroupSize int

	// LocalMemSize is the local memory available to one work-group.
	LocalMemSize int

	// Workers is the number of goroutines running work-groups.
	Workers int

	// Registerer receives the device metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer

	// Logger receives device diagnostics. Nil uses clo.Logger().
	Logger *slog.Logger
}

// envInt reads a positive integer from the environment. Unset variables
// return 0.
func envInt(name string) (int, error) {
	val := os.Getenv(name)
	if val == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s=%q is not a positive integer", clo.ErrInvalidArgs, name, val)
	}
	return n, nil
}

// withDefaults fills zero fields from the environment and the host.
func (o Options) withDefaults() (Options, error) {
	fields := []struct {
		dst *int
		env string
		def func() int
	}{
		{&o.MaxWorkGroupSize, "CLO_CPU_MAX_WORKGROUP", func() int { return DefaultMaxWorkGroupSize }},
		{&o.LocalMemSize, "CLO_CPU_LOCAL_MEM", hostLocalMemSize},
		{&o.Workers, "CLO_CPU_WORKERS", func() int { return 0 }},
	}
	for _, f := range fields {
		if *f.dst > 0 {
			continue
		}
		n, err := envInt(f.env)
		if err != nil {
			return o, err
		}
		if n == 0 {
			n = f.def()
		}
		*f.dst = n
	}
	if o.Logger == nil {
		o.Logger = clo.Logger()
	}
	return o, nil
}

// Context is a CPU compute context with a single device.
type Context struct {
	dev     *cpuDevice
	pool    *workerpool.Pool
	metrics *metrics
	log     *slog.Logger

	liveBuffers atomic.Int64
	closed      atomic.Bool

	mu     sync.Mutex
	queues map[*queue]struct{}
}

var _ device.Context = (*Context)(nil)

// NewContext creates a CPU context.
func NewContext(opts Options) (*Context, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	pool := workerpool.New(opts.Workers)
	c := &Context{
		pool:    pool,
		metrics: newMetrics(opts.Registerer),
		log:     opts.Logger,
		queues:  make(map[*queue]struct{}),
	}
	c.dev = newCPUDevice(opts.MaxWorkGroupSize, opts.LocalMemSize, pool.NumWorkers())
	c.log.Debug("cpu context created",
		"device", c.dev.Name(),
		"max_work_group", c.dev.MaxWorkGroupSize(),
		"local_mem", c.dev.LocalMemSize(),
		"workers", pool.NumWorkers())
	return c, nil
}

// Devices implements device.Context.
func (c *Context) Devices() []device.Device {
	return []device.Device{c.dev}
}

// NewQueue implements device.Context.
func (c *Context) NewQueue(dev device.Device) (device.Queue, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("%w: context", device.ErrReleased)
	}
	if dev != nil && dev != device.Device(c.dev) {
		return nil, fmt.Errorf("%w: device %q does not belong to this context", device.ErrInvalidArg, dev.Name())
	}
	q := newQueue(c)
	c.mu.Lock()
	c.queues[q] = struct{}{}
	c.mu.Unlock()
	return q, nil
}

func (c *Context) forgetQueue(q *queue) {
	c.mu.Lock()
	delete(c.queues, q)
	c.mu.Unlock()
}

// NewBuffer implements device.Context.
func (c *Context) NewBuffer(flags device.MemFlags, size int) (device.Buffer, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("%w: context", device.ErrReleased)
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: buffer size %d", device.ErrOutOfResources, size)
	}
	b := &buffer{ctx: c, flags: flags, data: alignedBytes(size)}
	c.liveBuffers.Add(1)
	c.metrics.liveBuffers.Inc()
	return b, nil
}

// NewProgram implements device.Context.
func (c *Context) NewProgram(sources ...string) (device.Program, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("%w: context", device.ErrReleased)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no program sources", device.ErrBuild)
	}
	return newProgram(c, sources), nil
}

// LiveBuffers returns the number of buffers not yet closed.
func (c *Context) LiveBuffers() int {
	return int(c.liveBuffers.Load())
}

// Close finishes every queue and stops the worker pool.
func (c *Context) Close() error {
	if c.closed.Swap(true) {
		return fmt.Errorf("%w: context closed twice", device.ErrReleased)
	}
	c.mu.Lock()
	queues := make([]*queue, 0, len(c.queues))
	for q := range c.queues {
		queues = append(queues, q)
	}
	c.mu.Unlock()

	var errs []error
	for _, q := range queues {
		errs = append(errs, q.Close())
	}
	c.pool.Close()
	if n := c.LiveBuffers(); n > 0 {
		c.log.Warn("cpu context closed with live buffers", "count", n)
	}
	return errors.Join(errs...)
}
