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
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/go-clops/clo"
	"github.com/ajroetker/go-clops/clo/device"
)

func newTestContext(t *testing.T, opts Options) *Context {
	t.Helper()
	ctx, err := NewContext(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctx.Close() })
	return ctx
}

func newTestQueue(t *testing.T, ctx *Context) device.Queue {
	t.Helper()
	q, err := ctx.NewQueue(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func buildProgram(t *testing.T, ctx *Context, options string, sources ...string) device.Program {
	t.Helper()
	prg, err := ctx.NewProgram(sources...)
	require.NoError(t, err)
	require.NoError(t, prg.Build(options), "build log: %s", prg.BuildLog())
	return prg
}

func newBuffer[T clo.Scalar](t *testing.T, ctx *Context, q device.Queue, data []T) device.Buffer {
	t.Helper()
	raw := clo.AsBytes(data)
	buf, err := ctx.NewBuffer(device.ReadWrite, len(raw))
	require.NoError(t, err)
	t.Cleanup(func() { _ = buf.Close() })
	ev, err := q.EnqueueWrite(buf, 0, raw, nil)
	require.NoError(t, err)
	require.NoError(t, ev.Wait())
	return buf
}

func readBuffer[T clo.Scalar](t *testing.T, q device.Queue, buf device.Buffer, n int) []T {
	t.Helper()
	out := make([]T, n)
	ev, err := q.EnqueueRead(buf, 0, clo.AsBytes(out), nil)
	require.NoError(t, err)
	require.NoError(t, ev.Wait())
	return out
}

func TestLocalMemFromCache(t *testing.T) {
	tests := []struct {
		l1d  int
		want int
	}{
		{0, 64 << 10},
		{-1, 64 << 10},
		{16 << 10, 64 << 10},
		{48 << 10, 96 << 10},
		{1 << 20, 256 << 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, localMemFromCache(tt.l1d), "l1d=%d", tt.l1d)
	}
}

func TestOptionsFromEnvironment(t *testing.T) {
	t.Setenv("CLO_CPU_MAX_WORKGROUP", "64")
	t.Setenv("CLO_CPU_LOCAL_MEM", "4096")
	t.Setenv("CLO_CPU_WORKERS", "3")
	ctx := newTestContext(t, Options{})
	dev := ctx.Devices()[0]
	assert.Equal(t, 64, dev.MaxWorkGroupSize())
	assert.Equal(t, 4096, dev.LocalMemSize())
	assert.Equal(t, 3, dev.ComputeUnits())
	assert.NotEmpty(t, dev.Name())

	// Explicit options win over the environment.
	ctx = newTestContext(t, Options{MaxWorkGroupSize: 32})
	assert.Equal(t, 32, ctx.Devices()[0].MaxWorkGroupSize())

	t.Setenv("CLO_CPU_WORKERS", "many")
	_, err := NewContext(Options{})
	assert.ErrorIs(t, err, clo.ErrInvalidArgs)
}

func TestSuggestWorkSizes(t *testing.T) {
	ctx := newTestContext(t, Options{MaxWorkGroupSize: 200})
	dev := ctx.Devices()[0]
	tests := []struct {
		n           int
		global, lws int
	}{
		{0, 128, 128},
		{1, 1, 1},
		{5, 8, 8},
		{100, 128, 128},
		{1000, 1024, 128},
		{1001, 1024, 128},
	}
	for _, tt := range tests {
		global, local, err := dev.SuggestWorkSizes(nil, tt.n)
		require.NoError(t, err)
		assert.Equal(t, tt.lws, local, "n=%d local", tt.n)
		assert.Equal(t, tt.global, global, "n=%d global", tt.n)
	}
}

func TestQueueInOrder(t *testing.T) {
	ctx := newTestContext(t, Options{})
	q := newTestQueue(t, ctx)

	src := []uint32{1, 2, 3, 4, 5, 6, 7, 8}
	a := newBuffer(t, ctx, q, src)
	b := newBuffer(t, ctx, q, make([]uint32, len(src)))

	// Nothing waits explicitly: queue order alone must sequence these.
	_, err := q.EnqueueCopy(a, b, 4, 0, 16, nil)
	require.NoError(t, err)
	_, err = q.EnqueueWrite(a, 0, clo.AsBytes([]uint32{9}), nil)
	require.NoError(t, err)
	require.NoError(t, q.Finish())

	assert.Equal(t, []uint32{2, 3, 4, 5, 0, 0, 0, 0}, readBuffer[uint32](t, q, b, len(src)))
	assert.Equal(t, uint32(9), readBuffer[uint32](t, q, a, 1)[0])
}

func TestQueueRangeChecks(t *testing.T) {
	ctx := newTestContext(t, Options{})
	q := newTestQueue(t, ctx)
	buf := newBuffer(t, ctx, q, make([]uint8, 16))

	_, err := q.EnqueueRead(buf, 8, make([]byte, 9), nil)
	assert.ErrorIs(t, err, device.ErrInvalidArg)
	_, err = q.EnqueueWrite(buf, -1, []byte{1}, nil)
	assert.ErrorIs(t, err, device.ErrInvalidArg)
	_, err = q.EnqueueCopy(buf, buf, 0, 12, 8, nil)
	assert.ErrorIs(t, err, device.ErrInvalidArg)

	other := newTestContext(t, Options{})
	foreign, err := other.NewBuffer(device.ReadWrite, 16)
	require.NoError(t, err)
	defer foreign.Close()
	_, err = q.EnqueueRead(foreign, 0, make([]byte, 4), nil)
	assert.ErrorIs(t, err, device.ErrInvalidArg)
}

func TestWaitListFailurePropagates(t *testing.T) {
	ctx := newTestContext(t, Options{})
	q1 := newTestQueue(t, ctx)
	q2 := newTestQueue(t, ctx)
	prg := buildProgram(t, ctx, "", clo.SortPrologue(clo.Int, clo.Int, "", ""), clo.Library("sbitonic"))
	k, err := prg.Kernel("sbitonic")
	require.NoError(t, err)

	buf := newBuffer(t, ctx, q1, make([]int32, 4))
	// numel past the end of the buffer makes the kernel fail.
	require.NoError(t, k.SetArgs(device.Buf(buf), device.Priv(uint32(1)), device.Priv(uint32(1)), device.Priv(uint32(64))))
	kev, err := q1.EnqueueNDRange(k, 32, 32, nil)
	require.NoError(t, err)

	var wait device.WaitList
	wait.Add(kev, nil)
	rev, err := q2.EnqueueRead(buf, 0, make([]byte, 16), wait)
	require.NoError(t, err)

	assert.ErrorIs(t, kev.Wait(), device.ErrInvalidArg)
	err = rev.Wait()
	require.Error(t, err)
	assert.ErrorIs(t, err, device.ErrInvalidArg)
	assert.Contains(t, err.Error(), "wait-list failed")
}

func TestNDRangeValidation(t *testing.T) {
	ctx := newTestContext(t, Options{MaxWorkGroupSize: 64, LocalMemSize: 1024})
	q := newTestQueue(t, ctx)
	prg := buildProgram(t, ctx, "", clo.SortPrologue(clo.UInt, clo.UInt, "", ""), clo.Library("abitonic"))
	buf := newBuffer(t, ctx, q, make([]uint32, 256))

	anyK, err := prg.Kernel("abitonic_any")
	require.NoError(t, err)
	_, err = q.EnqueueNDRange(anyK, 128, 64, nil)
	assert.ErrorIs(t, err, device.ErrInvalidArg, "unset arguments")

	require.NoError(t, anyK.SetArgs(device.Buf(buf), device.Priv(uint32(1)), device.Priv(uint32(1)), device.Priv(uint32(256))))
	_, err = q.EnqueueNDRange(anyK, 100, 64, nil)
	assert.ErrorIs(t, err, device.ErrInvalidWorkSize)
	_, err = q.EnqueueNDRange(anyK, 256, 128, nil)
	assert.ErrorIs(t, err, device.ErrInvalidWorkSize)
	_, err = q.EnqueueNDRange(anyK, 0, 0, nil)
	assert.ErrorIs(t, err, device.ErrInvalidWorkSize)

	assert.ErrorIs(t, anyK.SetArg(4, device.Priv(1)), device.ErrInvalidArg)
	assert.ErrorIs(t, anyK.SetArg(1, device.Buf(buf)), device.ErrInvalidArg)
	assert.ErrorIs(t, anyK.SetArg(1, device.ScalarArg{Value: "one"}), device.ErrInvalidArg)

	local, err := prg.Kernel("abitonic_local_s2")
	require.NoError(t, err)
	require.NoError(t, local.SetArgs(device.Buf(buf), device.Priv(uint32(2)), device.Local(2048), device.Priv(uint32(256))))
	_, err = q.EnqueueNDRange(local, 128, 64, nil)
	assert.ErrorIs(t, err, device.ErrOutOfResources)
}

func TestKernelPanicBecomesFault(t *testing.T) {
	libraries["test_panic"] = func(macros) (map[string]kernelSpec, error) {
		return map[string]kernelSpec{"boom": {
			args: []argKind{argScalar},
			fn: func(g *group) error {
				if g.id == g.scalar(0) {
					panic("bad group")
				}
				return nil
			},
		}}, nil
	}
	t.Cleanup(func() { delete(libraries, "test_panic") })

	ctx := newTestContext(t, Options{})
	q := newTestQueue(t, ctx)
	prg := buildProgram(t, ctx, "", clo.Library("test_panic"))
	k, err := prg.Kernel("boom")
	require.NoError(t, err)
	require.NoError(t, k.SetArg(0, device.Priv(3)))
	ev, err := q.EnqueueNDRange(k, 64, 8, nil)
	require.NoError(t, err)
	err = ev.Wait()
	assert.ErrorIs(t, err, device.ErrKernelFault)
	assert.Contains(t, err.Error(), "bad group")

	// The queue keeps working after a fault.
	require.NoError(t, k.SetArg(0, device.Priv(-1)))
	ev, err = q.EnqueueNDRange(k, 64, 8, nil)
	require.NoError(t, err)
	assert.NoError(t, ev.Wait())
	assert.Equal(t, "boom", ev.Name())
	assert.GreaterOrEqual(t, ev.Duration(), time.Duration(0))
}

func TestParseDefine(t *testing.T) {
	tests := []struct {
		in, name, body string
	}{
		{" CLO_SORT_ELEM_TYPE uint", "CLO_SORT_ELEM_TYPE", "uint"},
		{"CLO_SORT_COMPARE(a, b) (a > b)", "CLO_SORT_COMPARE", "(a > b)"},
		{"FLAG", "FLAG", ""},
		{"\tX\t 3 ", "X", "3"},
	}
	for _, tt := range tests {
		name, body := parseDefine(tt.in)
		assert.Equal(t, tt.name, name, tt.in)
		assert.Equal(t, tt.body, body, tt.in)
	}
}

func TestScanOptions(t *testing.T) {
	m := make(macros)
	scanOptions("-cl-fast-relaxed-math -D A=1 -DB=two -D C -DD=", m)
	assert.Equal(t, macros{"A": "1", "B": "two", "C": "1", "D": ""}, m)
}

func TestBuildFailures(t *testing.T) {
	ctx := newTestContext(t, Options{})
	tests := []struct {
		name    string
		options string
		sources []string
	}{
		{"no library", "", []string{clo.SortPrologue(clo.Int, clo.Int, "", "")}},
		{"unknown library", "", []string{clo.Library("quicksort")}},
		{"missing element type", "", []string{clo.Library("sbitonic")}},
		{"unknown element type", "", []string{clo.DefineMacro(clo.MacroSortElemType, "bool"), clo.Library("gselect")}},
		{"unsupported compare", "", []string{clo.SortPrologue(clo.Int, clo.Int, "a % b", ""), clo.Library("sbitonic")}},
		{"unsupported key", "", []string{clo.SortPrologue(clo.Int, clo.Int, "", "x.key"), clo.Library("sbitonic")}},
		{"radix not a power of two", clo.Define(clo.MacroSatRadixRadix, "12"), []string{clo.SortPrologue(clo.UInt, clo.UInt, "", ""), clo.Library("satradix")}},
		{"unknown scan sum type", "", []string{clo.DefineMacro(clo.MacroScanElemType, "int"), clo.DefineMacro(clo.MacroScanSumType, "bool"), clo.Library("blelloch")}},
		{"unknown generator", clo.Define(clo.MacroRNGAlgorithm, "mt19937"), []string{clo.Library("rng")}},
		{"unknown hash", clo.Define(clo.MacroRNGAlgorithm, "lcg") + " " + clo.Define(clo.MacroRNGHash, "md5"), []string{clo.Library("rng")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prg, err := ctx.NewProgram(tt.sources...)
			require.NoError(t, err)
			err = prg.Build(tt.options)
			assert.ErrorIs(t, err, device.ErrBuild)
			assert.NotEmpty(t, prg.BuildLog())
			_, err = prg.Kernel("sbitonic")
			assert.ErrorIs(t, err, device.ErrKernelNotFound)
		})
	}
}

func TestProgramKernelsAreShared(t *testing.T) {
	ctx := newTestContext(t, Options{})
	prg := buildProgram(t, ctx, "", clo.SortPrologue(clo.Float, clo.Float, "", ""), clo.Library("abitonic"))
	assert.Contains(t, prg.BuildLog(), "abitonic_hyb_s12_4s16v")

	k1, err := prg.Kernel("abitonic_priv_3s8v")
	require.NoError(t, err)
	k2, err := prg.Kernel("abitonic_priv_3s8v")
	require.NoError(t, err)
	assert.Same(t, k1, k2)
	assert.Equal(t, 4, k1.NumArgs())

	_, err = prg.Kernel("abitonic_local_s12")
	assert.ErrorIs(t, err, device.ErrKernelNotFound)

	require.NoError(t, prg.Close())
	_, err = prg.Kernel("abitonic_any")
	assert.ErrorIs(t, err, device.ErrReleased)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	ctx := newTestContext(t, Options{Registerer: reg})
	q := newTestQueue(t, ctx)
	prg := buildProgram(t, ctx, "", clo.SortPrologue(clo.Int, clo.Int, "", ""), clo.Library("sbitonic"))
	k, err := prg.Kernel("sbitonic")
	require.NoError(t, err)

	buf := newBuffer(t, ctx, q, []int32{4, 3, 2, 1})
	assert.Equal(t, 1.0, testutil.ToFloat64(ctx.metrics.liveBuffers))
	assert.Equal(t, 16.0, testutil.ToFloat64(ctx.metrics.transferBytes.WithLabelValues("write")))

	require.NoError(t, k.SetArgs(device.Buf(buf), device.Priv(uint32(1)), device.Priv(uint32(1)), device.Priv(uint32(4))))
	for range 3 {
		_, err := q.EnqueueNDRange(k, 2, 2, nil)
		require.NoError(t, err)
	}
	require.NoError(t, q.Finish())
	assert.Equal(t, 3.0, testutil.ToFloat64(ctx.metrics.dispatches.WithLabelValues("sbitonic")))
	assert.Equal(t, 3.0, testutil.ToFloat64(ctx.metrics.workGroups.WithLabelValues("sbitonic")))

	n, err := testutil.GatherAndCount(reg, "clo_cpudev_kernel_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, buf.Close())
	assert.Equal(t, 0.0, testutil.ToFloat64(ctx.metrics.liveBuffers))
	assert.ErrorIs(t, buf.Close(), device.ErrReleased)
	assert.Zero(t, ctx.LiveBuffers())
}

func TestContextClose(t *testing.T) {
	ctx, err := NewContext(Options{})
	require.NoError(t, err)
	q, err := ctx.NewQueue(ctx.Devices()[0])
	require.NoError(t, err)
	require.NoError(t, ctx.Close())

	_, err = q.EnqueueWrite(nil, 0, nil, nil)
	assert.Error(t, err)
	_, err = ctx.NewBuffer(device.ReadWrite, 8)
	assert.ErrorIs(t, err, device.ErrReleased)
	assert.True(t, errors.Is(ctx.Close(), device.ErrReleased))
}
