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

package sort

import (
	"cmp"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	gocmp "github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
	"golang.org/x/sync/errgroup"

	"github.com/ajroetker/go-clops/clo"
	"github.com/ajroetker/go-clops/clo/device"
	"github.com/ajroetker/go-clops/clo/device/cpudev"
)

func newHandle(t *testing.T, opts cpudev.Options) (*device.Handle, *cpudev.Context) {
	t.Helper()
	ctx, err := cpudev.NewContext(opts)
	require.NoError(t, err)
	h := device.Share(ctx)
	t.Cleanup(func() {
		assert.Equal(t, 1, h.Refs(), "instances left open")
		assert.Zero(t, ctx.LiveBuffers(), "leaked buffers")
		assert.NoError(t, h.Release())
	})
	return h, ctx
}

func newSorter(t *testing.T, name string, h *device.Handle, elem clo.Type, opts ...Option) *Sorter {
	t.Helper()
	s, err := New(name, h, elem, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, s.Close()) })
	return s
}

func checkSort[E clo.Scalar](t *testing.T, h *device.Handle, elem clo.Type, gen func(*rand.Rand) E) {
	for _, kind := range Kinds() {
		t.Run(kind.String()+"_"+elem.Name(), func(t *testing.T) {
			s := newSorter(t, kind.String(), h, elem)
			r := rand.New(rand.NewPCG(uint64(kind), uint64(elem)))
			for _, n := range []int{0, 1, 2, 3, 5, 16, 17, 100, 255, 1024, 3001} {
				for _, lwsMax := range []int{0, 8} {
					in := make([]E, n)
					for i := range in {
						in[i] = gen(r)
					}
					want := slices.Clone(in)
					slices.Sort(want)
					out := make([]E, n)
					require.NoError(t, s.SortHost(nil, nil, clo.AsBytes(in), clo.AsBytes(out), n, lwsMax))
					if diff := gocmp.Diff(want, out); diff != "" {
						t.Fatalf("n=%d lwsMax=%d: sort mismatch (-want +got):\n%s", n, lwsMax, diff)
					}
				}
			}
		})
	}
}

func TestSortTypes(t *testing.T) {
	h, _ := newHandle(t, cpudev.Options{})
	checkSort[int32](t, h, clo.Int, func(r *rand.Rand) int32 { return r.Int32() })
	checkSort[uint32](t, h, clo.UInt, func(r *rand.Rand) uint32 { return r.Uint32() })
	checkSort[int8](t, h, clo.Char, func(r *rand.Rand) int8 { return int8(r.IntN(256) - 128) })
	checkSort[uint16](t, h, clo.UShort, func(r *rand.Rand) uint16 { return uint16(r.UintN(1 << 16)) })
	checkSort[int64](t, h, clo.Long, func(r *rand.Rand) int64 { return r.Int64() - r.Int64() })
	checkSort[float32](t, h, clo.Float, func(r *rand.Rand) float32 { return float32(r.NormFloat64()) })
	checkSort[float64](t, h, clo.Double, func(r *rand.Rand) float64 { return r.Float64()*2e6 - 1e6 })
}

func TestSortHalf(t *testing.T) {
	h, _ := newHandle(t, cpudev.Options{})
	r := rand.New(rand.NewPCG(16, 16))
	in := make([]uint16, 300)
	for i := range in {
		in[i] = float16.Fromfloat32(float32(r.IntN(2001)-1000) / 8).Bits()
	}
	for _, kind := range Kinds() {
		s := newSorter(t, kind.String(), h, clo.Half)
		out := make([]uint16, len(in))
		require.NoError(t, s.SortHost(nil, nil, clo.AsBytes(in), clo.AsBytes(out), len(in), 0))
		assert.True(t, slices.IsSortedFunc(out, func(a, b uint16) int {
			return cmp.Compare(float16.Frombits(a).Float32(), float16.Frombits(b).Float32())
		}), "%s", kind)
	}
}

// All implementations agree on the same input.
func TestImplementationsAgree(t *testing.T) {
	h, _ := newHandle(t, cpudev.Options{MaxWorkGroupSize: 64})
	r := rand.New(rand.NewPCG(7, 11))
	in := make([]uint32, 5000)
	for i := range in {
		in[i] = r.Uint32N(1000)
	}
	var results [][]uint32
	for _, kind := range Kinds() {
		s := newSorter(t, kind.String(), h, clo.UInt)
		out := make([]uint32, len(in))
		require.NoError(t, s.SortHost(nil, nil, clo.AsBytes(in), clo.AsBytes(out), len(in), 0))
		results = append(results, out)
	}
	for i := 1; i < len(results); i++ {
		if diff := gocmp.Diff(results[0], results[i]); diff != "" {
			t.Errorf("%s and %s disagree (-%s +%s):\n%s", Kind(0), Kind(i), Kind(0), Kind(i), diff)
		}
	}
}

func TestSortDescending(t *testing.T) {
	h, _ := newHandle(t, cpudev.Options{})
	r := rand.New(rand.NewPCG(3, 3))
	in := make([]int32, 777)
	for i := range in {
		in[i] = r.Int32N(100) - 50
	}
	want := slices.Clone(in)
	slices.SortFunc(want, func(a, b int32) int { return cmp.Compare(b, a) })
	for _, kind := range Kinds() {
		s := newSorter(t, kind.String(), h, clo.Int, WithCompare("a < b"))
		got := slices.Clone(in)
		require.NoError(t, s.SortHost(nil, nil, clo.AsBytes(got), nil, len(got), 0))
		assert.Equal(t, want, got, "%s", kind)
	}
}

// Long elements sorted by their low 32 bits as a signed key.
func TestSortKeyType(t *testing.T) {
	h, _ := newHandle(t, cpudev.Options{})
	r := rand.New(rand.NewPCG(5, 8))
	in := make([]int64, 600)
	for i := range in {
		in[i] = int64(r.Uint64())
	}
	key := func(x int64) int32 { return int32(x) }
	stable := slices.Clone(in)
	slices.SortStableFunc(stable, func(a, b int64) int { return cmp.Compare(key(a), key(b)) })

	for _, kind := range Kinds() {
		s := newSorter(t, kind.String(), h, clo.Long, WithKeyType(clo.Int))
		assert.Equal(t, clo.Int, s.KeyType())
		got := make([]int64, len(in))
		require.NoError(t, s.SortHost(nil, nil, clo.AsBytes(in), clo.AsBytes(got), len(in), 0))
		switch kind {
		case GSelect, SatRadix:
			assert.Equal(t, stable, got, "%s is stable", kind)
		default:
			assert.True(t, slices.IsSortedFunc(got, func(a, b int64) int { return cmp.Compare(key(a), key(b)) }), "%s", kind)
			assert.ElementsMatch(t, in, got, "%s", kind)
		}
	}
}

func TestSortDevice(t *testing.T) {
	h, ctx := newHandle(t, cpudev.Options{MaxWorkGroupSize: 32})
	q, err := ctx.NewQueue(nil)
	require.NoError(t, err)
	defer q.Close()
	qComm, err := ctx.NewQueue(nil)
	require.NoError(t, err)
	defer qComm.Close()

	data := make([]uint64, 1000)
	for i := range data {
		data[i] = uint64(len(data) - i)
	}
	want := slices.Sorted(slices.Values(data))
	size := 8 * len(data)

	for _, kind := range Kinds() {
		t.Run(kind.String(), func(t *testing.T) {
			s := newSorter(t, kind.String(), h, clo.ULong)
			in, err := ctx.NewBuffer(device.ReadWrite, size)
			require.NoError(t, err)
			defer in.Close()
			out, err := ctx.NewBuffer(device.ReadWrite, size)
			require.NoError(t, err)
			defer out.Close()

			// Separate output: input stays untouched.
			require.NoError(t, device.WriteSync(q, in, clo.AsBytes(data), nil))
			wl, err := s.SortDevice(q, qComm, in, out, len(data), 0)
			require.NoError(t, err)
			got := make([]uint64, len(data))
			require.NoError(t, device.ReadSync(q, out, clo.AsBytes(got), wl))
			assert.Equal(t, want, got)
			require.NoError(t, device.ReadSync(q, in, clo.AsBytes(got), nil))
			assert.Equal(t, data, got)

			// Nil output sorts in place whatever the implementation.
			wl, err = s.SortDevice(q, qComm, in, nil, len(data), 0)
			require.NoError(t, err)
			require.NoError(t, device.ReadSync(q, in, clo.AsBytes(got), wl))
			assert.Equal(t, want, got)
		})
	}
}

// sbitonic launches one kernel per network step: T(T+1)/2 for T stages.
func TestSBitonicDispatchCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, ctx := newHandle(t, cpudev.Options{Registerer: reg})
	q, err := ctx.NewQueue(nil)
	require.NoError(t, err)
	defer q.Close()
	s := newSorter(t, "sbitonic", h, clo.UInt)

	const n = 1000
	stages := clo.TrailingZeros(clo.NextPow2(n))
	require.Equal(t, 10, stages)
	data := make([]uint32, n)
	for i := range data {
		data[i] = uint32(n - i)
	}
	in, err := ctx.NewBuffer(device.ReadWrite, 4*n)
	require.NoError(t, err)
	defer in.Close()
	out, err := ctx.NewBuffer(device.ReadWrite, 4*n)
	require.NoError(t, err)
	defer out.Close()

	require.NoError(t, device.WriteSync(q, in, clo.AsBytes(data), nil))
	wl, err := s.SortDevice(q, nil, in, out, n, 0)
	require.NoError(t, err)
	got := make([]uint32, n)
	require.NoError(t, device.ReadSync(q, out, clo.AsBytes(got), wl))
	assert.True(t, slices.IsSorted(got))

	dispatches := fmt.Sprintf(`# HELP clo_cpudev_dispatches_total Kernel dispatches executed, by kernel.
# TYPE clo_cpudev_dispatches_total counter
clo_cpudev_dispatches_total{kernel="sbitonic"} %d
`, clo.TriangularSum(uint64(stages)))
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(dispatches), "clo_cpudev_dispatches_total"))

	// One input copy into the separate output, nothing else moved.
	transfers := fmt.Sprintf(`# HELP clo_cpudev_transfer_bytes_total Bytes moved by buffer commands, by direction.
# TYPE clo_cpudev_transfer_bytes_total counter
clo_cpudev_transfer_bytes_total{direction="copy"} %[1]d
clo_cpudev_transfer_bytes_total{direction="read"} %[1]d
clo_cpudev_transfer_bytes_total{direction="write"} %[1]d
`, 4*n)
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(transfers), "clo_cpudev_transfer_bytes_total"))
}

func TestSortTinyInputs(t *testing.T) {
	h, ctx := newHandle(t, cpudev.Options{})
	q, err := ctx.NewQueue(nil)
	require.NoError(t, err)
	defer q.Close()
	for _, kind := range Kinds() {
		s := newSorter(t, kind.String(), h, clo.Int)
		in, err := ctx.NewBuffer(device.ReadWrite, 4)
		require.NoError(t, err)
		out, err := ctx.NewBuffer(device.ReadWrite, 4)
		require.NoError(t, err)
		require.NoError(t, device.WriteSync(q, in, clo.AsBytes([]int32{42}), nil))

		wl, err := s.SortDevice(q, nil, in, out, 0, 0)
		require.NoError(t, err)
		assert.Empty(t, wl)

		wl, err = s.SortDevice(q, nil, in, out, 1, 0)
		require.NoError(t, err)
		got := []int32{0}
		require.NoError(t, device.ReadSync(q, out, clo.AsBytes(got), wl))
		assert.Equal(t, []int32{42}, got, "%s", kind)
		assert.NoError(t, in.Close())
		assert.NoError(t, out.Close())

		assert.NoError(t, s.SortHost(nil, nil, nil, nil, 0, 0))
	}
}

func TestSortArgumentErrors(t *testing.T) {
	h, ctx := newHandle(t, cpudev.Options{})
	s := newSorter(t, "sbitonic", h, clo.Int)
	q, err := ctx.NewQueue(nil)
	require.NoError(t, err)
	defer q.Close()
	buf, err := ctx.NewBuffer(device.ReadWrite, 16)
	require.NoError(t, err)
	defer buf.Close()

	_, err = s.SortDevice(q, nil, buf, nil, 5, 0)
	assert.ErrorIs(t, err, clo.ErrInvalidArgs)
	_, err = s.SortDevice(q, nil, buf, nil, -1, 0)
	assert.ErrorIs(t, err, clo.ErrInvalidArgs)
	_, err = s.SortDevice(nil, nil, buf, nil, 4, 0)
	assert.ErrorIs(t, err, clo.ErrInvalidArgs)
	assert.ErrorIs(t, s.SortHost(nil, nil, make([]byte, 8), nil, 3, 0), clo.ErrInvalidArgs)
}

func TestNewErrors(t *testing.T) {
	h, _ := newHandle(t, cpudev.Options{})
	for _, tc := range []struct {
		name, impl string
		opts       []Option
		want       error
	}{
		{"unknown impl", "quicksort", nil, clo.ErrImplNotFound},
		{"unknown option", "sbitonic", []Option{WithOptions("fast=1")}, clo.ErrInvalidArgs},
		{"minps above maxps", "abitonic", []Option{WithOptions("minps=3,maxps=2")}, clo.ErrInvalidArgs},
		{"maxps too large", "abitonic", []Option{WithOptions("maxps=5")}, clo.ErrInvalidArgs},
		{"minps zero", "abitonic", []Option{WithOptions("minps=0")}, clo.ErrInvalidArgs},
		{"radix not a power of two", "satradix", []Option{WithOptions("radix=12")}, clo.ErrInvalidArgs},
		{"radix too small", "satradix", []Option{WithOptions("radix=1")}, clo.ErrInvalidArgs},
		{"unknown scan", "satradix", []Option{WithOptions("scan=hillis")}, clo.ErrInvalidArgs},
		{"bad compare", "gselect", []Option{WithCompare("a != b")}, clo.ErrLibrary},
		{"bad compare is a build failure", "gselect", []Option{WithCompare("a != b")}, device.ErrBuild},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s, err := New(tc.impl, h, clo.Int, tc.opts...)
			assert.Nil(t, s)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	_, err := New("sbitonic", h, clo.Type(200))
	assert.ErrorIs(t, err, clo.ErrInvalidArgs)
}

func TestSatRadixRadixAboveLocalSize(t *testing.T) {
	h, _ := newHandle(t, cpudev.Options{MaxWorkGroupSize: 8})
	s := newSorter(t, "satradix", h, clo.UInt, WithOptions("radix=16"))
	in := []uint32{3, 2, 1}
	err := s.SortHost(nil, nil, clo.AsBytes(in), nil, len(in), 0)
	assert.ErrorIs(t, err, clo.ErrInvalidArgs)
}

func TestSatRadixOptions(t *testing.T) {
	h, _ := newHandle(t, cpudev.Options{})
	r := rand.New(rand.NewPCG(1, 2))
	in := make([]int32, 2000)
	for i := range in {
		in[i] = r.Int32() - r.Int32()
	}
	want := slices.Sorted(slices.Values(in))
	for _, radix := range []int{2, 4, 16, 256} {
		s := newSorter(t, "satradix", h, clo.Int, WithOptions(fmt.Sprintf("radix=%d, scan=blelloch", radix)))
		got := make([]int32, len(in))
		require.NoError(t, s.SortHost(nil, nil, clo.AsBytes(in), clo.AsBytes(got), len(in), 0))
		assert.Equal(t, want, got, "radix %d", radix)
	}
}

func TestKinds(t *testing.T) {
	assert.Len(t, Kinds(), 4)
	for _, k := range Kinds() {
		got, err := KindByName(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
		assert.Contains(t, Implementations, k.String())
	}
	_, err := KindByName("bogo")
	assert.ErrorIs(t, err, clo.ErrImplNotFound)
	assert.Equal(t, "Kind(9)", Kind(9).String())
}

func TestIntrospection(t *testing.T) {
	h, _ := newHandle(t, cpudev.Options{MaxWorkGroupSize: 64, LocalMemSize: 1 << 16})

	sb := newSorter(t, "sbitonic", h, clo.Int)
	assert.Equal(t, 1, sb.NumKernels())
	assert.Equal(t, "sbitonic", sb.KernelName(0))
	assert.Zero(t, sb.LocalMemUsage(0, 0, 1000))
	assert.True(t, sb.InPlace())

	gs := newSorter(t, "gselect", h, clo.Int)
	assert.Equal(t, "gselect", gs.KernelName(0))
	assert.False(t, gs.InPlace())

	ab := newSorter(t, "abitonic", h, clo.Float)
	assert.Equal(t, len(abitonicKernels), ab.NumKernels())
	assert.Equal(t, "abitonic_any", ab.KernelName(0))
	assert.Equal(t, "abitonic_hyb_s12_2s4v", ab.KernelName(ab.NumKernels()-1))
	assert.Zero(t, ab.LocalMemUsage(kPriv4s16v, 0, 1<<20))
	// 64 work-items each holding 16 floats.
	assert.Equal(t, 4*64*16, ab.LocalMemUsage(kHybS8x4s16v, 0, 1<<20))
	assert.Equal(t, 4*32*2, ab.LocalMemUsage(kLocalS2, 32, 1<<20))

	sr := newSorter(t, "satradix", h, clo.Long, WithOptions("radix=16"))
	assert.Equal(t, 6, sr.NumKernels())
	assert.Equal(t, "satradix_scatter", sr.KernelName(2))
	assert.Equal(t, "workgroupScan", sr.KernelName(3))
	assert.Equal(t, 64*8+16*4, sr.LocalMemUsage(0, 0, 10000))
	assert.Equal(t, 2*16*4, sr.LocalMemUsage(1, 0, 10000))
	assert.Zero(t, sr.LocalMemUsage(2, 0, 10000))
	assert.Positive(t, sr.LocalMemUsage(3, 0, 10000))
	assert.False(t, sr.InPlace())

	assert.Panics(t, func() { sb.KernelName(1) })
	assert.Panics(t, func() { sr.LocalMemUsage(-1, 0, 10) })
}

func TestCloseIsIdempotent(t *testing.T) {
	h, _ := newHandle(t, cpudev.Options{})
	s, err := New("satradix", h, clo.UInt)
	require.NoError(t, err)
	require.NoError(t, s.SortHost(nil, nil, clo.AsBytes([]uint32{3, 1, 2}), nil, 3, 0))
	assert.Equal(t, 3, h.Refs(), "sorter and its scanner hold references")
	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.Equal(t, 1, h.Refs())
	_, err = s.SortDevice(nil, nil, nil, nil, 1, 0)
	assert.ErrorIs(t, err, device.ErrReleased)
}

func TestABitonicLarge(t *testing.T) {
	if testing.Short() {
		t.Skip("large sort")
	}
	h, _ := newHandle(t, cpudev.Options{})
	s := newSorter(t, "abitonic", h, clo.UInt)
	r := rand.New(rand.NewPCG(20, 20))
	in := make([]uint32, 1<<20)
	for i := range in {
		in[i] = r.Uint32()
	}
	want := slices.Sorted(slices.Values(in))
	require.NoError(t, s.SortHost(nil, nil, clo.AsBytes(in), nil, len(in), 0))
	assert.True(t, slices.Equal(want, in))
}

func TestConcurrentSorters(t *testing.T) {
	h, _ := newHandle(t, cpudev.Options{})
	var g errgroup.Group
	for i, kind := range Kinds() {
		g.Go(func() error {
			s, err := New(kind.String(), h, clo.Int)
			if err != nil {
				return err
			}
			defer s.Close()
			r := rand.New(rand.NewPCG(uint64(i), 99))
			for range 5 {
				in := make([]int32, 1+r.IntN(2000))
				for j := range in {
					in[j] = r.Int32()
				}
				want := slices.Sorted(slices.Values(in))
				if err := s.SortHost(nil, nil, clo.AsBytes(in), nil, len(in), 0); err != nil {
					return err
				}
				if !slices.Equal(want, in) {
					return fmt.Errorf("%s: wrong order", kind)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}
