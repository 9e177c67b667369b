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

package main

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajroetker/go-clops/clo"
	"github.com/ajroetker/go-clops/clo/contrib/sort"
	"github.com/ajroetker/go-clops/clo/device"
)

type sortFlags struct {
	bench      benchFlags
	impl       string
	typeName   string
	options    string
	descending bool
	noCheck    bool
}

func newSortCmd(g *globalFlags) *cobra.Command {
	f := &sortFlags{}
	cmd := &cobra.Command{
		Use:   "sort",
		Short: "Sort random arrays of increasing size",
		Long:  "Sort random arrays of 2^minpo2 to 2^maxpo2 elements. Implementations: " + sort.Implementations + ".",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSort(cmd, g, f)
		},
	}
	fs := cmd.Flags()
	f.bench.register(fs)
	fs.StringVarP(&f.impl, "impl", "a", "sbitonic", "sort implementation ("+sort.Implementations+")")
	fs.StringVarP(&f.typeName, "type", "t", "uint", "element type ("+clo.TypeNames+")")
	fs.StringVar(&f.options, "options", "", "implementation options, key=value,...")
	fs.BoolVar(&f.descending, "descending", false, "sort in descending order")
	fs.BoolVar(&f.noCheck, "no-check", false, "skip checking results on the host")
	return cmd
}

type sortInstance struct {
	s          *sort.Sorter
	q          device.Queue
	ctx        device.Context
	elem       clo.Type
	lwsMax     int
	descending bool
	check      bool
}

func runSort(cmd *cobra.Command, g *globalFlags, f *sortFlags) (err error) {
	elem, err := clo.TypeByName(f.typeName)
	if err != nil {
		return err
	}
	e, err := g.newEnv(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := e.close(cmd, g.metrics); err == nil {
			err = cerr
		}
	}()
	opts := []sort.Option{
		sort.WithOptions(f.options),
		sort.WithCompilerOpts(g.compilerOpts),
		sort.WithLogger(e.log),
	}
	if f.descending {
		opts = append(opts, sort.WithCompare("a < b"))
	}
	return bench(cmd, &f.bench, f.impl, func() (instance, error) {
		s, err := sort.New(f.impl, e.h, elem, opts...)
		if err != nil {
			return nil, err
		}
		q, err := e.ctx.NewQueue(nil)
		if err != nil {
			return nil, errors.Join(clo.LibraryError("create queue", err), s.Close())
		}
		return &sortInstance{
			s:          s,
			q:          q,
			ctx:        e.ctx,
			elem:       elem,
			lwsMax:     g.lwsMax,
			descending: f.descending,
			check:      !f.noCheck,
		}, nil
	})
}

func (si *sortInstance) run(n int, r *rand.Rand) (_ time.Duration, err error) {
	host := randomElems(si.elem, n, r, false)
	size := len(host)
	in, err := si.ctx.NewBuffer(device.ReadWrite, size)
	if err != nil {
		return 0, clo.LibraryError("create input buffer", err)
	}
	defer device.CloseInto(&err, in)
	out := in
	if !si.s.InPlace() {
		if out, err = si.ctx.NewBuffer(device.ReadWrite, size); err != nil {
			return 0, clo.LibraryError("create output buffer", err)
		}
		defer device.CloseInto(&err, out)
	}
	if err := device.WriteSync(si.q, in, host, nil); err != nil {
		return 0, clo.LibraryError("write input", err)
	}

	start := time.Now()
	var devOut device.Buffer
	if out != in {
		devOut = out
	}
	wl, err := si.s.SortDevice(si.q, nil, in, devOut, n, si.lwsMax)
	if err != nil {
		return 0, err
	}
	if err := wl.Wait(); err != nil {
		return 0, clo.LibraryError("sort", err)
	}
	elapsed := time.Since(start)

	if !si.check {
		return elapsed, nil
	}
	sorted := make([]byte, size)
	if err := device.ReadSync(si.q, out, sorted, nil); err != nil {
		return 0, clo.LibraryError("read output", err)
	}
	want := sortKeys(si.elem, host)
	slices.Sort(want)
	if si.descending {
		slices.Reverse(want)
	}
	if got := sortKeys(si.elem, sorted); !slices.Equal(want, got) {
		i := firstDiff(want, got)
		return 0, fmt.Errorf("wrong order at %d: got key %#x, want %#x", i, got[i], want[i])
	}
	return elapsed, nil
}

// firstDiff returns the first index where a and b differ.
func firstDiff(a, b []uint64) int {
	for i := range a {
		if a[i] != b[i] {
			return i
		}
	}
	return len(a)
}

func (si *sortInstance) close() error {
	return clo.LibraryError("close sort instance", errors.Join(si.q.Close(), si.s.Close()))
}
