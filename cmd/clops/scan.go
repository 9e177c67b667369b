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
	"time"

	"github.com/spf13/cobra"

	"github.com/ajroetker/go-clops/clo"
	"github.com/ajroetker/go-clops/clo/contrib/scan"
	"github.com/ajroetker/go-clops/clo/device"
)

type scanFlags struct {
	bench       benchFlags
	impl        string
	typeName    string
	sumTypeName string
	options     string
	noCheck     bool
}

func newScanCmd(g *globalFlags) *cobra.Command {
	f := &scanFlags{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Exclusive prefix sums of random arrays of increasing size",
		Long:  "Scan random arrays of 2^minpo2 to 2^maxpo2 elements in [0, 16). Implementations: " + scan.Implementations + ".",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScan(cmd, g, f)
		},
	}
	fs := cmd.Flags()
	f.bench.register(fs)
	fs.StringVarP(&f.impl, "impl", "a", "blelloch", "scan implementation ("+scan.Implementations+")")
	fs.StringVarP(&f.typeName, "type", "t", "uint", "element type ("+clo.TypeNames+")")
	fs.StringVar(&f.sumTypeName, "sum-type", "ulong", "sum type ("+clo.TypeNames+")")
	fs.StringVar(&f.options, "options", "", "implementation options, key=value,...")
	fs.BoolVar(&f.noCheck, "no-check", false, "skip checking results on the host")
	return cmd
}

type scanInstance struct {
	s      *scan.Scanner
	q      device.Queue
	ctx    device.Context
	lwsMax int
	check  bool
}

func runScan(cmd *cobra.Command, g *globalFlags, f *scanFlags) (err error) {
	elem, err := clo.TypeByName(f.typeName)
	if err != nil {
		return err
	}
	sum, err := clo.TypeByName(f.sumTypeName)
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
	return bench(cmd, &f.bench, f.impl, func() (instance, error) {
		s, err := scan.New(f.impl, e.h, elem,
			scan.WithSumType(sum),
			scan.WithOptions(f.options),
			scan.WithCompilerOpts(g.compilerOpts),
			scan.WithLogger(e.log))
		if err != nil {
			return nil, err
		}
		q, err := e.ctx.NewQueue(nil)
		if err != nil {
			return nil, errors.Join(clo.LibraryError("create queue", err), s.Close())
		}
		return &scanInstance{s: s, q: q, ctx: e.ctx, lwsMax: g.lwsMax, check: !f.noCheck}, nil
	})
}

func (si *scanInstance) run(n int, r *rand.Rand) (_ time.Duration, err error) {
	elem, sum := si.s.ElemType(), si.s.SumType()
	host := randomElems(elem, n, r, true)
	in, err := si.ctx.NewBuffer(device.ReadOnly, len(host))
	if err != nil {
		return 0, clo.LibraryError("create input buffer", err)
	}
	defer device.CloseInto(&err, in)
	out, err := si.ctx.NewBuffer(device.WriteOnly, n*sum.Size())
	if err != nil {
		return 0, clo.LibraryError("create output buffer", err)
	}
	defer device.CloseInto(&err, out)
	if err := device.WriteSync(si.q, in, host, nil); err != nil {
		return 0, clo.LibraryError("write input", err)
	}

	start := time.Now()
	wl, err := si.s.ScanDevice(si.q, nil, in, out, n, si.lwsMax)
	if err != nil {
		return 0, err
	}
	if err := wl.Wait(); err != nil {
		return 0, clo.LibraryError("scan", err)
	}
	elapsed := time.Since(start)

	if !si.check {
		return elapsed, nil
	}
	res := make([]byte, n*sum.Size())
	if err := device.ReadSync(si.q, out, res, nil); err != nil {
		return 0, clo.LibraryError("read output", err)
	}
	got := values(sum, res)
	var acc uint64
	var facc float64
	for i, v := range values(elem, host) {
		want := facc
		if !sum.IsFloat() {
			want = wrap(sum, acc)
		}
		if got[i] != want {
			return 0, fmt.Errorf("wrong sum at %d: got %v, want %v", i, got[i], want)
		}
		acc += uint64(v)
		facc += v
	}
	return elapsed, nil
}

func (si *scanInstance) close() error {
	return clo.LibraryError("close scan instance", errors.Join(si.q.Close(), si.s.Close()))
}
