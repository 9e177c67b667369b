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
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/ajroetker/go-clops/clo"
)

// benchFlags control the size loop shared by sort and scan.
type benchFlags struct {
	minpo2   int
	maxpo2   int
	runs     int
	parallel int
	seed     uint64
	output   string
}

func (b *benchFlags) register(fs *pflag.FlagSet) {
	fs.IntVar(&b.minpo2, "minpo2", 4, "log2 of the smallest size")
	fs.IntVar(&b.maxpo2, "maxpo2", 16, "log2 of the largest size")
	fs.IntVar(&b.runs, "runs", 3, "runs per size and instance")
	fs.IntVar(&b.parallel, "parallel", 1, "instances running concurrently on the shared context")
	fs.Uint64Var(&b.seed, "seed", 0, "seed of the input generator")
	fs.StringVarP(&b.output, "output", "o", "", "write per-size statistics as TSV to this file")
}

func (b *benchFlags) validate() error {
	switch {
	case b.minpo2 < 0 || b.maxpo2 > 30 || b.minpo2 > b.maxpo2:
		return clo.InvalidArgs("size range 2^%d .. 2^%d", b.minpo2, b.maxpo2)
	case b.runs < 1 || b.parallel < 1:
		return clo.InvalidArgs("runs=%d parallel=%d must be positive", b.runs, b.parallel)
	}
	return nil
}

// instance runs one operation of n elements and returns the device time. It
// is created once per parallel worker.
type instance interface {
	run(n int, r *rand.Rand) (time.Duration, error)
	close() error
}

// sizeStats summarizes the runs of one size.
type sizeStats struct {
	n       int
	mean    float64 // seconds
	stddev  float64
	elemsPS float64
}

// bench runs every size on b.parallel instances and prints a table. label
// names the operation in the table and TSV output.
func bench(cmd *cobra.Command, b *benchFlags, label string, newInstance func() (instance, error)) (err error) {
	if err := b.validate(); err != nil {
		return err
	}
	insts := make([]instance, 0, b.parallel)
	defer func() {
		for _, inst := range insts {
			if cerr := inst.close(); err == nil {
				err = cerr
			}
		}
	}()
	for range b.parallel {
		inst, err := newInstance()
		if err != nil {
			return err
		}
		insts = append(insts, inst)
	}

	var tsv io.Writer
	if b.output != "" {
		f, err := os.Create(b.output)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", clo.ErrOpenFile, b.output, err)
		}
		defer func() {
			if cerr := f.Close(); err == nil && cerr != nil {
				err = fmt.Errorf("%w: %s: %v", clo.ErrStreamWrite, b.output, cerr)
			}
		}()
		tsv = f
		if _, err := fmt.Fprintln(tsv, "op\tn\tinstances\truns\tmean_s\tstddev_s\telems_per_s"); err != nil {
			return fmt.Errorf("%w: %s: %v", clo.ErrStreamWrite, b.output, err)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-10s %12s %14s %14s %14s\n", "op", "n", "mean (ms)", "stddev (ms)", "Melem/s")
	for po2 := b.minpo2; po2 <= b.maxpo2; po2++ {
		st, err := runSize(b, insts, 1<<po2)
		if err != nil {
			return fmt.Errorf("%s of 2^%d elements: %w", label, po2, err)
		}
		fmt.Fprintf(out, "%-10s %12d %14.4f %14.4f %14.2f\n", label, st.n, st.mean*1e3, st.stddev*1e3, st.elemsPS/1e6)
		if tsv != nil {
			if _, err := fmt.Fprintf(tsv, "%s\t%d\t%d\t%d\t%g\t%g\t%g\n", label, st.n, b.parallel, b.runs, st.mean, st.stddev, st.elemsPS); err != nil {
				return fmt.Errorf("%w: %s: %v", clo.ErrStreamWrite, b.output, err)
			}
		}
	}
	return nil
}

// runSize times b.runs operations of n elements on every instance.
func runSize(b *benchFlags, insts []instance, n int) (sizeStats, error) {
	times := make([][]float64, len(insts))
	var g errgroup.Group
	for i, inst := range insts {
		g.Go(func() error {
			r := rand.New(rand.NewPCG(b.seed, uint64(n)<<8|uint64(i)))
			for range b.runs {
				d, err := inst.run(n, r)
				if err != nil {
					return err
				}
				times[i] = append(times[i], d.Seconds())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sizeStats{}, err
	}
	var all []float64
	for _, ts := range times {
		all = append(all, ts...)
	}
	mean, std := stat.MeanStdDev(all, nil)
	if len(all) < 2 {
		std = 0
	}
	st := sizeStats{n: n, mean: mean, stddev: std}
	if mean > 0 {
		st.elemsPS = float64(n*len(insts)) / mean
	}
	return st, nil
}
