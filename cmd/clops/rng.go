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
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"github.com/ajroetker/go-clops/clo"
	"github.com/ajroetker/go-clops/clo/contrib/rng"
)

type rngFlags struct {
	impl     string
	seedType string
	hash     string
	seed     uint64
	count    int
	bits     int
	rounds   int
	buckets  int
}

var seedTypes = map[string]rng.SeedType{
	rng.SeedDevGID.String(): rng.SeedDevGID,
	rng.SeedHostMT.String(): rng.SeedHostMT,
}

func newRNGCmd(g *globalFlags) *cobra.Command {
	f := &rngFlags{}
	cmd := &cobra.Command{
		Use:   "rng",
		Short: "Generate random numbers and report their distribution",
		Long:  "Generate count values per round with one generator state per value. Implementations: " + rng.Implementations + ".",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRNG(cmd, g, f)
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&f.impl, "impl", "a", "xorshift64", "generator ("+rng.Implementations+")")
	fs.StringVar(&f.seedType, "seed-type", rng.SeedDevGID.String(), "seed source (dev_gid, host_mt)")
	fs.StringVar(&f.hash, "hash", "knuth", "work-item id hash for dev_gid ("+rng.Hashes+")")
	fs.Uint64Var(&f.seed, "seed", 0, "main seed")
	fs.IntVarP(&f.count, "count", "n", 1<<16, "values per round")
	fs.IntVar(&f.bits, "bits", 32, "bits per value (1..32)")
	fs.IntVar(&f.rounds, "rounds", 4, "rounds to generate")
	fs.IntVar(&f.buckets, "buckets", 16, "histogram buckets of the chi-square statistic")
	return cmd
}

func runRNG(cmd *cobra.Command, g *globalFlags, f *rngFlags) (err error) {
	seedType, ok := seedTypes[f.seedType]
	if !ok {
		return clo.InvalidArgs("seed type %q, want one of %v", f.seedType, lo.Keys(seedTypes))
	}
	if f.rounds < 1 || f.buckets < 2 || f.bits < 1 || f.bits > 32 {
		return clo.InvalidArgs("rounds=%d buckets=%d bits=%d", f.rounds, f.buckets, f.bits)
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
	r, err := rng.New(f.impl, e.h, seedType,
		rng.WithCount(f.count),
		rng.WithMainSeed(f.seed),
		rng.WithHash(f.hash),
		rng.WithCompilerOpts(g.compilerOpts),
		rng.WithLogger(e.log))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := r.Close(); err == nil {
			err = cerr
		}
	}()

	scale := float64(uint64(1) << f.bits)
	obs := make([]float64, f.buckets)
	xs := make([]float64, 0, f.count*f.rounds)
	vals := make([]uint32, f.count)
	var elapsed time.Duration
	for range f.rounds {
		start := time.Now()
		if err := r.FillHost(nil, vals, f.bits, g.lwsMax); err != nil {
			return err
		}
		elapsed += time.Since(start)
		for _, v := range vals {
			x := float64(v) / scale
			xs = append(xs, x)
			obs[min(int(x*float64(f.buckets)), f.buckets-1)]++
		}
	}
	exp := lo.Times(f.buckets, func(int) float64 { return float64(len(xs)) / float64(f.buckets) })
	mean, std := stat.MeanStdDev(xs, nil)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "impl        %s (%s seeds, %d bytes per state)\n", f.impl, seedType, r.StateSize())
	fmt.Fprintf(out, "values      %d x %d bits\n", len(xs), f.bits)
	fmt.Fprintf(out, "mean        %.6f (uniform: 0.5)\n", mean)
	fmt.Fprintf(out, "stddev      %.6f (uniform: 0.288675)\n", std)
	fmt.Fprintf(out, "chi-square  %.3f with %d degrees of freedom\n", stat.ChiSquare(obs, exp), f.buckets-1)
	fmt.Fprintf(out, "time        %v (%.2f Mvalues/s)\n", elapsed, float64(len(xs))/elapsed.Seconds()/1e6)
	return nil
}
