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

// Command clops exercises and times the sort, scan and random number
// generators on the CPU device.
//
// Usage:
//
//	clops sort --impl abitonic --type int --minpo2 8 --maxpo2 20
//	clops sort --impl satradix --options radix=256 --parallel 4 --output sort.tsv
//	clops scan --type uint --sum-type ulong --maxpo2 22
//	clops rng --impl xorshift128 --seed-type host_mt --count 1048576
//	clops devices
//
// Sort and scan run every size 2^minpo2 .. 2^maxpo2, check the results on the
// host and report the mean and standard deviation of the device time.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/ajroetker/go-clops/clo"
	"github.com/ajroetker/go-clops/clo/device"
	"github.com/ajroetker/go-clops/clo/device/cpudev"
)

// globalFlags configure the device and diagnostics of every command.
type globalFlags struct {
	verbose      bool
	metrics      bool
	maxWorkGroup int
	localMem     int
	workers      int
	lwsMax       int
	compilerOpts string
}

// env is the device state shared by one command run.
type env struct {
	h   *device.Handle
	ctx *cpudev.Context
	reg *prometheus.Registry
	log *slog.Logger
}

func (g *globalFlags) newEnv(cmd *cobra.Command) (*env, error) {
	level := slog.LevelWarn
	if g.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	clo.SetLogger(log)
	reg := prometheus.NewRegistry()
	ctx, err := cpudev.NewContext(cpudev.Options{
		MaxWorkGroupSize: g.maxWorkGroup,
		LocalMemSize:     g.localMem,
		Workers:          g.workers,
		Registerer:       reg,
		Logger:           log,
	})
	if err != nil {
		return nil, err
	}
	return &env{h: device.Share(ctx), ctx: ctx, reg: reg, log: log}, nil
}

// close prints the metrics when asked and releases the context.
func (e *env) close(cmd *cobra.Command, printMetrics bool) error {
	if printMetrics {
		families, err := e.reg.Gather()
		if err != nil {
			return err
		}
		for _, mf := range families {
			if _, err := expfmt.MetricFamilyToText(cmd.OutOrStdout(), mf); err != nil {
				return fmt.Errorf("%w: metrics: %v", clo.ErrStreamWrite, err)
			}
		}
	}
	return e.h.Release()
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "clops",
		Short:         "Run and time sort, scan and rng operations on the CPU device",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "log debug records to stderr")
	pf.BoolVar(&g.metrics, "metrics", false, "print device metrics when done")
	pf.IntVar(&g.maxWorkGroup, "max-workgroup", 0, "maximum local size of the device (0: default)")
	pf.IntVar(&g.localMem, "local-mem", 0, "local memory per work-group in bytes (0: from the cache size)")
	pf.IntVar(&g.workers, "workers", 0, "worker goroutines (0: GOMAXPROCS)")
	pf.IntVar(&g.lwsMax, "lws", 0, "local size cap passed to every operation (0: none)")
	pf.StringVar(&g.compilerOpts, "compiler-opts", "", "extra program build flags")

	root.AddCommand(
		newSortCmd(g),
		newScanCmd(g),
		newRNGCmd(g),
		newDevicesCmd(g),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "clops: %v\n", err)
		os.Exit(1)
	}
}
