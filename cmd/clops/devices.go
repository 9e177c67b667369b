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
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newDevicesCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the devices of the CPU context and their limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			e, err := g.newEnv(cmd)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := e.close(cmd, g.metrics); err == nil {
					err = cerr
				}
			}()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tname\tvendor\tmax work-group\tlocal mem\tcompute units")
			for i, d := range e.ctx.Devices() {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%d\n", i, d.Name(), d.Vendor(), d.MaxWorkGroupSize(), d.LocalMemSize(), d.ComputeUnits())
			}
			return w.Flush()
		},
	}
}
