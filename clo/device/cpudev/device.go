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
	"strings"

	"github.com/klauspost/cpuid/v2"

	"github.com/ajroetker/go-clops/clo"
	"github.com/ajroetker/go-clops/clo/device"
)

const (
	minLocalMem = 64 << 10
	maxLocalMem = 256 << 10
)

// cpuDevice describes the host processor as a compute device.
type cpuDevice struct {
	name         string
	vendor       string
	maxWorkGroup int
	localMem     int
	computeUnits int
	prefMultiple int
}

var _ device.Device = (*cpuDevice)(nil)

func newCPUDevice(maxWorkGroup, localMem, computeUnits int) *cpuDevice {
	name := strings.TrimSpace(cpuid.CPU.BrandName)
	if name == "" {
		name = "Generic CPU"
	}
	vendor := cpuid.CPU.VendorString
	if vendor == "" {
		vendor = cpuid.CPU.VendorID.String()
	}
	return &cpuDevice{
		name:         name,
		vendor:       vendor,
		maxWorkGroup: maxWorkGroup,
		localMem:     localMem,
		computeUnits: computeUnits,
		prefMultiple: max(vectorBytes()/4, 1),
	}
}

// hostLocalMemSize sizes local memory from the L1 data cache.
func hostLocalMemSize() int {
	return localMemFromCache(cpuid.CPU.Cache.L1D)
}

// localMemFromCache returns twice the L1 data cache, bounded to
// [minLocalMem, maxLocalMem]. Unknown cache sizes are reported as <= 0.
func localMemFromCache(l1d int) int {
	if l1d <= 0 {
		return minLocalMem
	}
	return min(max(2*l1d, minLocalMem), maxLocalMem)
}

func (d *cpuDevice) Name() string          { return d.name }
func (d *cpuDevice) Vendor() string        { return d.vendor }
func (d *cpuDevice) MaxWorkGroupSize() int { return d.maxWorkGroup }
func (d *cpuDevice) LocalMemSize() int     { return d.localMem }
func (d *cpuDevice) ComputeUnits() int     { return d.computeUnits }

// SuggestWorkSizes returns the largest power of two local size allowed by
// the device and k that does not exceed the next power of two of n, and the
// matching global size. A device reporting no capacity returns zeros.
func (d *cpuDevice) SuggestWorkSizes(k device.Kernel, n int) (global, local int, err error) {
	limit := d.maxWorkGroup
	if k != nil {
		kmax, err := k.WorkGroupSize(d)
		if err != nil {
			return 0, 0, err
		}
		limit = min(limit, kmax)
	}
	if limit <= 0 {
		return 0, 0, nil
	}
	local = clo.PrevPow2(limit)
	if n > 0 {
		local = min(local, int(clo.NextPow2(uint64(n))))
	}
	return clo.RoundUp(max(n, 1), local), local, nil
}
