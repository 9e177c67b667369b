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

package clo

import (
	"github.com/ajroetker/go-clops/clo/device"
)

// Limits bounds the local size chosen for one dispatch.
type Limits struct {
	// DeviceMax is the device (or device suggested) maximum local size. It
	// must be positive.
	DeviceMax int

	// UserCap is an optional caller cap. Zero means no cap.
	UserCap int

	// KernelMax is an optional per-kernel ceiling. Zero means no ceiling.
	KernelMax int

	// Multiple is the preferred local size granularity. The local size is
	// rounded down to it when that leaves a nonzero value.
	Multiple int
}

// WorkSizes is a launch geometry.
type WorkSizes struct {
	Global int
	Local  int
}

// NumGroups returns the number of work-groups.
func (ws WorkSizes) NumGroups() int {
	return ws.Global / ws.Local
}

// ResolveWorkSizes derives a launch geometry covering requested work-items.
// Local is the smallest of the limits and is never zero; Global is the
// smallest multiple of Local that is >= requested.
func ResolveWorkSizes(requested int, lim Limits) (WorkSizes, error) {
	if requested < 0 {
		return WorkSizes{}, InvalidArgs("negative work-item count %d", requested)
	}
	if lim.DeviceMax <= 0 {
		return WorkSizes{}, InvalidArgs("device reports a maximum local size of %d", lim.DeviceMax)
	}
	local := lim.DeviceMax
	if lim.UserCap > 0 {
		local = min(local, lim.UserCap)
	}
	if lim.KernelMax > 0 {
		local = min(local, lim.KernelMax)
	}
	if lim.Multiple > 1 && local >= lim.Multiple {
		local -= local % lim.Multiple
	}
	return WorkSizes{Global: RoundUp(requested, local), Local: local}, nil
}

// LocalSize asks dev for a local size suitable for running k over requested
// work-items and clamps the answer with userCap. When k is not nil its own
// maximum and preferred multiple also apply. k may be nil.
func LocalSize(k device.Kernel, dev device.Device, requested, userCap int) (int, error) {
	_, suggested, err := dev.SuggestWorkSizes(k, max(requested, 1))
	if err != nil {
		return 0, LibraryError("suggest work sizes", err)
	}
	lim := Limits{DeviceMax: suggested, UserCap: userCap}
	if k != nil {
		if lim.KernelMax, err = k.WorkGroupSize(dev); err != nil {
			return 0, LibraryError("query work-group size of "+k.Name(), err)
		}
		if lim.Multiple, err = k.PreferredWorkGroupMultiple(dev); err != nil {
			return 0, LibraryError("query preferred work-group multiple of "+k.Name(), err)
		}
	}
	ws, err := ResolveWorkSizes(requested, lim)
	if err != nil {
		return 0, err
	}
	return ws.Local, nil
}

// Pow2LocalSize is LocalSize rounded down to a power of two, as required by
// the sorting and scan networks.
func Pow2LocalSize(k device.Kernel, dev device.Device, requested, userCap int) (int, error) {
	lws, err := LocalSize(k, dev, requested, userCap)
	if err != nil {
		return 0, err
	}
	return PrevPow2(lws), nil
}
