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

package scan

import (
	"github.com/ajroetker/go-clops/clo"
	"github.com/ajroetker/go-clops/clo/device"
)

const (
	kernelWorkgroupScan     = "workgroupScan"
	kernelWorkgroupSumsScan = "workgroupSumsScan"
	kernelAddWorkgroupSums  = "addWorkgroupSums"
)

var blellochKernels = []string{kernelWorkgroupScan, kernelWorkgroupSumsScan, kernelAddWorkgroupSums}

// geometry is the launch layout of one Blelloch scan.
type geometry struct {
	lws            int // local size of the scan and add-back kernels
	gwsScan        int // global size of the group scan
	numGroups      int
	blocksPerGroup int // 2*lws element blocks each group walks
	sumsLocal      int // local and global size of the sums scan
}

// newGeometry lays out a scan of numel elements with local sizes up to
// limit. Each work-item of the group scan covers two elements, and at most
// limit groups run so that their totals fit one group's sums scan.
func newGeometry(limit, numel int) geometry {
	half := clo.DivCeil(numel, 2)
	lws := clo.PrevPow2(min(limit, int(clo.NextPow2(uint64(numel)))/2))
	lws = max(lws, 1)
	g := geometry{lws: lws}
	g.gwsScan = min(clo.RoundUp(half, lws), lws*lws)
	g.numGroups = g.gwsScan / lws
	g.blocksPerGroup = clo.DivCeil(half, g.gwsScan)
	g.sumsLocal = max(int(clo.NextPow2(uint64(g.numGroups)))/2, 1)
	return g
}

// multiGroup reports whether the group totals need the second and third
// phase.
func (g geometry) multiGroup() bool {
	return g.gwsScan > g.lws
}

func blellochLocalMem(i int, g geometry, sumSize int) int {
	switch i {
	case 0:
		return 2 * g.lws * sumSize
	case 1:
		return 2 * g.lws * sumSize
	case 2:
		return sumSize
	}
	panic("scan: blelloch kernel index out of range")
}

// blelloch has no options.
type blelloch struct{}

func newBlelloch(options string) (*blelloch, error) {
	if _, err := clo.ParseOptions(options); err != nil {
		return nil, err
	}
	return &blelloch{}, nil
}

func (*blelloch) source() string {
	return "// Blelloch work-efficient exclusive scan.\n" + clo.Library("blelloch")
}

func (*blelloch) scan(s *Scanner, q device.Queue, in, out device.Buffer, numel, lwsMax int, wait device.WaitList) (_ device.WaitList, err error) {
	kScan, err := s.kernel(kernelWorkgroupScan)
	if err != nil {
		return nil, err
	}
	limit, err := clo.LocalSize(kScan, q.Device(), clo.DivCeil(numel, 2), lwsMax)
	if err != nil {
		return nil, err
	}
	g := newGeometry(limit, numel)
	sumSize := s.sum.Size()
	s.log.Debug("blelloch scan",
		"numel", numel,
		"lws", g.lws,
		"gws", g.gwsScan,
		"groups", g.numGroups,
		"blocks_per_group", g.blocksPerGroup)

	sums, err := s.h.Context().NewBuffer(device.ReadWrite, g.numGroups*sumSize)
	if err != nil {
		return nil, clo.LibraryError("create group sums buffer", err)
	}
	defer device.CloseInto(&err, sums)

	if err := kScan.SetArgs(
		device.Buf(in),
		device.Buf(out),
		device.Buf(sums),
		device.Local(blellochLocalMem(0, g, sumSize)),
		device.Priv(uint32(numel)),
		device.Priv(uint32(g.blocksPerGroup)),
	); err != nil {
		return nil, clo.LibraryError("set "+kernelWorkgroupScan+" arguments", err)
	}
	ev, err := q.EnqueueNDRange(kScan, g.gwsScan, g.lws, wait)
	if err != nil {
		return nil, clo.LibraryError("enqueue "+kernelWorkgroupScan, err)
	}
	ev.SetName("scan_" + kernelWorkgroupScan)
	if !g.multiGroup() {
		return device.WaitList{ev}, nil
	}

	kSums, err := s.kernel(kernelWorkgroupSumsScan)
	if err != nil {
		return nil, err
	}
	if err := kSums.SetArgs(
		device.Buf(sums),
		device.Local(2*g.sumsLocal*sumSize),
		device.Priv(uint32(g.numGroups)),
	); err != nil {
		return nil, clo.LibraryError("set "+kernelWorkgroupSumsScan+" arguments", err)
	}
	ev, err = q.EnqueueNDRange(kSums, g.sumsLocal, g.sumsLocal, device.WaitList{ev})
	if err != nil {
		return nil, clo.LibraryError("enqueue "+kernelWorkgroupSumsScan, err)
	}
	ev.SetName("scan_" + kernelWorkgroupSumsScan)

	kAdd, err := s.kernel(kernelAddWorkgroupSums)
	if err != nil {
		return nil, err
	}
	if err := kAdd.SetArgs(
		device.Buf(sums),
		device.Buf(out),
		device.Priv(uint32(g.blocksPerGroup)),
		device.Priv(uint32(numel)),
		device.Local(blellochLocalMem(2, g, sumSize)),
	); err != nil {
		return nil, clo.LibraryError("set "+kernelAddWorkgroupSums+" arguments", err)
	}
	ev, err = q.EnqueueNDRange(kAdd, clo.RoundUp(numel, g.lws), g.lws, device.WaitList{ev})
	if err != nil {
		return nil, clo.LibraryError("enqueue "+kernelAddWorkgroupSums, err)
	}
	ev.SetName("scan_" + kernelAddWorkgroupSums)
	return device.WaitList{ev}, nil
}
