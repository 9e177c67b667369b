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
	"strconv"
	"sync"

	"github.com/ajroetker/go-clops/clo"
	"github.com/ajroetker/go-clops/clo/contrib/scan"
	"github.com/ajroetker/go-clops/clo/device"
)

const (
	kernelSatRadixLocalSort = "satradix_localsort"
	kernelSatRadixHistogram = "satradix_histogram"
	kernelSatRadixScatter   = "satradix_scatter"
)

var satRadixKernels = []string{
	kernelSatRadixLocalSort,
	kernelSatRadixHistogram,
	kernelSatRadixScatter,
}

// counterSize is the size of one digit counter on the device.
const counterSize = 4

// satradix is a least significant digit radix sort. Every pass sorts each
// work-group block by the current digit, counts digits per block, scans the
// counts with an owned Scanner and scatters the blocks.
type satradix struct {
	radix    int
	scanName string
	scanKind scan.Kind

	mu      sync.Mutex
	scanner *scan.Scanner
}

func newSatRadix(options string) (*satradix, error) {
	opts, err := clo.ParseOptions(options, "radix", "scan")
	if err != nil {
		return nil, err
	}
	radix, err := clo.UintOption(opts, "radix", 16)
	if err != nil {
		return nil, err
	}
	if radix < 2 || !clo.IsPow2(radix) {
		return nil, clo.InvalidArgs("radix=%d must be a power of two of at least 2", radix)
	}
	name := scan.Blelloch.String()
	if v, ok := opts["scan"]; ok {
		name = v
	}
	kind, err := scan.KindByName(name)
	if err != nil {
		return nil, clo.InvalidArgs("scan=%q: %v", name, err)
	}
	return &satradix{radix: int(radix), scanName: name, scanKind: kind}, nil
}

func (r *satradix) source() string {
	return "// Radix sort on top of scan.\n" +
		clo.DefineMacro(clo.MacroSatRadixRadix, strconv.Itoa(r.radix)) +
		clo.Library("satradix")
}

func (*satradix) inPlace() bool { return false }

// scannerFor returns the counter scanner, creating it on first use.
func (r *satradix) scannerFor(s *Sorter) (*scan.Scanner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scanner != nil {
		return r.scanner, nil
	}
	sc, err := scan.New(r.scanName, s.h, clo.UInt,
		scan.WithSumType(clo.UInt),
		scan.WithCompilerOpts(s.compilerOpts),
		scan.WithLogger(s.log))
	if err != nil {
		return nil, err
	}
	r.scanner = sc
	return sc, nil
}

func (r *satradix) sort(s *Sorter, q, qComm device.Queue, in, out device.Buffer, numel, lwsMax int, wait device.WaitList) (_ device.WaitList, err error) {
	dev := q.Device()
	if r.radix > dev.MaxWorkGroupSize() {
		return nil, clo.InvalidArgs("radix %d exceeds the maximum local size %d", r.radix, dev.MaxWorkGroupSize())
	}
	scanner, err := r.scannerFor(s)
	if err != nil {
		return nil, err
	}
	kLocalSort, err := s.kernel(kernelSatRadixLocalSort)
	if err != nil {
		return nil, err
	}
	kHistogram, err := s.kernel(kernelSatRadixHistogram)
	if err != nil {
		return nil, err
	}
	kScatter, err := s.kernel(kernelSatRadixScatter)
	if err != nil {
		return nil, err
	}

	lws, err := clo.LocalSize(kLocalSort, dev, numel, lwsMax)
	if err != nil {
		return nil, err
	}
	lws = max(lws, r.radix)
	numGroups := clo.DivCeil(numel, lws)
	gws := numGroups * lws
	digitBits := clo.TrailingZeros(uint64(r.radix))
	passes := clo.DivCeil(s.key.Bits(), digitBits)
	elemSize := s.elem.Size()
	numCounters := numGroups * r.radix

	ctx := s.h.Context()
	newBuffer := func(what string, size int) (device.Buffer, error) {
		b, err := ctx.NewBuffer(device.ReadWrite, size)
		if err != nil {
			return nil, clo.LibraryError("create "+what+" buffer", err)
		}
		return b, nil
	}
	aux, err := newBuffer("aux", numel*elemSize)
	if err != nil {
		return nil, err
	}
	defer device.CloseInto(&err, aux)
	offsets, err := newBuffer("offsets", numCounters*counterSize)
	if err != nil {
		return nil, err
	}
	defer device.CloseInto(&err, offsets)
	counters, err := newBuffer("counters", numCounters*counterSize)
	if err != nil {
		return nil, err
	}
	defer device.CloseInto(&err, counters)
	countersSum, err := newBuffer("counters sum", numCounters*counterSize)
	if err != nil {
		return nil, err
	}
	defer device.CloseInto(&err, countersSum)

	s.log.Debug("satradix sort",
		"numel", numel,
		"radix", r.radix,
		"passes", passes,
		"gws", gws,
		"lws", lws,
		"groups", numGroups)

	src := in
	for pass := range passes {
		shift := uint32(pass * digitBits)
		ev, err := s.dispatch(q, kLocalSort, gws, lws, wait,
			device.Buf(src),
			device.Buf(aux),
			device.Local(lws*elemSize),
			device.Local(r.radix*counterSize),
			device.Priv(shift),
			device.Priv(uint32(numel)))
		if err != nil {
			return nil, err
		}
		ev, err = s.dispatch(q, kHistogram, gws, lws, device.WaitList{ev},
			device.Buf(aux),
			device.Buf(offsets),
			device.Buf(counters),
			device.Local(r.radix*counterSize),
			device.Local(r.radix*counterSize),
			device.Priv(shift),
			device.Priv(uint32(numel)),
			device.Priv(uint32(numGroups)))
		if err != nil {
			return nil, err
		}
		scanned, err := scanner.ScanDevice(q, qComm, counters, countersSum, numCounters, lwsMax, ev)
		if err != nil {
			return nil, err
		}
		ev, err = s.dispatch(q, kScatter, gws, lws, scanned,
			device.Buf(aux),
			device.Buf(out),
			device.Buf(offsets),
			device.Buf(countersSum),
			device.Priv(shift),
			device.Priv(uint32(numel)),
			device.Priv(uint32(numGroups)))
		if err != nil {
			return nil, err
		}
		wait = device.WaitList{ev}
		src = out
	}
	return wait, nil
}

func (r *satradix) numKernels() int {
	return len(satRadixKernels) + r.scanKind.NumKernels()
}

func (r *satradix) kernelName(i int) string {
	if i < len(satRadixKernels) {
		return satRadixKernels[i]
	}
	return r.scanKind.KernelName(i - len(satRadixKernels))
}

func (r *satradix) localMemUsage(s *Sorter, i, lwsMax, numel int) int {
	maxLocal := maxLocalSize(s.h.Device(), lwsMax)
	lws := max(min(maxLocal, max(numel, 1)), r.radix)
	switch i {
	case 0:
		return lws*s.elem.Size() + r.radix*counterSize
	case 1:
		return 2 * r.radix * counterSize
	case 2:
		return 0
	}
	numCounters := clo.DivCeil(max(numel, 1), lws) * r.radix
	return r.scanKind.LocalMemUsage(i-len(satRadixKernels), maxLocal, numCounters, counterSize)
}

func (r *satradix) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scanner == nil {
		return nil
	}
	err := r.scanner.Close()
	r.scanner = nil
	return err
}
