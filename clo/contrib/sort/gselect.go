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
	"github.com/ajroetker/go-clops/clo"
	"github.com/ajroetker/go-clops/clo/device"
)

const kernelGSelect = "gselect"

// gselect ranks every element against the whole array. It is quadratic and
// meant as a reference for the other implementations.
type gselect struct{}

func newGSelect(options string) (*gselect, error) {
	if _, err := clo.ParseOptions(options); err != nil {
		return nil, err
	}
	return &gselect{}, nil
}

func (*gselect) source() string {
	return "// Global memory selection sort.\n" + clo.Library("gselect")
}

func (*gselect) inPlace() bool { return false }

func (*gselect) sort(s *Sorter, q, qComm device.Queue, in, out device.Buffer, numel, lwsMax int, wait device.WaitList) (_ device.WaitList, err error) {
	k, err := s.kernel(kernelGSelect)
	if err != nil {
		return nil, err
	}
	lws, err := clo.LocalSize(k, q.Device(), numel, lwsMax)
	if err != nil {
		return nil, err
	}
	gws := clo.RoundUp(numel, lws)

	dst := out
	if out == in {
		var tmp device.Buffer
		if tmp, err = s.h.Context().NewBuffer(device.WriteOnly, numel*s.elem.Size()); err != nil {
			return nil, clo.LibraryError("create gselect output buffer", err)
		}
		defer device.CloseInto(&err, tmp)
		dst = tmp
	}
	s.log.Debug("gselect sort", "numel", numel, "gws", gws, "lws", lws, "temp", dst != out)

	ev, err := s.dispatch(q, k, gws, lws, wait,
		device.Buf(in),
		device.Buf(dst),
		device.Priv(uint32(numel)))
	if err != nil {
		return nil, err
	}
	wait = device.WaitList{ev}
	if dst != out {
		return s.copyInput(qComm, dst, out, numel, wait)
	}
	return wait, nil
}

func (*gselect) numKernels() int { return 1 }

func (*gselect) kernelName(int) string { return kernelGSelect }

func (*gselect) localMemUsage(*Sorter, int, int, int) int { return 0 }

func (*gselect) close() error { return nil }
