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

const kernelSBitonic = "sbitonic"

// sbitonic dispatches one kernel per network step.
type sbitonic struct{}

func newSBitonic(options string) (*sbitonic, error) {
	if _, err := clo.ParseOptions(options); err != nil {
		return nil, err
	}
	return &sbitonic{}, nil
}

func (*sbitonic) source() string {
	return "// Simple bitonic sort, one step per dispatch.\n" + clo.Library("sbitonic")
}

func (*sbitonic) inPlace() bool { return true }

func (*sbitonic) sort(s *Sorter, q, qComm device.Queue, in, out device.Buffer, numel, lwsMax int, wait device.WaitList) (device.WaitList, error) {
	if out != in {
		var err error
		if wait, err = s.copyInput(qComm, in, out, numel, wait); err != nil {
			return nil, err
		}
	}
	k, err := s.kernel(kernelSBitonic)
	if err != nil {
		return nil, err
	}
	p := int(clo.NextPow2(uint64(numel)))
	gws := p / 2
	lws, err := clo.Pow2LocalSize(k, q.Device(), gws, lwsMax)
	if err != nil {
		return nil, err
	}
	lws = min(lws, gws)
	stages := clo.TrailingZeros(uint64(p))
	s.log.Debug("sbitonic sort", "numel", numel, "stages", stages, "gws", gws, "lws", lws)

	for stage := 1; stage <= stages; stage++ {
		for step := stage; step >= 1; step-- {
			ev, err := s.dispatch(q, k, gws, lws, wait,
				device.Buf(out),
				device.Priv(uint32(stage)),
				device.Priv(uint32(step)),
				device.Priv(uint32(numel)))
			if err != nil {
				return nil, err
			}
			wait = device.WaitList{ev}
		}
	}
	return wait, nil
}

func (*sbitonic) numKernels() int { return 1 }

func (*sbitonic) kernelName(int) string { return kernelSBitonic }

func (*sbitonic) localMemUsage(*Sorter, int, int, int) int { return 0 }

func (*sbitonic) close() error { return nil }
