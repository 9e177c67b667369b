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

// Package clo holds the pieces shared by every parallel primitive in go-clops:
// the element type registry, integer bit tricks used to derive network
// geometry, the work-size policy applied before each kernel dispatch, option
// string parsing and the macro prologue prepended to device sources.
//
// The primitives themselves live in the contrib packages:
//
//   - clo/contrib/scan: exclusive prefix sums (Blelloch)
//   - clo/contrib/sort: bitonic, adaptive bitonic, selection and radix sorts
//   - clo/contrib/rng: per work-item random number generators
//
// All of them talk to an accelerator through the capability interfaces in
// clo/device. The clo/device/cpudev package implements those interfaces on
// the host CPU.
//
// # Example Usage
//
//	cpu, _ := cpudev.NewContext(cpudev.Options{})
//	ctx := device.Share(cpu)
//	defer ctx.Release()
//
//	s, err := sort.New("abitonic", ctx, clo.UInt)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//	err = s.SortHost(nil, nil, clo.AsBytes(keys), nil, len(keys), 0)
package clo
