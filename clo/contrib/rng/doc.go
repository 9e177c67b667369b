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

// Package rng generates pseudo-random numbers on a device, one generator
// state per work-item.
//
// An RNG owns a seed buffer with one state per work-item. Seeds come from
// one of four places, selected by SeedType: a device kernel hashing the
// work-item id, a Mersenne Twister on the host, the caller writing the
// device buffer, or caller supplied bytes.
//
//	r, err := rng.New("xorshift128", h, rng.SeedHostMT,
//		rng.WithCount(1<<16), rng.WithMainSeed(42))
//	if err != nil {
//		return err
//	}
//	defer r.Close()
//	wl, err := r.Fill(q, out, 1<<16, 32, 0)
//
// Source returns the program text that selects the generator, so that user
// programs can be built on the same device library and share Seeds.
//
// # Implementations
//
// lcg is the 48-bit linear congruential generator of drand48. xorshift64
// and xorshift128 are Marsaglia's xorshift generators. mwc64x is a 64-bit
// multiply with carry generator.
package rng
