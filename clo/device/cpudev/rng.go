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
	"encoding/binary"
	"fmt"

	"github.com/ajroetker/go-clops/clo"
)

// generator advances one work-item's state in place and returns 32 random
// bits.
type generator struct {
	stateSize int
	next      func(state []byte) uint32
}

var generators = map[string]generator{
	"lcg": {8, func(st []byte) uint32 {
		s := binary.LittleEndian.Uint64(st)
		s = (s*0x5DEECE66D + 0xB) & (1<<48 - 1)
		binary.LittleEndian.PutUint64(st, s)
		return uint32(s >> 16)
	}},
	"xorshift64": {8, func(st []byte) uint32 {
		x := binary.LittleEndian.Uint64(st)
		x ^= x << 21
		x ^= x >> 35
		x ^= x << 4
		binary.LittleEndian.PutUint64(st, x)
		return uint32(x)
	}},
	"xorshift128": {16, func(st []byte) uint32 {
		x := binary.LittleEndian.Uint32(st[0:])
		y := binary.LittleEndian.Uint32(st[4:])
		z := binary.LittleEndian.Uint32(st[8:])
		w := binary.LittleEndian.Uint32(st[12:])
		t := x ^ x<<11
		x, y, z = y, z, w
		w = w ^ w>>19 ^ (t ^ t>>8)
		binary.LittleEndian.PutUint32(st[0:], x)
		binary.LittleEndian.PutUint32(st[4:], y)
		binary.LittleEndian.PutUint32(st[8:], z)
		binary.LittleEndian.PutUint32(st[12:], w)
		return w
	}},
	"mwc64x": {8, func(st []byte) uint32 {
		s := binary.LittleEndian.Uint64(st)
		c, x := uint32(s>>32), uint32(s)
		s = uint64(x)*4294883355 + uint64(c)
		binary.LittleEndian.PutUint64(st, s)
		return x ^ c
	}},
}

// seedHashes derive a 64-bit seed word from a work-item id and the main seed.
var seedHashes = map[string]func(id, seed uint64) uint64{
	"none": func(id, seed uint64) uint64 { return id + seed },
	"knuth": func(id, seed uint64) uint64 {
		return (id * 2654435761) ^ seed
	},
	"xs1": func(id, seed uint64) uint64 {
		x := id + seed
		x ^= x << 13
		x ^= x >> 7
		x ^= x << 17
		return x
	},
}

// zeroSeed replaces all-zero words, which xorshift generators never leave.
const zeroSeed = 0x9E3779B97F4A7C15

func rngLibrary(m macros) (map[string]kernelSpec, error) {
	alg := m.value(clo.MacroRNGAlgorithm, "")
	gen, ok := generators[alg]
	if !ok {
		return nil, fmt.Errorf("%s: unknown generator %q", clo.MacroRNGAlgorithm, alg)
	}
	hashName := m.value(clo.MacroRNGHash, "none")
	hash, ok := seedHashes[hashName]
	if !ok {
		return nil, fmt.Errorf("%s: unknown hash %q", clo.MacroRNGHash, hashName)
	}
	words := gen.stateSize / 8
	return map[string]kernelSpec{
		"clo_rng_init": {
			// seeds, main seed, count
			args: []argKind{argBuffer, argScalar, argScalar},
			fn: func(g *group) error {
				seed, count := g.scalars[1], g.scalar(2)
				if len(g.bufs[0]) < count*gen.stateSize {
					return argError("seed buffer of %d bytes cannot hold %d states", len(g.bufs[0]), count)
				}
				for i := g.firstItem(); i < min(g.firstItem()+g.localSize, count); i++ {
					st := g.bufs[0][i*gen.stateSize : (i+1)*gen.stateSize]
					for w := range words {
						v := hash(uint64(i*words+w), seed)
						if v == 0 {
							v = zeroSeed
						}
						binary.LittleEndian.PutUint64(st[w*8:], v)
					}
				}
				return nil
			},
		},
		"clo_rng_generate": {
			// seeds, out, numel, bits
			args: []argKind{argBuffer, argBuffer, argScalar, argScalar},
			fn: func(g *group) error {
				numel, bits := g.scalar(2), g.scalar(3)
				if bits < 1 || bits > 32 {
					return argError("cannot generate %d bit values", bits)
				}
				if len(g.bufs[0]) < numel*gen.stateSize {
					return argError("seed buffer of %d bytes cannot hold %d states", len(g.bufs[0]), numel)
				}
				out, err := elems[uint32](g, 1, numel)
				if err != nil {
					return err
				}
				mask := uint32(bitsMask(bits))
				for i := g.firstItem(); i < min(g.firstItem()+g.localSize, numel); i++ {
					out[i] = gen.next(g.bufs[0][i*gen.stateSize:(i+1)*gen.stateSize]) & mask
				}
				return nil
			},
		},
	}, nil
}
