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

package rng

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/mathext/prng"

	"github.com/ajroetker/go-clops/clo"
	"github.com/ajroetker/go-clops/clo/device"
)

// Implementations lists the registered generator names.
const Implementations = "lcg, xorshift64, xorshift128, mwc64x"

// Hashes lists the work-item id hashes accepted by WithHash.
const Hashes = "none, knuth, xs1"

const (
	kernelInit     = "clo_rng_init"
	kernelGenerate = "clo_rng_generate"
)

type algorithm struct {
	name      string
	stateSize int
}

var algorithms = []algorithm{
	{"lcg", 8},
	{"xorshift64", 8},
	{"xorshift128", 16},
	{"mwc64x", 8},
}

var hashes = []string{"none", "knuth", "xs1"}

// zeroWord replaces all-zero state words, from which xorshift generators
// never leave.
const zeroWord = 0x9E3779B97F4A7C15

// SeedType selects where generator states come from.
type SeedType uint8

const (
	// SeedDevGID initializes states on the device by hashing the work-item
	// id with the main seed.
	SeedDevGID SeedType = iota
	// SeedHostMT initializes states with a Mersenne Twister seeded by the
	// main seed and copies them to the device.
	SeedHostMT
	// SeedExtDev allocates the seed buffer and leaves it to the caller.
	SeedExtDev
	// SeedExtHost copies the bytes passed with WithSeeds to the device.
	SeedExtHost
)

var seedTypeNames = []string{"dev_gid", "host_mt", "ext_dev", "ext_host"}

// String implements fmt.Stringer.
func (t SeedType) String() string {
	if int(t) >= len(seedTypeNames) {
		return fmt.Sprintf("SeedType(%d)", uint8(t))
	}
	return seedTypeNames[t]
}

type config struct {
	count        int
	mainSeed     uint64
	hash         string
	seeds        []byte
	compilerOpts string
	queue        device.Queue
	log          *slog.Logger
}

// Option configures New.
type Option func(*config)

// WithCount sets the number of generator states, the most values one Fill
// may produce. It is required.
func WithCount(n int) Option {
	return func(c *config) { c.count = n }
}

// WithMainSeed sets the seed of SeedDevGID and SeedHostMT.
func WithMainSeed(seed uint64) Option {
	return func(c *config) { c.mainSeed = seed }
}

// WithHash selects the work-item id hash of SeedDevGID. See Hashes.
func WithHash(name string) Option {
	return func(c *config) { c.hash = name }
}

// WithSeeds passes the initial states for SeedExtHost. Their length must be
// the count times the state size of the generator.
func WithSeeds(seeds []byte) Option {
	return func(c *config) { c.seeds = seeds }
}

// WithCompilerOpts appends flags to the program build.
func WithCompilerOpts(opts string) Option {
	return func(c *config) { c.compilerOpts = opts }
}

// WithQueue sets the queue used to initialize the seeds. By default a
// transient queue is created.
func WithQueue(q device.Queue) Option {
	return func(c *config) { c.queue = q }
}

// WithLogger sets the logger for diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.log = l }
}

// RNG is a set of device generator states. Its methods must not be called
// concurrently.
type RNG struct {
	alg      algorithm
	seedType SeedType
	count    int
	source   string

	h      *device.Handle
	prg    device.Program
	seeds  device.Buffer
	log    *slog.Logger
	closed bool
}

// New creates count generator states of algorithm name, seeded as seedType
// says. The RNG holds a reference to h until Close.
func New(name string, h *device.Handle, seedType SeedType, opts ...Option) (_ *RNG, err error) {
	i := lo.IndexOf(lo.Map(algorithms, func(a algorithm, _ int) string { return a.name }), strings.TrimSpace(name))
	if i < 0 {
		return nil, fmt.Errorf("%w: rng implementation %q", clo.ErrImplNotFound, name)
	}
	alg := algorithms[i]
	cfg := config{hash: "none"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = clo.Logger()
	}
	switch {
	case cfg.count <= 0:
		return nil, clo.InvalidArgs("rng needs a positive state count, got %d", cfg.count)
	case !lo.Contains(hashes, cfg.hash):
		return nil, clo.InvalidArgs("unknown rng hash %q, want one of %s", cfg.hash, Hashes)
	case seedType > SeedExtHost:
		return nil, clo.InvalidArgs("unknown seed type %s", seedType)
	case seedType == SeedExtHost && cfg.seeds == nil:
		return nil, clo.InvalidArgs("seed type %s needs seeds", seedType)
	case seedType != SeedExtHost && cfg.seeds != nil:
		return nil, clo.InvalidArgs("seed type %s takes no seeds", seedType)
	case cfg.seeds != nil && len(cfg.seeds) != cfg.count*alg.stateSize:
		return nil, clo.InvalidArgs("%d seed bytes for %d %s states of %d bytes", len(cfg.seeds), cfg.count, alg.name, alg.stateSize)
	}

	r := &RNG{
		alg:      alg,
		seedType: seedType,
		count:    cfg.count,
		source:   clo.DefineMacro(clo.MacroRNGAlgorithm, alg.name) + clo.Library("rng"),
		h:        h.Retain(),
		log:      cfg.log,
	}
	defer func() {
		if err != nil {
			err = clo.LibraryError("new "+alg.name+" rng", err)
			if r.seeds != nil {
				err = errors.Join(err, r.seeds.Close())
			}
			if r.prg != nil {
				err = errors.Join(err, r.prg.Close())
			}
			err = errors.Join(err, r.h.Release())
		}
	}()

	ctx := h.Context()
	prg, err := ctx.NewProgram(r.source, clo.DefineMacro(clo.MacroRNGHash, cfg.hash))
	if err != nil {
		return nil, err
	}
	r.prg = prg
	if err := prg.Build(cfg.compilerOpts); err != nil {
		r.log.Debug("rng program build failed", "impl", alg.name, "log", prg.BuildLog())
		return nil, err
	}
	if r.seeds, err = ctx.NewBuffer(device.ReadWrite, r.count*alg.stateSize); err != nil {
		return nil, err
	}

	q := cfg.queue
	if q == nil && seedType != SeedExtDev {
		var tq device.Queue
		if tq, err = ctx.NewQueue(h.Device()); err != nil {
			return nil, err
		}
		defer device.CloseInto(&err, tq)
		q = tq
	}
	switch seedType {
	case SeedDevGID:
		err = r.initOnDevice(q, cfg.mainSeed)
	case SeedHostMT:
		err = device.WriteSync(q, r.seeds, hostSeeds(cfg.mainSeed, r.count*alg.stateSize), nil)
	case SeedExtHost:
		err = device.WriteSync(q, r.seeds, cfg.seeds, nil)
	}
	if err != nil {
		return nil, err
	}
	r.log.Debug("rng created", "impl", alg.name, "seed_type", seedType, "count", r.count)
	return r, nil
}

// initOnDevice runs the init kernel and waits for it.
func (r *RNG) initOnDevice(q device.Queue, mainSeed uint64) error {
	k, err := r.prg.Kernel(kernelInit)
	if err != nil {
		return err
	}
	lws, err := clo.LocalSize(k, q.Device(), r.count, 0)
	if err != nil {
		return err
	}
	if err := k.SetArgs(device.Buf(r.seeds), device.Priv(mainSeed), device.Priv(uint32(r.count))); err != nil {
		return err
	}
	ev, err := q.EnqueueNDRange(k, clo.RoundUp(r.count, lws), lws, nil)
	if err != nil {
		return err
	}
	ev.SetName("rng_init")
	return ev.Wait()
}

// hostSeeds returns size bytes of Mersenne Twister output seeded by seed,
// with zero words replaced.
func hostSeeds(seed uint64, size int) []byte {
	mt := prng.NewMT19937()
	mt.Seed(seed)
	buf := make([]byte, size)
	for off := 0; off < size; off += 8 {
		w := mt.Uint64()
		if w == 0 {
			w = zeroWord
		}
		binary.LittleEndian.PutUint64(buf[off:], w)
	}
	return buf
}

// Source returns the program text selecting this generator on the device
// library. User programs built from it run on the same states as Seeds.
func (r *RNG) Source() string { return r.source }

// Seeds returns the device buffer holding the generator states.
func (r *RNG) Seeds() device.Buffer { return r.seeds }

// Count returns the number of generator states.
func (r *RNG) Count() int { return r.count }

// StateSize returns the size in bytes of one generator state.
func (r *RNG) StateSize() int { return r.alg.stateSize }

// SeedType returns how the states were initialized.
func (r *RNG) SeedType() SeedType { return r.seedType }

// Fill writes numel 32-bit values to out on q, keeping the low bits of
// each. Every call advances the first numel states. lwsMax caps the local
// size; 0 leaves it to the device.
func (r *RNG) Fill(q device.Queue, out device.Buffer, numel, bits, lwsMax int, wait ...device.Event) (device.WaitList, error) {
	switch {
	case r.closed:
		return nil, clo.LibraryError("rng fill", device.ErrReleased)
	case q == nil || out == nil:
		return nil, clo.InvalidArgs("rng fill needs a queue and an output buffer")
	case numel < 0 || numel > r.count:
		return nil, clo.InvalidArgs("cannot fill %d values from %d states", numel, r.count)
	case bits < 1 || bits > 32:
		return nil, clo.InvalidArgs("cannot generate %d bit values", bits)
	case lwsMax < 0:
		return nil, clo.InvalidArgs("negative local size cap %d", lwsMax)
	case out.Size() < 4*numel:
		return nil, clo.InvalidArgs("buffer of %d bytes cannot hold %d values", out.Size(), numel)
	}
	var wl device.WaitList
	wl.Add(wait...)
	if numel == 0 {
		return wl, nil
	}
	k, err := r.prg.Kernel(kernelGenerate)
	if err != nil {
		return nil, clo.LibraryError("get kernel "+kernelGenerate, err)
	}
	lws, err := clo.LocalSize(k, q.Device(), numel, lwsMax)
	if err != nil {
		return nil, err
	}
	if err := k.SetArgs(device.Buf(r.seeds), device.Buf(out), device.Priv(uint32(numel)), device.Priv(uint32(bits))); err != nil {
		return nil, clo.LibraryError("set "+kernelGenerate+" arguments", err)
	}
	ev, err := q.EnqueueNDRange(k, clo.RoundUp(numel, lws), lws, wl)
	if err != nil {
		return nil, clo.LibraryError("enqueue "+kernelGenerate, err)
	}
	ev.SetName("rng_" + r.alg.name)
	return device.WaitList{ev}, nil
}

// FillHost fills out with values of the given bits and blocks until done.
// A nil q uses a transient queue.
func (r *RNG) FillHost(q device.Queue, out []uint32, bits, lwsMax int) (err error) {
	if len(out) == 0 {
		return nil
	}
	ctx := r.h.Context()
	if q == nil {
		var tq device.Queue
		if tq, err = ctx.NewQueue(r.h.Device()); err != nil {
			return clo.LibraryError("create queue", err)
		}
		defer device.CloseInto(&err, tq)
		q = tq
	}
	buf, err := ctx.NewBuffer(device.WriteOnly, 4*len(out))
	if err != nil {
		return clo.LibraryError("create output buffer", err)
	}
	defer device.CloseInto(&err, buf)
	wl, err := r.Fill(q, buf, len(out), bits, lwsMax)
	if err != nil {
		return err
	}
	if err := device.ReadSync(q, buf, clo.AsBytes(out), wl); err != nil {
		return clo.LibraryError("read output", err)
	}
	return nil
}

// Close releases the seed buffer, the program and the context reference.
// Calling Close again is a no-op.
func (r *RNG) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return clo.LibraryError("close rng", errors.Join(r.seeds.Close(), r.prg.Close(), r.h.Release()))
}
