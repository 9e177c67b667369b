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
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/lo"

	"github.com/ajroetker/go-clops/clo"
	"github.com/ajroetker/go-clops/clo/device"
)

// Kind identifies a sort implementation.
type Kind uint8

const (
	// SBitonic is the one kernel per step bitonic sort.
	SBitonic Kind = iota
	// ABitonic is the adaptive, step fusing bitonic sort.
	ABitonic
	// GSelect is the global memory selection sort.
	GSelect
	// SatRadix is the radix sort built on scan.
	SatRadix

	numKinds
)

var kindNames = [numKinds]string{
	SBitonic: "sbitonic",
	ABitonic: "abitonic",
	GSelect:  "gselect",
	SatRadix: "satradix",
}

// Implementations lists the registered implementation names.
const Implementations = "sbitonic, abitonic, gselect, satradix"

// Kinds returns every sort implementation.
func Kinds() []Kind {
	return lo.Times(int(numKinds), func(i int) Kind { return Kind(i) })
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k >= numKinds {
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// KindByName returns the implementation called name.
func KindByName(name string) (Kind, error) {
	i := lo.IndexOf(kindNames[:], strings.TrimSpace(name))
	if i < 0 {
		return 0, fmt.Errorf("%w: sort implementation %q", clo.ErrImplNotFound, name)
	}
	return Kind(i), nil
}

type config struct {
	key          clo.Type
	keySet       bool
	compare      string
	keyGet       string
	options      string
	compilerOpts string
	log          *slog.Logger
}

// Option configures New.
type Option func(*config)

// WithKeyType sorts by a key of type t extracted from each element. It
// defaults to the element type.
func WithKeyType(t clo.Type) Option {
	return func(c *config) {
		c.key = t
		c.keySet = true
	}
}

// WithCompare sets the comparison of two keys a and b. An exchange happens
// when it holds for the lower element. Empty selects clo.DefaultCompare.
func WithCompare(expr string) Option {
	return func(c *config) { c.compare = expr }
}

// WithKeyGet sets the expression extracting the key of element x. Empty
// selects clo.DefaultKeyGet.
func WithKeyGet(expr string) Option {
	return func(c *config) { c.keyGet = expr }
}

// WithOptions passes implementation options as "key=value,key=value".
func WithOptions(opts string) Option {
	return func(c *config) { c.options = opts }
}

// WithCompilerOpts appends flags to the program build.
func WithCompilerOpts(opts string) Option {
	return func(c *config) { c.compilerOpts = opts }
}

// WithLogger sets the logger for diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.log = l }
}

// algorithm is the implementation specific part of a Sorter.
type algorithm interface {
	source() string

	// inPlace reports whether the algorithm sorts the buffer it is given.
	inPlace() bool

	// sort orders numel elements of in into out, running kernels on q and
	// copies on qComm. out is never nil; it equals in for an in place sort.
	sort(s *Sorter, q, qComm device.Queue, in, out device.Buffer, numel, lwsMax int, wait device.WaitList) (device.WaitList, error)

	numKernels() int
	kernelName(i int) string
	localMemUsage(s *Sorter, i, lwsMax, numel int) int

	close() error
}

// Sorter is a compiled sort for one element and key type. Its methods must
// not be called concurrently; instances sharing a Handle may run in
// parallel.
type Sorter struct {
	kind Kind
	alg  algorithm

	h            *device.Handle
	prg          device.Program
	elem         clo.Type
	key          clo.Type
	compilerOpts string
	log          *slog.Logger
	closed       bool
}

// New creates a sorter of implementation name for elements of type elem.
// The sorter holds a reference to h until Close.
func New(name string, h *device.Handle, elem clo.Type, opts ...Option) (_ *Sorter, err error) {
	kind, err := KindByName(name)
	if err != nil {
		return nil, err
	}
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !cfg.keySet {
		cfg.key = elem
	}
	if !elem.Valid() || !cfg.key.Valid() {
		return nil, clo.InvalidArgs("sort element type %s, key type %s", elem, cfg.key)
	}
	if cfg.log == nil {
		cfg.log = clo.Logger()
	}

	s := &Sorter{
		kind:         kind,
		h:            h.Retain(),
		elem:         elem,
		key:          cfg.key,
		compilerOpts: cfg.compilerOpts,
		log:          cfg.log,
	}
	defer func() {
		if err != nil {
			err = clo.LibraryError("new "+name+" sort", err)
			if s.alg != nil {
				err = errors.Join(err, s.alg.close())
			}
			if rerr := s.h.Release(); rerr != nil {
				err = errors.Join(err, rerr)
			}
		}
	}()

	switch kind {
	case SBitonic:
		s.alg, err = newSBitonic(cfg.options)
	case ABitonic:
		s.alg, err = newABitonic(cfg.options)
	case GSelect:
		s.alg, err = newGSelect(cfg.options)
	case SatRadix:
		s.alg, err = newSatRadix(cfg.options)
	}
	if err != nil {
		return nil, err
	}

	prologue := clo.SortPrologue(elem, cfg.key, cfg.compare, cfg.keyGet)
	prg, err := h.Context().NewProgram(prologue, s.alg.source())
	if err != nil {
		return nil, err
	}
	if err := prg.Build(cfg.compilerOpts); err != nil {
		s.log.Debug("sort program build failed", "impl", kind, "log", prg.BuildLog())
		return nil, errors.Join(err, prg.Close())
	}
	s.prg = prg
	s.log.Debug("sort created", "impl", kind, "elem", elem, "key", cfg.key)
	return s, nil
}

// Kind returns the implementation of s.
func (s *Sorter) Kind() Kind { return s.kind }

// ElemType returns the element type.
func (s *Sorter) ElemType() clo.Type { return s.elem }

// KeyType returns the key type.
func (s *Sorter) KeyType() clo.Type { return s.key }

// InPlace reports whether SortDevice with a nil output sorts the input
// buffer directly.
func (s *Sorter) InPlace() bool { return s.alg.inPlace() }

func (s *Sorter) kernel(name string) (device.Kernel, error) {
	k, err := s.prg.Kernel(name)
	if err != nil {
		return nil, clo.LibraryError("get kernel "+name, err)
	}
	return k, nil
}

// dispatch sets the arguments of k and enqueues it.
func (s *Sorter) dispatch(q device.Queue, k device.Kernel, global, local int, wait device.WaitList, args ...device.Arg) (device.Event, error) {
	if err := k.SetArgs(args...); err != nil {
		return nil, clo.LibraryError("set "+k.Name()+" arguments", err)
	}
	ev, err := q.EnqueueNDRange(k, global, local, wait)
	if err != nil {
		return nil, clo.LibraryError("enqueue "+k.Name(), err)
	}
	ev.SetName(s.kind.String() + "_" + k.Name())
	return ev, nil
}

// SortDevice sorts numel elements of in on qExec after the wait events
// complete. The result goes to out, or for a nil out back into in. in is
// left unchanged when out is a different buffer. lwsMax caps the local size;
// 0 leaves it to the device. The returned wait-list completes with the
// sort. qComm, when not nil, carries the copy of in to out.
func (s *Sorter) SortDevice(qExec, qComm device.Queue, in, out device.Buffer, numel, lwsMax int, wait ...device.Event) (device.WaitList, error) {
	switch {
	case s.closed:
		return nil, clo.LibraryError("sort", device.ErrReleased)
	case numel < 0 || lwsMax < 0:
		return nil, clo.InvalidArgs("sort of %d elements with local size cap %d", numel, lwsMax)
	case in == nil || qExec == nil:
		return nil, clo.InvalidArgs("sort needs an input buffer and an execution queue")
	}
	size := numel * s.elem.Size()
	if in.Size() < size || (out != nil && out.Size() < size) {
		return nil, clo.InvalidArgs("buffers cannot hold %d elements of %s", numel, s.elem)
	}
	if qComm == nil {
		qComm = qExec
	}
	var wl device.WaitList
	wl.Add(wait...)

	if numel <= 1 {
		if numel == 1 && out != nil && out != in {
			return s.copyInput(qComm, in, out, numel, wl)
		}
		return wl, nil
	}
	if out == nil {
		out = in
	}
	return s.alg.sort(s, qExec, qComm, in, out, numel, lwsMax, wl)
}

// copyInput copies numel elements of in to out after wait. It also moves
// results out of temporary buffers.
func (s *Sorter) copyInput(q device.Queue, in, out device.Buffer, numel int, wait device.WaitList) (device.WaitList, error) {
	ev, err := q.EnqueueCopy(in, out, 0, 0, numel*s.elem.Size(), wait)
	if err != nil {
		return nil, clo.LibraryError("copy input to output", err)
	}
	ev.SetName(s.kind.String() + "_copy")
	return device.WaitList{ev}, nil
}

// SortHost sorts numel elements of in and blocks until done. The result goes
// to out, or back into in when out is nil. A nil qExec uses a transient
// queue; a nil qComm transfers on qExec.
func (s *Sorter) SortHost(qExec, qComm device.Queue, in, out []byte, numel, lwsMax int) (err error) {
	size := numel * s.elem.Size()
	if out == nil {
		out = in
	}
	if numel < 0 || len(in) < size || len(out) < size {
		return clo.InvalidArgs("host slices of %d and %d bytes cannot hold %d elements of %s", len(in), len(out), numel, s.elem)
	}
	if numel == 0 {
		return nil
	}

	ctx := s.h.Context()
	if qExec == nil {
		var q device.Queue
		if q, err = ctx.NewQueue(s.h.Device()); err != nil {
			return clo.LibraryError("create queue", err)
		}
		defer device.CloseInto(&err, q)
		qExec = q
	}
	if qComm == nil {
		qComm = qExec
	}

	inBuf, err := ctx.NewBuffer(device.ReadWrite, size)
	if err != nil {
		return clo.LibraryError("create input buffer", err)
	}
	defer device.CloseInto(&err, inBuf)
	result := inBuf
	if !s.alg.inPlace() {
		var outBuf device.Buffer
		if outBuf, err = ctx.NewBuffer(device.WriteOnly, size); err != nil {
			return clo.LibraryError("create output buffer", err)
		}
		defer device.CloseInto(&err, outBuf)
		result = outBuf
	}

	if err := device.WriteSync(qComm, inBuf, in[:size], nil); err != nil {
		return clo.LibraryError("write input", err)
	}
	var devOut device.Buffer
	if result != inBuf {
		devOut = result
	}
	wl, err := s.SortDevice(qExec, qComm, inBuf, devOut, numel, lwsMax)
	if err != nil {
		return err
	}
	if err := device.ReadSync(qComm, result, out[:size], wl); err != nil {
		return clo.LibraryError("read output", err)
	}
	return nil
}

// NumKernels returns the number of kernels the sorter may dispatch,
// including those of owned sub-instances.
func (s *Sorter) NumKernels() int { return s.alg.numKernels() }

// KernelName returns the name of kernel i. It panics when i is out of
// range.
func (s *Sorter) KernelName(i int) string {
	if i < 0 || i >= s.alg.numKernels() {
		panic(fmt.Sprintf("sort: kernel index %d out of range [0, %d)", i, s.alg.numKernels()))
	}
	return s.alg.kernelName(i)
}

// LocalMemUsage returns the local memory kernel i uses to sort numel
// elements with local size cap lwsMax.
func (s *Sorter) LocalMemUsage(i, lwsMax, numel int) int {
	if i < 0 || i >= s.alg.numKernels() {
		panic(fmt.Sprintf("sort: kernel index %d out of range [0, %d)", i, s.alg.numKernels()))
	}
	return s.alg.localMemUsage(s, i, lwsMax, numel)
}

// Close releases algorithm state, the program and the context reference.
// Calling Close again is a no-op.
func (s *Sorter) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return clo.LibraryError("close sort", errors.Join(s.alg.close(), s.prg.Close(), s.h.Release()))
}

// maxLocalSize is the device maximum capped by lwsMax.
func maxLocalSize(dev device.Device, lwsMax int) int {
	m := dev.MaxWorkGroupSize()
	if lwsMax > 0 {
		m = min(m, lwsMax)
	}
	return m
}
