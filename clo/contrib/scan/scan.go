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
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/lo"

	"github.com/ajroetker/go-clops/clo"
	"github.com/ajroetker/go-clops/clo/device"
)

// Kind identifies a scan implementation.
type Kind uint8

const (
	// Blelloch is the three phase work-efficient scan.
	Blelloch Kind = iota

	numKinds
)

var kindNames = [numKinds]string{
	Blelloch: "blelloch",
}

// Implementations lists the registered implementation names.
const Implementations = "blelloch"

// Kinds returns every scan implementation.
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
		return 0, fmt.Errorf("%w: scan implementation %q", clo.ErrImplNotFound, name)
	}
	return Kind(i), nil
}

// NumKernels returns the number of kernels k dispatches.
func (k Kind) NumKernels() int {
	switch k {
	case Blelloch:
		return len(blellochKernels)
	}
	panic(fmt.Sprintf("scan: invalid kind %d", k))
}

// KernelName returns the name of kernel i of k.
func (k Kind) KernelName(i int) string {
	switch k {
	case Blelloch:
		return blellochKernels[i]
	}
	panic(fmt.Sprintf("scan: invalid kind %d", k))
}

// LocalMemUsage returns the local memory kernel i of k needs to scan numel
// elements into sums of sumSize bytes when local sizes are limited to
// maxLocal.
func (k Kind) LocalMemUsage(i, maxLocal, numel, sumSize int) int {
	switch k {
	case Blelloch:
		return blellochLocalMem(i, newGeometry(maxLocal, numel), sumSize)
	}
	panic(fmt.Sprintf("scan: invalid kind %d", k))
}

type config struct {
	sum          clo.Type
	sumSet       bool
	options      string
	compilerOpts string
	log          *slog.Logger
}

// Option configures New.
type Option func(*config)

// WithSumType sets the type of the prefix sums. It defaults to the element
// type.
func WithSumType(t clo.Type) Option {
	return func(c *config) {
		c.sum = t
		c.sumSet = true
	}
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

// impl is the algorithm specific part of a Scanner.
type impl interface {
	source() string
	scan(s *Scanner, q device.Queue, in, out device.Buffer, numel, lwsMax int, wait device.WaitList) (device.WaitList, error)
}

// Scanner is a compiled scan for one element and sum type. Its methods must
// not be called concurrently; instances sharing a Handle may run in
// parallel.
type Scanner struct {
	kind Kind
	impl impl

	h      *device.Handle
	prg    device.Program
	elem   clo.Type
	sum    clo.Type
	log    *slog.Logger
	closed bool
}

// New creates a scanner of implementation name over elements of type elem.
// The scanner holds a reference to h until Close.
func New(name string, h *device.Handle, elem clo.Type, opts ...Option) (_ *Scanner, err error) {
	kind, err := KindByName(name)
	if err != nil {
		return nil, err
	}
	cfg := config{log: clo.Logger()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !cfg.sumSet {
		cfg.sum = elem
	}
	if !elem.Valid() || !cfg.sum.Valid() {
		return nil, clo.InvalidArgs("scan element type %s, sum type %s", elem, cfg.sum)
	}
	if cfg.log == nil {
		cfg.log = clo.Logger()
	}

	s := &Scanner{kind: kind, h: h.Retain(), elem: elem, sum: cfg.sum, log: cfg.log}
	defer func() {
		if err != nil {
			err = clo.LibraryError("new "+name+" scan", err)
			if rerr := s.h.Release(); rerr != nil {
				err = fmt.Errorf("%w (releasing context: %v)", err, rerr)
			}
		}
	}()

	switch kind {
	case Blelloch:
		s.impl, err = newBlelloch(cfg.options)
	}
	if err != nil {
		return nil, err
	}

	prg, err := h.Context().NewProgram(clo.ScanPrologue(elem, cfg.sum), s.impl.source())
	if err != nil {
		return nil, err
	}
	if err := prg.Build(cfg.compilerOpts); err != nil {
		s.log.Debug("scan program build failed", "impl", kind, "log", prg.BuildLog())
		return nil, errors.Join(err, prg.Close())
	}
	s.prg = prg
	s.log.Debug("scan created", "impl", kind, "elem", elem, "sum", cfg.sum)
	return s, nil
}

// Kind returns the implementation of s.
func (s *Scanner) Kind() Kind { return s.kind }

// ElemType returns the element type.
func (s *Scanner) ElemType() clo.Type { return s.elem }

// SumType returns the sum type.
func (s *Scanner) SumType() clo.Type { return s.sum }

// kernel returns the program kernel called name.
func (s *Scanner) kernel(name string) (device.Kernel, error) {
	k, err := s.prg.Kernel(name)
	if err != nil {
		return nil, clo.LibraryError("get kernel "+name, err)
	}
	return k, nil
}

// ScanDevice scans numel elements of in into out on qExec after the wait
// events complete. A nil out scans in place, which needs element and sum
// types of the same size. lwsMax caps the local size; 0 leaves it to the
// device. The returned wait-list completes with the scan. qComm is accepted
// for symmetry with the sorters; scans issue no transfers.
func (s *Scanner) ScanDevice(qExec, qComm device.Queue, in, out device.Buffer, numel, lwsMax int, wait ...device.Event) (device.WaitList, error) {
	var wl device.WaitList
	wl.Add(wait...)
	switch {
	case s.closed:
		return nil, clo.LibraryError("scan", device.ErrReleased)
	case numel < 0 || lwsMax < 0:
		return nil, clo.InvalidArgs("scan of %d elements with local size cap %d", numel, lwsMax)
	case numel == 0:
		return wl, nil
	case in == nil || qExec == nil:
		return nil, clo.InvalidArgs("scan needs an input buffer and an execution queue")
	}
	if out == nil {
		if s.elem.Size() != s.sum.Size() {
			return nil, clo.InvalidArgs("in place scan needs equal element (%s) and sum (%s) sizes", s.elem, s.sum)
		}
		out = in
	}
	if in.Size() < numel*s.elem.Size() || out.Size() < numel*s.sum.Size() {
		return nil, clo.InvalidArgs("buffers of %d and %d bytes cannot hold %d elements", in.Size(), out.Size(), numel)
	}
	return s.impl.scan(s, qExec, in, out, numel, lwsMax, wl)
}

// ScanHost scans numel elements of in into out and blocks until done. A nil
// out scans in into itself. A nil qExec uses a transient queue; a nil qComm
// transfers on qExec.
func (s *Scanner) ScanHost(qExec, qComm device.Queue, in, out []byte, numel, lwsMax int) (err error) {
	if numel == 0 {
		return nil
	}
	inSize, outSize := numel*s.elem.Size(), numel*s.sum.Size()
	if out == nil {
		if s.elem.Size() != s.sum.Size() {
			return clo.InvalidArgs("in place scan needs equal element (%s) and sum (%s) sizes", s.elem, s.sum)
		}
		out = in
	}
	if numel < 0 || len(in) < inSize || len(out) < outSize {
		return clo.InvalidArgs("host slices of %d and %d bytes cannot hold %d elements", len(in), len(out), numel)
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

	inBuf, err := ctx.NewBuffer(device.ReadOnly, inSize)
	if err != nil {
		return clo.LibraryError("create input buffer", err)
	}
	defer device.CloseInto(&err, inBuf)
	outBuf, err := ctx.NewBuffer(device.WriteOnly, outSize)
	if err != nil {
		return clo.LibraryError("create output buffer", err)
	}
	defer device.CloseInto(&err, outBuf)

	if err := device.WriteSync(qComm, inBuf, in[:inSize], nil); err != nil {
		return clo.LibraryError("write input", err)
	}
	wl, err := s.ScanDevice(qExec, qComm, inBuf, outBuf, numel, lwsMax)
	if err != nil {
		return err
	}
	if err := device.ReadSync(qComm, outBuf, out[:outSize], wl); err != nil {
		return clo.LibraryError("read output", err)
	}
	return nil
}

// NumKernels returns the number of kernels the scanner dispatches.
func (s *Scanner) NumKernels() int { return s.kind.NumKernels() }

// KernelName returns the name of kernel i. It panics when i is out of
// range.
func (s *Scanner) KernelName(i int) string { return s.kind.KernelName(i) }

// LocalMemUsage returns the local memory kernel i uses for a scan of numel
// elements with local size cap lwsMax.
func (s *Scanner) LocalMemUsage(i, lwsMax, numel int) int {
	return s.kind.LocalMemUsage(i, maxLocalSize(s.h.Device(), lwsMax), numel, s.sum.Size())
}

// maxLocalSize is the device maximum capped by lwsMax.
func maxLocalSize(dev device.Device, lwsMax int) int {
	m := dev.MaxWorkGroupSize()
	if lwsMax > 0 {
		m = min(m, lwsMax)
	}
	return m
}

// Close releases the program and the context reference. Calling Close again
// is a no-op.
func (s *Scanner) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return clo.LibraryError("close scan", errors.Join(s.prg.Close(), s.h.Release()))
}
