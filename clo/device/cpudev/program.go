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
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/ajroetker/go-clops/clo"
	"github.com/ajroetker/go-clops/clo/device"
)

// macros maps macro names to their bodies. Function-like macros are stored
// under their bare name.
type macros map[string]string

// value returns the body of name, or def when undefined.
func (m macros) value(name, def string) string {
	if v, ok := m[name]; ok {
		return v
	}
	return def
}

// typ resolves a macro whose body names a type.
func (m macros) typ(name string) (clo.Type, error) {
	v, ok := m[name]
	if !ok {
		return 0, fmt.Errorf("macro %s is not defined", name)
	}
	t, err := clo.TypeByName(v)
	if err != nil {
		return 0, fmt.Errorf("macro %s: %w", name, err)
	}
	return t, nil
}

// parseDefine splits the text after "#define" into name and body.
func parseDefine(rest string) (name, body string) {
	rest = strings.TrimSpace(rest)
	end := strings.IndexAny(rest, " \t(")
	if end < 0 {
		return rest, ""
	}
	name = rest[:end]
	rest = rest[end:]
	if rest[0] == '(' {
		if closing := strings.IndexByte(rest, ')'); closing >= 0 {
			rest = rest[closing+1:]
		}
	}
	return name, strings.TrimSpace(rest)
}

// scanSources collects macros and library names from program sources.
func scanSources(sources []string, m macros) (libs []string) {
	for _, src := range sources {
		for _, line := range strings.Split(src, "\n") {
			line = strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(line, "#define"):
				name, body := parseDefine(strings.TrimPrefix(line, "#define"))
				if name != "" {
					m[name] = body
				}
			case strings.HasPrefix(line, clo.LibraryPragma):
				if lib := strings.TrimSpace(strings.TrimPrefix(line, clo.LibraryPragma)); lib != "" {
					libs = append(libs, lib)
				}
			}
		}
	}
	return libs
}

// scanOptions adds "-D NAME=value" and "-DNAME=value" flags to m. Other
// flags are accepted and ignored.
func scanOptions(options string, m macros) {
	fields := strings.Fields(options)
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		if !strings.HasPrefix(f, "-D") {
			continue
		}
		def := strings.TrimPrefix(f, "-D")
		if def == "" && i+1 < len(fields) {
			i++
			def = fields[i]
		}
		name, value, found := strings.Cut(def, "=")
		if !found {
			value = "1"
		}
		if name != "" {
			m[name] = value
		}
	}
}

// program is a set of native kernels selected by its sources.
type program struct {
	ctx     *Context
	sources []string

	mu      sync.Mutex
	log     string
	kernels map[string]*kernel
	closed  bool
}

var _ device.Program = (*program)(nil)

func newProgram(ctx *Context, sources []string) *program {
	return &program{ctx: ctx, sources: sources}
}

func (p *program) Build(options string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("%w: program", device.ErrReleased)
	}

	m := make(macros)
	libs := scanSources(p.sources, m)
	scanOptions(options, m)

	fail := func(format string, args ...any) error {
		p.log = fmt.Sprintf(format, args...)
		p.ctx.log.Debug("program build failed", "log", p.log)
		return fmt.Errorf("%w: %s", device.ErrBuild, p.log)
	}
	if len(libs) == 0 {
		return fail("no %s directive in program sources", clo.LibraryPragma)
	}

	kernels := make(map[string]*kernel)
	for _, lib := range libs {
		build, ok := libraries[lib]
		if !ok {
			return fail("unknown kernel library %q", lib)
		}
		specs, err := build(m)
		if err != nil {
			return fail("library %s: %v", lib, err)
		}
		for name, spec := range specs {
			if _, dup := kernels[name]; dup {
				return fail("kernel %s defined twice", name)
			}
			kernels[name] = &kernel{prg: p, name: name, spec: spec, args: make([]device.Arg, len(spec.args))}
		}
	}
	p.kernels = kernels
	names := slices.Sorted(maps.Keys(kernels))
	p.log = fmt.Sprintf("built %d kernels: %s", len(names), strings.Join(names, " "))
	p.ctx.log.Debug("program built", "libraries", libs, "kernels", len(names))
	return nil
}

func (p *program) BuildLog() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.log
}

func (p *program) Kernel(name string) (device.Kernel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, fmt.Errorf("%w: program", device.ErrReleased)
	}
	if p.kernels == nil {
		return nil, fmt.Errorf("%w: program is not built", device.ErrKernelNotFound)
	}
	k, ok := p.kernels[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", device.ErrKernelNotFound, name)
	}
	return k, nil
}

func (p *program) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("%w: program closed twice", device.ErrReleased)
	}
	p.closed = true
	return nil
}
