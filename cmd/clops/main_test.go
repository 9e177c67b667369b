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

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/go-clops/clo"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() { clo.SetLogger(nil) })
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSortCommand(t *testing.T) {
	for _, impl := range []string{"sbitonic", "abitonic", "gselect", "satradix"} {
		t.Run(impl, func(t *testing.T) {
			tsv := filepath.Join(t.TempDir(), "sort.tsv")
			out, err := execute(t, "sort", "--impl", impl, "--type", "int", "--minpo2", "1", "--maxpo2", "9",
				"--runs", "2", "--parallel", "2", "--output", tsv, "--lws", "16")
			require.NoError(t, err)
			assert.Contains(t, out, impl)

			data, err := os.ReadFile(tsv)
			require.NoError(t, err)
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			require.Len(t, lines, 10)
			assert.True(t, strings.HasPrefix(lines[0], "op\tn\t"))
			assert.True(t, strings.HasPrefix(lines[9], impl+"\t512\t2\t2\t"))
		})
	}
}

func TestSortCommandTypes(t *testing.T) {
	for _, typ := range []string{"char", "ushort", "half", "double"} {
		_, err := execute(t, "sort", "--impl", "abitonic", "--type", typ, "--maxpo2", "8", "--descending")
		assert.NoError(t, err, typ)
	}
}

func TestScanCommand(t *testing.T) {
	out, err := execute(t, "scan", "--type", "uchar", "--sum-type", "short", "--minpo2", "0", "--maxpo2", "13", "--parallel", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "blelloch")
	_, err = execute(t, "scan", "--type", "float", "--sum-type", "double", "--maxpo2", "10", "--lws", "8")
	assert.NoError(t, err)
}

func TestRNGCommand(t *testing.T) {
	out, err := execute(t, "rng", "--impl", "mwc64x", "--seed-type", "host_mt", "--count", "4096", "--bits", "12", "--metrics")
	require.NoError(t, err)
	assert.Contains(t, out, "chi-square")
	assert.Contains(t, out, "4096 x 12 bits")
	assert.Contains(t, out, "clo_cpudev_dispatches_total")
}

func TestDevicesCommand(t *testing.T) {
	out, err := execute(t, "devices", "--max-workgroup", "64")
	require.NoError(t, err)
	assert.Contains(t, out, "max work-group")
	assert.Contains(t, out, "64")
}

func TestCommandErrors(t *testing.T) {
	_, err := execute(t, "sort", "--impl", "bogosort", "--maxpo2", "4")
	assert.ErrorIs(t, err, clo.ErrImplNotFound)
	_, err = execute(t, "sort", "--type", "quad")
	assert.ErrorIs(t, err, clo.ErrUnknownType)
	_, err = execute(t, "sort", "--minpo2", "8", "--maxpo2", "4")
	assert.ErrorIs(t, err, clo.ErrInvalidArgs)
	_, err = execute(t, "sort", "--maxpo2", "4", "--output", filepath.Join(t.TempDir(), "missing", "x.tsv"))
	assert.ErrorIs(t, err, clo.ErrOpenFile)
	_, err = execute(t, "sort", "--impl", "abitonic", "--options", "maxps=9", "--maxpo2", "4")
	assert.ErrorIs(t, err, clo.ErrInvalidArgs)
	_, err = execute(t, "rng", "--seed-type", "ext_dev")
	assert.ErrorIs(t, err, clo.ErrInvalidArgs)
}
