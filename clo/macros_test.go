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

package clo

import (
	"flag"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/txtar"
)

var update = flag.Bool("update", false, "rewrite testdata golden files")

const prologueGolden = "testdata/prologue.txtar"

func TestPrologues(t *testing.T) {
	got := map[string]string{
		"sort/int_default":            SortPrologue(Int, Int, "", ""),
		"sort/long_by_int_descending": SortPrologue(Long, Int, "a < b", "x"),
		"sort/half_or_equal":          SortPrologue(Half, Float, "a >= b", "  "),
		"scan/uint_ulong":             ScanPrologue(UInt, ULong),
		"scan/char_int":               ScanPrologue(Char, Int),
	}

	ar, err := txtar.ParseFile(prologueGolden)
	require.NoError(t, err)
	if *update {
		for i, f := range ar.Files {
			ar.Files[i].Data = []byte(got[f.Name])
		}
		require.NoError(t, os.WriteFile(prologueGolden, txtar.Format(ar), 0o644))
	}

	seen := make(map[string]bool)
	for _, f := range ar.Files {
		want, ok := got[f.Name]
		if !assert.True(t, ok, "golden case %s has no generator", f.Name) {
			continue
		}
		seen[f.Name] = true
		assert.Equal(t, string(f.Data), want, f.Name)
	}
	for name := range got {
		assert.True(t, seen[name], "case %s missing from %s", name, prologueGolden)
	}
}

func TestDefine(t *testing.T) {
	assert.Equal(t, "#define CLO_RNG_HASH knuth\n", DefineMacro(MacroRNGHash, "knuth"))
	assert.Equal(t, "-D CLO_SORT_SATRADIX_RADIX=16", Define(MacroSatRadixRadix, "16"))
	assert.Equal(t, "#pragma clo_library abitonic\n", Library("abitonic"))
}
