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
	"fmt"
	"strings"
)

// Macro names shared with device sources.
const (
	MacroSortElemType = "CLO_SORT_ELEM_TYPE"
	MacroSortKeyType  = "CLO_SORT_KEY_TYPE"
	MacroSortCompare  = "CLO_SORT_COMPARE"
	MacroSortKeyGet   = "CLO_SORT_KEY_GET"
	MacroScanElemType = "CLO_SCAN_ELEM_TYPE"
	MacroScanSumType  = "CLO_SCAN_SUM_TYPE"

	// MacroSatRadixRadix sets the digit radix of the satradix sort.
	MacroSatRadixRadix = "CLO_SORT_SATRADIX_RADIX"

	// MacroRNGAlgorithm names the generator of an rng program.
	MacroRNGAlgorithm = "CLO_RNG_ALGORITHM"
	// MacroRNGHash names the hash used to seed generators from work-item ids.
	MacroRNGHash = "CLO_RNG_HASH"
)

// LibraryPragma selects the kernel library of a program on backends that
// provide native kernels.
const LibraryPragma = "#pragma clo_library"

// Library returns the pragma line selecting library name.
func Library(name string) string {
	return LibraryPragma + " " + name + "\n"
}

const (
	// DefaultCompare is the default sort comparison. Kernels swap a pair when
	// it holds for the lower-index element, which sorts ascending.
	DefaultCompare = "a > b"

	// DefaultKeyGet extracts the key by casting the element to the key type.
	DefaultKeyGet = "((" + MacroSortKeyType + ") x)"
)

// DefineMacro returns a "#define name value" line.
func DefineMacro(name, value string) string {
	return fmt.Sprintf("#define %s %s\n", name, value)
}

// Define returns a "-D name=value" compiler flag.
func Define(name, value string) string {
	return fmt.Sprintf("-D %s=%s", name, value)
}

// SortPrologue returns the macro block prepended to sort sources. Empty
// compare and keyGet select the defaults.
func SortPrologue(elem, key Type, compare, keyGet string) string {
	if strings.TrimSpace(compare) == "" {
		compare = DefaultCompare
	}
	if strings.TrimSpace(keyGet) == "" {
		keyGet = DefaultKeyGet
	}
	var sb strings.Builder
	sb.WriteString(DefineMacro(MacroSortElemType, elem.Name()))
	sb.WriteString(DefineMacro(MacroSortKeyType, key.Name()))
	sb.WriteString(DefineMacro(MacroSortCompare+"(a, b)", "("+compare+")"))
	sb.WriteString(DefineMacro(MacroSortKeyGet+"(x)", "("+keyGet+")"))
	return sb.String()
}

// ScanPrologue returns the macro block prepended to scan sources.
func ScanPrologue(elem, sum Type) string {
	return DefineMacro(MacroScanElemType, elem.Name()) + DefineMacro(MacroScanSumType, sum.Name())
}
