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

// library builds the kernels of one native kernel library from the macros
// of the program that selected it.
type library func(m macros) (map[string]kernelSpec, error)

// libraries maps "#pragma clo_library" names to their builders.
var libraries = map[string]library{
	"blelloch": blellochLibrary,
	"sbitonic": sortLibrary("sbitonic"),
	"abitonic": sortLibrary("abitonic"),
	"gselect":  sortLibrary("gselect"),
	"satradix": sortLibrary("satradix"),
	"rng":      rngLibrary,
}

// Libraries returns the names of the native kernel libraries.
func Libraries() []string {
	return []string{"blelloch", "sbitonic", "abitonic", "gselect", "satradix", "rng"}
}
