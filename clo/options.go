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
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// ParseOptions parses a "key=value,key=value" option string. Empty tokens are
// skipped. A token without exactly one "=" or a key outside allowed fails with
// ErrInvalidArgs. Later duplicates override earlier ones.
func ParseOptions(s string, allowed ...string) (map[string]string, error) {
	opts := make(map[string]string)
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		kv := strings.Split(tok, "=")
		if len(kv) != 2 {
			return nil, InvalidArgs("invalid option token %q, expected key=value", tok)
		}
		key, value := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		if !lo.Contains(allowed, key) {
			if len(allowed) == 0 {
				return nil, InvalidArgs("unknown option %q, no options are accepted", key)
			}
			return nil, InvalidArgs("unknown option %q (valid options: %s)", key, strings.Join(allowed, ", "))
		}
		opts[key] = value
	}
	return opts, nil
}

// UintOption returns opts[key] parsed as an unsigned integer, or def when the
// key is absent.
func UintOption(opts map[string]string, key string, def uint64) (uint64, error) {
	v, ok := opts[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 0, 64)
	if err != nil {
		return 0, InvalidArgs("option %s=%q is not an unsigned integer", key, v)
	}
	return n, nil
}
