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
	"errors"
	"fmt"
)

// Error kinds. Errors returned by this module wrap exactly one of these and
// can be tested with errors.Is.
var (
	// ErrUnknownType reports a type name outside the registry.
	ErrUnknownType = errors.New("clo: unknown type")

	// ErrInvalidArgs reports malformed or out of range options and arguments.
	ErrInvalidArgs = errors.New("clo: invalid arguments")

	// ErrImplNotFound reports an unregistered algorithm name.
	ErrImplNotFound = errors.New("clo: implementation not found")

	// ErrLibrary reports a failure of the underlying device layer.
	ErrLibrary = errors.New("clo: device library error")

	// ErrOpenFile reports a file that could not be opened.
	ErrOpenFile = errors.New("clo: unable to open file")

	// ErrStreamWrite reports a failed write to an output stream.
	ErrStreamWrite = errors.New("clo: unable to write to stream")
)

// LibraryError wraps a device layer failure in ErrLibrary, naming the
// operation that failed. Errors that already carry one of the error kinds are
// only annotated.
func LibraryError(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsKind(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrLibrary, op, err)
}

// InvalidArgs returns an ErrInvalidArgs error with a formatted message.
func InvalidArgs(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgs, fmt.Sprintf(format, args...))
}

// IsKind reports whether err wraps one of the module error kinds.
func IsKind(err error) bool {
	for _, kind := range []error{ErrUnknownType, ErrInvalidArgs, ErrImplNotFound, ErrLibrary, ErrOpenFile, ErrStreamWrite} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
