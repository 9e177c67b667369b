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

package device

import "errors"

// Errors reported by device backends.
var (
	// ErrInvalidWorkSize reports a global size that is not a multiple of the
	// local size, or a local size outside the device and kernel limits.
	ErrInvalidWorkSize = errors.New("device: invalid work size")

	// ErrInvalidArg reports a missing, out of range or mistyped kernel
	// argument.
	ErrInvalidArg = errors.New("device: invalid kernel argument")

	// ErrOutOfResources reports an allocation or local memory request the
	// device cannot satisfy.
	ErrOutOfResources = errors.New("device: out of resources")

	// ErrKernelFault reports a kernel that failed while running.
	ErrKernelFault = errors.New("device: kernel fault")

	// ErrReleased reports use of an object after Close.
	ErrReleased = errors.New("device: object released")

	// ErrBuild reports a program that failed to build.
	ErrBuild = errors.New("device: program build failure")

	// ErrKernelNotFound reports a kernel name missing from a built program.
	ErrKernelNotFound = errors.New("device: kernel not found")
)
