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

// WaitList is a set of events a command waits on before it runs.
type WaitList []Event

// Add appends the non-nil events in evts.
func (w *WaitList) Add(evts ...Event) {
	for _, e := range evts {
		if e != nil {
			*w = append(*w, e)
		}
	}
}

// Merge appends every event of other.
func (w *WaitList) Merge(other WaitList) {
	w.Add(other...)
}

// Wait blocks until every event completed. All events are waited for; the
// returned error joins their failures.
func (w WaitList) Wait() error {
	var errs []error
	for _, e := range w {
		if err := e.Wait(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Clear empties the list, keeping its storage.
func (w *WaitList) Clear() {
	*w = (*w)[:0]
}
