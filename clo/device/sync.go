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

// WriteSync enqueues a write of src into buf and waits for it.
func WriteSync(q Queue, buf Buffer, src []byte, wait WaitList) error {
	ev, err := q.EnqueueWrite(buf, 0, src, wait)
	if err != nil {
		return err
	}
	return ev.Wait()
}

// ReadSync enqueues a read of buf into dst and waits for it.
func ReadSync(q Queue, buf Buffer, dst []byte, wait WaitList) error {
	ev, err := q.EnqueueRead(buf, 0, dst, wait)
	if err != nil {
		return err
	}
	return ev.Wait()
}

// CloseInto closes c and joins its error into *err. It is meant to be
// deferred by functions with a named error result.
func CloseInto(err *error, c interface{ Close() error }) {
	if cerr := c.Close(); cerr != nil {
		*err = errors.Join(*err, cerr)
	}
}
