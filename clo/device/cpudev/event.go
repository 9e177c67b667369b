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
	"sync"
	"time"

	"github.com/ajroetker/go-clops/clo/device"
)

// event completes when its command has run.
type event struct {
	mu    sync.Mutex
	name  string
	done  chan struct{}
	err   error
	start time.Time
	end   time.Time
}

var _ device.Event = (*event)(nil)

func newEvent(name string) *event {
	return &event{name: name, done: make(chan struct{})}
}

func (e *event) Name() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.name
}

func (e *event) SetName(name string) {
	e.mu.Lock()
	e.name = name
	e.mu.Unlock()
}

func (e *event) Wait() error {
	<-e.done
	return e.err
}

func (e *event) Duration() time.Duration {
	select {
	case <-e.done:
		return e.end.Sub(e.start)
	default:
		return 0
	}
}

// finish records the outcome and wakes waiters. It must be called once.
func (e *event) finish(start time.Time, err error) {
	e.start = start
	e.end = time.Now()
	e.err = err
	close(e.done)
}
