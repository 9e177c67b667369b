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
	"fmt"
	"sync"
	"time"

	"github.com/ajroetker/go-clops/clo/device"
)

// queueDepth bounds the commands waiting in one queue. Enqueue blocks when
// the queue is full.
const queueDepth = 1024

type command struct {
	ev   *event
	wait device.WaitList
	run  func() error
}

// queue executes commands in order on its own goroutine.
type queue struct {
	ctx     *Context
	cmds    chan command
	stopped chan struct{}

	mu     sync.RWMutex
	closed bool
}

var _ device.Queue = (*queue)(nil)

func newQueue(ctx *Context) *queue {
	q := &queue{
		ctx:     ctx,
		cmds:    make(chan command, queueDepth),
		stopped: make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *queue) loop() {
	defer close(q.stopped)
	for c := range q.cmds {
		start := time.Now()
		if err := c.wait.Wait(); err != nil {
			c.ev.finish(start, fmt.Errorf("%s: wait-list failed: %w", c.ev.Name(), err))
			continue
		}
		start = time.Now()
		c.ev.finish(start, c.run())
	}
}

// enqueue queues run after wait and returns its event.
func (q *queue) enqueue(name string, wait device.WaitList, run func() error) (device.Event, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return nil, fmt.Errorf("%w: queue", device.ErrReleased)
	}
	ev := newEvent(name)
	q.cmds <- command{ev: ev, wait: append(device.WaitList(nil), wait...), run: run}
	return ev, nil
}

func (q *queue) Device() device.Device {
	return q.ctx.dev
}

func checkRange(b *buffer, offset, size int) error {
	if offset < 0 || size < 0 || offset+size > len(b.data) {
		return fmt.Errorf("%w: range [%d, %d) outside buffer of %d bytes", device.ErrInvalidArg, offset, offset+size, len(b.data))
	}
	return nil
}

func (q *queue) EnqueueWrite(buf device.Buffer, offset int, src []byte, wait device.WaitList) (device.Event, error) {
	b, err := asBuffer(q.ctx, buf)
	if err != nil {
		return nil, err
	}
	if err := checkRange(b, offset, len(src)); err != nil {
		return nil, err
	}
	return q.enqueue("write", wait, func() error {
		copy(b.data[offset:], src)
		q.ctx.metrics.transferBytes.WithLabelValues("write").Add(float64(len(src)))
		return nil
	})
}

func (q *queue) EnqueueRead(buf device.Buffer, offset int, dst []byte, wait device.WaitList) (device.Event, error) {
	b, err := asBuffer(q.ctx, buf)
	if err != nil {
		return nil, err
	}
	if err := checkRange(b, offset, len(dst)); err != nil {
		return nil, err
	}
	return q.enqueue("read", wait, func() error {
		copy(dst, b.data[offset:offset+len(dst)])
		q.ctx.metrics.transferBytes.WithLabelValues("read").Add(float64(len(dst)))
		return nil
	})
}

func (q *queue) EnqueueCopy(src, dst device.Buffer, srcOffset, dstOffset, size int, wait device.WaitList) (device.Event, error) {
	s, err := asBuffer(q.ctx, src)
	if err != nil {
		return nil, err
	}
	d, err := asBuffer(q.ctx, dst)
	if err != nil {
		return nil, err
	}
	if err := checkRange(s, srcOffset, size); err != nil {
		return nil, err
	}
	if err := checkRange(d, dstOffset, size); err != nil {
		return nil, err
	}
	return q.enqueue("copy", wait, func() error {
		copy(d.data[dstOffset:dstOffset+size], s.data[srcOffset:srcOffset+size])
		q.ctx.metrics.transferBytes.WithLabelValues("copy").Add(float64(size))
		return nil
	})
}

func (q *queue) EnqueueNDRange(k device.Kernel, global, local int, wait device.WaitList) (device.Event, error) {
	kr, ok := k.(*kernel)
	if !ok || kr == nil || kr.prg.ctx != q.ctx {
		return nil, fmt.Errorf("%w: kernel does not belong to this context", device.ErrInvalidArg)
	}
	launch, err := kr.prepare(global, local)
	if err != nil {
		return nil, err
	}
	return q.enqueue(kr.name, wait, launch)
}

// Finish waits for every command queued so far.
func (q *queue) Finish() error {
	ev, err := q.enqueue("marker", nil, func() error { return nil })
	if err != nil {
		return err
	}
	return ev.Wait()
}

// Close drains the queue and stops its goroutine. Closing twice is a no-op.
func (q *queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.cmds)
	q.mu.Unlock()
	<-q.stopped
	q.ctx.forgetQueue(q)
	return nil
}
