// Copyright 2026 The AerogelOS Authors.
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

// Package eventq provides a bounded single-producer single-consumer queue
// for handing events from interrupt context to the mainline.
package eventq

import (
	"fmt"

	"github.com/Rangdy-Kor/AerogelOS/pkg/atomicbitops"
)

// DefaultCapacity is the capacity used for device event queues.
const DefaultCapacity = 16

// Queue is a fixed-capacity ring of T.
//
// Exactly one goroutine (or interrupt handler) may call TryPush, and exactly
// one may call TryPop. Neither ever blocks or allocates. When the queue is
// full TryPush drops the new item.
type Queue[T any] struct {
	// ring holds the items. len(ring) is a power of 2.
	ring []T

	// mask is used whenever indexing into ring. It is always len(ring)-1.
	// It lets the cursors run freely and wrap around the ring.
	mask uint32

	// producer counts items ever pushed. Only the producer updates it.
	producer atomicbitops.Uint32

	// consumer counts items ever popped. Only the consumer updates it.
	consumer atomicbitops.Uint32
}

// New returns an empty queue. capacity must be a power of 2.
func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 || capacity&(capacity-1) != 0 || uint64(capacity) > 1<<31 {
		panic(fmt.Sprintf("queue capacity %d is not a power of 2", capacity))
	}
	return &Queue[T]{
		ring: make([]T, capacity),
		mask: uint32(capacity - 1),
	}
}

// TryPush appends item and returns true, or returns false without changing
// the queue if it is full.
func (q *Queue[T]) TryPush(item T) bool {
	// Only we update producer.
	w := q.producer.RacyLoad()
	if w-q.consumer.Load() == uint32(len(q.ring)) {
		return false
	}
	q.ring[w&q.mask] = item
	// Publish the slot.
	q.producer.Store(w + 1)
	return true
}

// TryPop removes and returns the oldest item. It returns false if the queue
// is empty.
func (q *Queue[T]) TryPop() (T, bool) {
	// Only we update consumer.
	r := q.consumer.RacyLoad()
	if r == q.producer.Load() {
		var zero T
		return zero, false
	}
	item := q.ring[r&q.mask]
	// Release the slot to the producer.
	q.consumer.Store(r + 1)
	return item, true
}

// Len returns the number of queued items. It is exact only when called by
// the producer or consumer with the other side idle.
func (q *Queue[T]) Len() int {
	r := q.consumer.Load()
	return int(q.producer.Load() - r)
}

// Cap returns the capacity.
func (q *Queue[T]) Cap() int {
	return len(q.ring)
}

// Empty returns true if there is nothing to pop.
func (q *Queue[T]) Empty() bool {
	return q.consumer.Load() == q.producer.Load()
}
