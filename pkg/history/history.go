/*
Copyright © 2024 SUSE LLC
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at
    http://www.apache.org/licenses/LICENSE-2.0
Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package history keeps a bounded, insertion-ordered window of timestamped
// samples and answers nearest-timestamp queries over it.
package history

import "iter"

// DefaultCapacity is used when a Buffer is created with a non-positive capacity.
const DefaultCapacity = 300

// Timestamped is implemented by anything stamped with a QPC value.
type Timestamped interface {
	Timestamp() uint64
}

// Buffer is a fixed-capacity ring. Once full, each Push evicts the oldest
// sample. A Buffer is not safe for concurrent use.
type Buffer[T Timestamped] struct {
	items []T
	head  int // index of the oldest sample
	size  int
}

// New allocates a buffer holding up to capacity samples.
func New[T Timestamped](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Cap returns the fixed capacity.
func (b *Buffer[T]) Cap() int {
	return len(b.items)
}

// Len returns the number of retained samples.
func (b *Buffer[T]) Len() int {
	return b.size
}

// Push appends sample, evicting the oldest one first if the buffer is full.
func (b *Buffer[T]) Push(sample T) {
	if b.size == len(b.items) {
		b.items[b.head] = sample
		b.head = (b.head + 1) % len(b.items)
		return
	}
	b.items[(b.head+b.size)%len(b.items)] = sample
	b.size++
}

// Nearest returns the retained sample whose timestamp is closest to qpc.
// On a tie the sample with the smaller timestamp wins. The second result is
// false when the buffer is empty.
func (b *Buffer[T]) Nearest(qpc uint64) (T, bool) {
	var (
		best     T
		bestDist uint64
		found    bool
	)
	for sample := range b.All() {
		ts := sample.Timestamp()
		dist := absDiff(ts, qpc)
		if !found || dist < bestDist || (dist == bestDist && ts < best.Timestamp()) {
			best, bestDist, found = sample, dist, true
		}
	}
	return best, found
}

// Newest returns the most recently pushed sample.
func (b *Buffer[T]) Newest() (T, bool) {
	var zero T
	if b.size == 0 {
		return zero, false
	}
	return b.items[(b.head+b.size-1)%len(b.items)], true
}

// All yields the retained samples from oldest to newest.
func (b *Buffer[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for i := range b.size {
			if !yield(b.items[(b.head+i)%len(b.items)]) {
				return
			}
		}
	}
}

// Reset drops every sample without releasing storage.
func (b *Buffer[T]) Reset() {
	clear(b.items)
	b.head, b.size = 0, 0
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
