/*
 *
 * Copyright 2025 gRPC authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

// Package ring implements the cursor side of a single-producer
// single-consumer queue living in shared memory.
//
// Neither ring type synchronizes anything. Each endpoint owns a private
// cursor over the shared payload, and the caller establishes through the
// shared occupancy counter that a slot holds data (before reading) or is
// free (before writing). All unsafe conversions of the payload live in
// this package.
package ring

import (
	"fmt"
	"unsafe"
)

// Ring is a fixed-size element ring over a shared payload.
type Ring[T any] struct {
	slots  []T
	offset uint32
}

// New views payload as capacity slots of T. The payload must be aligned
// for T and hold at least capacity elements.
func New[T any](payload []byte, capacity uint32) (*Ring[T], error) {
	var zero T
	size, align := unsafe.Sizeof(zero), unsafe.Alignof(zero)
	if size == 0 {
		return nil, fmt.Errorf("ring: element type %T has zero size", zero)
	}
	if capacity == 0 {
		return nil, fmt.Errorf("ring: capacity must be positive")
	}
	if need := uintptr(capacity) * size; uintptr(len(payload)) < need {
		return nil, fmt.Errorf("ring: payload is %d bytes, %d slots of %T need %d", len(payload), capacity, zero, need)
	}
	base := unsafe.Pointer(unsafe.SliceData(payload))
	if uintptr(base)%align != 0 {
		return nil, fmt.Errorf("ring: payload base %p is not %d-byte aligned", base, align)
	}
	return &Ring[T]{slots: unsafe.Slice((*T)(base), capacity)}, nil
}

// Capacity returns the number of slots.
func (r *Ring[T]) Capacity() uint32 { return uint32(len(r.slots)) }

// Offset returns the private cursor.
func (r *Ring[T]) Offset() uint32 { return r.offset }

// Read returns the element at the cursor and advances it. The caller must
// have observed at least one queued element; otherwise the result is
// whatever the slot last held.
func (r *Ring[T]) Read() T {
	v := r.slots[r.offset]
	r.advance()
	return v
}

// Write stores v at the cursor and advances it. The caller must have
// observed a free slot.
func (r *Ring[T]) Write(v T) {
	r.slots[r.offset] = v
	r.advance()
}

func (r *Ring[T]) advance() {
	r.offset++
	if r.offset == uint32(len(r.slots)) {
		r.offset = 0
	}
}
