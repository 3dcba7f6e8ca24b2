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

package ring

import (
	"encoding/binary"
	"fmt"
)

// Record layout in a ByteRing (native endian, 4-byte aligned):
//
//	uint32 length  // payload bytes, or Sentinel
//	[roundup4(length)]byte
//
// A record never straddles the physical end of the ring. When the tail is
// too short for the next record the writer stores Sentinel in place of a
// length and restarts at offset 0.
const (
	lengthSize = 4

	// Sentinel marks "nothing more before the end, continue at 0".
	Sentinel = ^uint32(0)
)

// RoundUp4 rounds n up to a multiple of 4.
func RoundUp4(n uint32) uint32 {
	return n + (4-n%4)%4
}

// Cost returns the ring bytes consumed by a record of n payload bytes.
func Cost(n uint32) uint32 {
	return lengthSize + RoundUp4(n)
}

// ByteRing carries length-prefixed variable-size records.
type ByteRing struct {
	buf    []byte
	offset uint32
}

// NewByteRing uses payload as the ring. Its length is the capacity and
// must be a positive multiple of 4.
func NewByteRing(payload []byte) (*ByteRing, error) {
	n := len(payload)
	if n == 0 || n%4 != 0 || uint64(n) >= uint64(Sentinel) {
		return nil, fmt.Errorf("ring: byte capacity %d must be a positive multiple of 4", n)
	}
	return &ByteRing{buf: payload}, nil
}

// Capacity returns the ring size in bytes.
func (r *ByteRing) Capacity() uint32 { return uint32(len(r.buf)) }

// Offset returns the private cursor.
func (r *ByteRing) Offset() uint32 { return r.offset }

// MaxRecord returns the largest payload that fits in an empty ring.
func (r *ByteRing) MaxRecord() uint32 { return r.Capacity() - lengthSize }

// Plan reports what writing n bytes at the cursor would consume: skip
// tail bytes lost to a wrap (zero when none) and the record cost.
func (r *ByteRing) Plan(n uint32) (skip, cost uint32) {
	cost = Cost(n)
	if rem := r.Capacity() - r.offset; rem != 0 && rem < cost {
		skip = rem
	}
	return skip, cost
}

// SkipTail ends the current lap: it writes Sentinel at the cursor unless
// the cursor already sits at the end, and returns the bytes skipped.
func (r *ByteRing) SkipTail() uint32 {
	rem := r.Capacity() - r.offset
	if rem != 0 {
		r.putLength(r.offset, Sentinel)
	}
	r.offset = 0
	return rem
}

// WriteSlice appends one record and returns its cost. The caller must
// have established that cost bytes (plus any tail skipped here) are free,
// and that len(p) <= MaxRecord.
func (r *ByteRing) WriteSlice(p []byte) uint32 {
	n := uint32(len(p))
	cost := Cost(n)
	switch rem := r.Capacity() - r.offset; {
	case rem == 0:
		r.offset = 0
	case rem < cost:
		r.putLength(r.offset, Sentinel)
		r.offset = 0
	}
	r.putLength(r.offset, n)
	r.offset += lengthSize
	copy(r.buf[r.offset:], p)
	r.offset += RoundUp4(n)
	return cost
}

// TakeTail passes the end of the current lap if the cursor is there, and
// returns the tail bytes the writer skipped (zero when the lap ended
// exactly at the end or has not ended yet). The caller must have observed
// that bytes are queued at the cursor.
func (r *ByteRing) TakeTail() uint32 {
	rem := r.Capacity() - r.offset
	switch {
	case rem == 0:
		r.offset = 0
		return 0
	case r.length(r.offset) == Sentinel:
		r.offset = 0
		return rem
	}
	return 0
}

// ReadSlice returns the next record in place, the tail bytes skipped to
// reach it, and its cost. The slice aliases shared memory and stays valid
// only until the writer is allowed to reuse the record's bytes.
func (r *ByteRing) ReadSlice() (p []byte, skip, cost uint32) {
	if r.offset == r.Capacity() {
		r.offset = 0
	}
	n := r.length(r.offset)
	if n == Sentinel {
		skip = r.Capacity() - r.offset
		r.offset = 0
		n = r.length(0)
	}
	r.offset += lengthSize
	end := r.offset + n
	p = r.buf[r.offset:end:end]
	r.offset += RoundUp4(n)
	return p, skip, Cost(n)
}

func (r *ByteRing) length(off uint32) uint32 {
	return binary.NativeEndian.Uint32(r.buf[off : off+lengthSize])
}

func (r *ByteRing) putLength(off, n uint32) {
	binary.NativeEndian.PutUint32(r.buf[off:off+lengthSize], n)
}
