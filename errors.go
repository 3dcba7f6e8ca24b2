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

package shmemq

import (
	"errors"

	"github.com/bmuddha/shmemq/internal/segment"
	"github.com/bmuddha/shmemq/internal/wake"
)

// SegmentError is a failed mapping step with the OS error code. Construction
// errors wrap it; use errors.As to get the errno.
type SegmentError = segment.Error

// Mapping failures, matched with errors.Is against construction errors.
var (
	ErrOpen      = segment.ErrOpen
	ErrSizeCheck = segment.ErrSizeCheck
	ErrResize    = segment.ErrResize
	ErrMmap      = segment.ErrMmap

	// ErrLayoutMismatch means the named object exists with a size that
	// does not match these settings and element type.
	ErrLayoutMismatch = segment.ErrLayoutMismatch

	// ErrUnsupported means the requested wake primitive is not available
	// in this build.
	ErrUnsupported = wake.ErrUnsupported

	// ErrNameTooLong means the queue name is valid for the segment but
	// too long for the names of its semaphores on this platform.
	ErrNameTooLong = wake.ErrNameTooLong
)

var (
	// ErrClosed is returned by operations on a closed endpoint.
	ErrClosed = errors.New("shmemq: endpoint closed")

	// ErrElementType is returned for element types that cannot cross a
	// process boundary by value: zero-sized types and types containing
	// pointers, strings, slices, maps, channels, funcs or interfaces.
	ErrElementType = errors.New("shmemq: element type must be pointer-free and non-empty")

	// ErrCapacity is returned for a zero capacity, or a byte capacity that
	// is not a multiple of 4.
	ErrCapacity = errors.New("shmemq: invalid capacity")

	// ErrRecordTooLarge is returned by ProduceSlice for a payload that
	// cannot fit even in an empty ring.
	ErrRecordTooLarge = errors.New("shmemq: record larger than ring")
)
