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

package segment

import (
	"errors"
	"fmt"
	"syscall"
)

// Op names the mapping step that failed.
type Op string

const (
	OpOpen      Op = "open"
	OpSizeCheck Op = "size-check"
	OpResize    Op = "resize"
	OpMmap      Op = "mmap"
)

// Sentinels matched by errors.Is against an *Error of the same Op.
var (
	ErrOpen      = errors.New("segment: open failed")
	ErrSizeCheck = errors.New("segment: size check failed")
	ErrResize    = errors.New("segment: resize failed")
	ErrMmap      = errors.New("segment: mmap failed")
)

// Error is a failed mapping step together with the OS error code.
type Error struct {
	Op    Op
	Path  string
	Errno syscall.Errno
}

func (e *Error) Error() string {
	return fmt.Sprintf("segment: %s %s: %v (errno %d)", e.Op, e.Path, e.Errno, int(e.Errno))
}

// Unwrap exposes the errno so errors.Is(err, syscall.ENOENT) works.
func (e *Error) Unwrap() error { return e.Errno }

// Is matches the Op sentinel.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrOpen:
		return e.Op == OpOpen
	case ErrSizeCheck:
		return e.Op == OpSizeCheck
	case ErrResize:
		return e.Op == OpResize
	case ErrMmap:
		return e.Op == OpMmap
	}
	return false
}

func newError(op Op, path string, err error) *Error {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		errno = syscall.EIO
	}
	return &Error{Op: op, Path: path, Errno: errno}
}
