//go:build linux

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

package wake

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux futex operations. The shared (non-private) forms are required:
// the word lives in a MAP_SHARED mapping that other processes wait on.
const (
	futexWaitOp = 0 // FUTEX_WAIT
	futexWakeOp = 1 // FUTEX_WAKE
)

const futexSupported = true

type futex struct{}

func newFutex() (primitive, error) { return futex{}, nil }

// block parks while *word == sentinel. It returns on wake, on a value
// mismatch, or on a signal; the caller re-checks its condition.
func (futex) block(word *uint32, sentinel uint32) error {
	// Re-check before entering the kernel; the kernel compares again
	// atomically with enqueueing the waiter.
	if atomic.LoadUint32(word) != sentinel {
		return nil
	}
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(word)),
		futexWaitOp,
		uintptr(sentinel),
		0, // no timeout
		0,
		0,
	)
	switch errno {
	case 0, unix.EAGAIN, unix.EINTR:
		return nil
	}
	return fmt.Errorf("futex wait failed: %w", errno)
}

// unblock wakes at most one thread parked on word.
func (futex) unblock(word *uint32, _ uint32) error {
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(word)),
		futexWakeOp,
		1, // wake one thread
		0,
		0,
		0,
	)
	if errno != 0 {
		return fmt.Errorf("futex wake failed: %w", errno)
	}
	return nil
}

func (futex) close() error { return nil }
