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
	"fmt"
	"log/slog"

	"github.com/bmuddha/shmemq/internal/segment"
	"github.com/bmuddha/shmemq/internal/wake"
)

// SyncKind selects how a blocked endpoint waits for its peer.
type SyncKind = wake.Kind

const (
	// SyncAuto uses futex on Linux, a named semaphore on other platforms
	// built with cgo, and SyncSpin otherwise.
	SyncAuto = wake.KindAuto
	// SyncFutex parks on the shared sync word (Linux only).
	SyncFutex = wake.KindFutex
	// SyncSemaphore parks on a named POSIX semaphore (requires cgo).
	SyncSemaphore = wake.KindSemaphore
	// SyncSpin busy-waits with adaptive backoff; no kernel object.
	SyncSpin = wake.KindSpin
)

// ParseSyncKind parses "auto", "futex", "semaphore" or "spin".
func ParseSyncKind(s string) (SyncKind, error) {
	return wake.ParseKind(s)
}

// Settings identify a queue. Producer and consumer must use identical
// Name, Capacity, Sync and element type; a mismatch in anything but the
// resulting segment size is not detected.
type Settings struct {
	// Name of the shared memory object, e.g. "/orders". It must start
	// with '/' and contain no other '/'.
	Name string
	// Capacity in elements for Producer/Consumer, or in bytes for
	// SliceProducer/SliceConsumer.
	Capacity uint32
	// Sync selects the wait primitive.
	Sync SyncKind
	// Logger receives lifecycle events at debug level. Nil discards them.
	Logger *slog.Logger
}

// Validate checks the settings without touching the OS.
func (s Settings) Validate() error {
	if err := segment.ValidateName(s.Name); err != nil {
		return err
	}
	if s.Capacity == 0 {
		return fmt.Errorf("%w: capacity must be positive", ErrCapacity)
	}
	return nil
}

func (s Settings) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}
