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

package config

import (
	"fmt"
	"strings"

	"github.com/bmuddha/shmemq"
	"github.com/bmuddha/shmemq/internal/logging"
	"github.com/bmuddha/shmemq/internal/segment"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "queue.capacity")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// Validate checks every field and returns all failures.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	add := func(field string, value any, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Value: value, Message: fmt.Sprintf(format, args...)})
	}

	if err := segment.ValidateName(c.Queue.Name); err != nil {
		add("queue.name", c.Queue.Name, "must start with '/' and contain no other '/'")
	}
	if c.Queue.Capacity == 0 {
		add("queue.capacity", c.Queue.Capacity, "must be positive")
	} else if c.Queue.Slice && c.Queue.Capacity%4 != 0 {
		add("queue.capacity", c.Queue.Capacity, "must be a multiple of 4 in slice mode")
	}
	if _, err := shmemq.ParseSyncKind(c.Queue.Sync); err != nil {
		add("queue.sync", c.Queue.Sync, "must be one of auto, futex, semaphore, spin")
	}

	if !logging.ValidLevel(c.Logging.Level) {
		add("logging.level", c.Logging.Level, "must be one of DEBUG, INFO, WARN, ERROR")
	}
	switch strings.ToLower(c.Logging.Format) {
	case logging.FormatText, logging.FormatJSON:
	default:
		add("logging.format", c.Logging.Format, "must be text or json")
	}

	if c.Bench.Count <= 0 {
		add("bench.count", c.Bench.Count, "must be positive")
	}
	if c.Bench.RecordSize < 0 {
		add("bench.record_size", c.Bench.RecordSize, "must not be negative")
	} else if c.Queue.Slice && c.Queue.Capacity >= 4 && uint64(c.Bench.RecordSize) > uint64(c.Queue.Capacity)-4 {
		add("bench.record_size", c.Bench.RecordSize, "must fit in the ring (at most %d)", c.Queue.Capacity-4)
	}
	return errs
}
