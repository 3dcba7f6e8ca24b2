//go:build !cgo || !unix

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

import "fmt"

const semaphoreSupported = false

// newSemaphore needs cgo for sem_open
func newSemaphore(string, bool) (primitive, error) {
	return nil, fmt.Errorf("semaphore: %w (requires cgo)", ErrUnsupported)
}

// Unlink is a no-op without semaphore support.
func Unlink(string) error { return nil }
