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
	"errors"
	"fmt"
)

// ErrNameTooLong is returned when a queue name leaves no room for the
// suffix of its semaphore names on this platform.
var ErrNameTooLong = errors.New("wake: semaphore name too long")

// SemaphoreNames returns the names of the semaphores the producer and the
// consumer of a queue park on.
func SemaphoreNames(queue string) (producer, consumer string) {
	return queue + ".p.sem", queue + ".c.sem"
}

func validateSemaphoreName(name string) error {
	if len(name) > maxSemaphoreName {
		return fmt.Errorf("%w: %q is %d bytes, limit is %d", ErrNameTooLong, name, len(name), maxSemaphoreName)
	}
	return nil
}
