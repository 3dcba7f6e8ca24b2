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
	"sync/atomic"

	"code.hybscloud.com/iox"
)

// spinner busy-waits with adaptive backoff until the sentinel is claimed.
// It needs no kernel object, so it works wherever the segment maps.
type spinner struct{}

func (spinner) block(word *uint32, sentinel uint32) error {
	var bo iox.Backoff
	for atomic.LoadUint32(word) == sentinel {
		bo.Wait()
	}
	return nil
}

func (spinner) unblock(*uint32, uint32) error { return nil }

func (spinner) close() error { return nil }
