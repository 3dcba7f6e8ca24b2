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

// Package shmemq is a single-producer single-consumer queue between two
// processes on one host, carried in a named shared memory object.
//
// Each queue is one segment holding a wait/wake word, an occupancy counter
// and a ring. Producer and Consumer move fixed-size, pointer-free values;
// SliceProducer and SliceConsumer move length-prefixed byte records that
// the consumer reads in place through a View. Both ends open the queue by
// name with identical Settings, in either order; whichever end creates the
// object removes it on Close.
//
//	p, err := shmemq.NewProducer[uint64](shmemq.Settings{Name: "/ticks", Capacity: 1024})
//	...
//	c, err := shmemq.NewConsumer[uint64](shmemq.Settings{Name: "/ticks", Capacity: 1024})
//	...
//	p.Produce(42)
//	v, err := c.Consume()
//
// Blocking and Context calls park on a futex on Linux and on named POSIX
// semaphores elsewhere; the Try variants never park.
//
// Nothing in the segment identifies its layout. Two ends that disagree on
// element type or capacity but arrive at the same segment size will
// corrupt each other's data.
package shmemq
