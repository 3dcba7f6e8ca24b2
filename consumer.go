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
	"context"
	"sync/atomic"

	"github.com/bmuddha/shmemq/internal/ring"
	"github.com/bmuddha/shmemq/internal/wake"
)

// Consumer is the reading end of a queue of fixed-size elements. It must
// be used from one goroutine at a time.
type Consumer[T any] struct {
	*endpoint[wake.ConsumerRole]
	ring     *ring.Ring[T]
	nonEmpty func() bool
}

// NewConsumer opens or creates the queue named in s and returns its
// reading end. T must not contain pointers.
func NewConsumer[T any](s Settings) (*Consumer[T], error) {
	ep, r, err := openFixed[wake.ConsumerRole, T](s)
	if err != nil {
		return nil, err
	}
	c := &Consumer[T]{endpoint: ep, ring: r}
	c.nonEmpty = func() bool { return atomic.LoadUint32(c.occ) > 0 }
	return c, nil
}

// Consume removes and returns the oldest element, blocking while the
// queue is empty. If the wake of a parked producer fails, the element is
// still returned along with the error.
func (c *Consumer[T]) Consume() (T, error) {
	if err := c.wait(c.nonEmpty); err != nil {
		var zero T
		return zero, err
	}
	return c.take()
}

// TryConsume removes the oldest element if there is one, and returns
// iox.ErrWouldBlock otherwise.
func (c *Consumer[T]) TryConsume() (T, error) {
	if err := c.try(c.nonEmpty); err != nil {
		var zero T
		return zero, err
	}
	return c.take()
}

// ConsumeContext removes the oldest element, parking while the queue is
// empty until ctx is done.
func (c *Consumer[T]) ConsumeContext(ctx context.Context) (T, error) {
	if err := c.waitContext(ctx, c.nonEmpty); err != nil {
		var zero T
		return zero, err
	}
	return c.take()
}

func (c *Consumer[T]) take() (T, error) {
	v := c.ring.Read()
	return v, c.discharge(1, true)
}
