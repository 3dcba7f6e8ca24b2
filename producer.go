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

// Producer is the writing end of a queue of fixed-size elements. It must
// be used from one goroutine at a time.
type Producer[T any] struct {
	*endpoint[wake.ProducerRole]
	ring    *ring.Ring[T]
	hasRoom func() bool
}

// NewProducer opens or creates the queue named in s and returns its
// writing end. T must not contain pointers.
func NewProducer[T any](s Settings) (*Producer[T], error) {
	ep, r, err := openFixed[wake.ProducerRole, T](s)
	if err != nil {
		return nil, err
	}
	p := &Producer[T]{endpoint: ep, ring: r}
	p.hasRoom = func() bool { return atomic.LoadUint32(p.occ) < p.capacity }
	return p, nil
}

// Produce appends v, blocking while the queue is full. If the wake of a
// parked consumer fails, v is still enqueued and the error is returned.
func (p *Producer[T]) Produce(v T) error {
	if err := p.wait(p.hasRoom); err != nil {
		return err
	}
	return p.put(v)
}

// TryProduce appends v if there is room, and returns iox.ErrWouldBlock
// otherwise.
func (p *Producer[T]) TryProduce(v T) error {
	if err := p.try(p.hasRoom); err != nil {
		return err
	}
	return p.put(v)
}

// ProduceContext appends v, parking while the queue is full until ctx is
// done.
func (p *Producer[T]) ProduceContext(ctx context.Context, v T) error {
	if err := p.waitContext(ctx, p.hasRoom); err != nil {
		return err
	}
	return p.put(v)
}

func (p *Producer[T]) put(v T) error {
	p.ring.Write(v)
	return p.charge(1, true)
}
