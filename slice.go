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
	"fmt"
	"sync/atomic"

	"github.com/eapache/queue"

	"github.com/bmuddha/shmemq/internal/ring"
	"github.com/bmuddha/shmemq/internal/wake"
)

// Slice endpoints carry variable-length byte records. Capacity is in bytes
// and occupancy counts ring bytes: 4 bytes of length plus the payload
// rounded up to 4 for each record, plus tail bytes skipped when a record
// does not fit before the end of the ring. Slice endpoints wake their peer
// on every publish; the wake costs one compare-and-swap when nobody is
// parked.

// SliceProducer is the writing end of a queue of byte records. It must be
// used from one goroutine at a time.
type SliceProducer struct {
	*endpoint[wake.ProducerRole]
	ring *ring.ByteRing
	need uint32 // bytes the pending write waits for
	fits func() bool
}

// NewSliceProducer opens or creates the queue named in s, with
// s.Capacity bytes of ring, and returns its writing end. The capacity must
// be a multiple of 4.
func NewSliceProducer(s Settings) (*SliceProducer, error) {
	ep, r, err := openBytes[wake.ProducerRole](s)
	if err != nil {
		return nil, err
	}
	p := &SliceProducer{endpoint: ep, ring: r}
	p.fits = func() bool {
		return uint64(atomic.LoadUint32(p.occ))+uint64(p.need) <= uint64(p.capacity)
	}
	return p, nil
}

// MaxRecord returns the largest payload ProduceSlice accepts.
func (p *SliceProducer) MaxRecord() int { return int(p.ring.MaxRecord()) }

// ProduceSlice copies b into the ring as one record, blocking until there
// is room. Empty records are allowed.
func (p *SliceProducer) ProduceSlice(b []byte) error {
	return p.produce(b, func() error { return p.wait(p.fits) })
}

// TryProduceSlice is ProduceSlice returning iox.ErrWouldBlock instead of
// blocking. A record that needs a wrap may publish the skipped tail and
// still report iox.ErrWouldBlock; a retry continues from there.
func (p *SliceProducer) TryProduceSlice(b []byte) error {
	return p.produce(b, func() error { return p.try(p.fits) })
}

// ProduceSliceContext is ProduceSlice, giving up once ctx is done.
func (p *SliceProducer) ProduceSliceContext(ctx context.Context, b []byte) error {
	return p.produce(b, func() error { return p.waitContext(ctx, p.fits) })
}

func (p *SliceProducer) produce(b []byte, reserve func() error) error {
	if uint64(len(b)) > uint64(p.ring.MaxRecord()) {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrRecordTooLarge, len(b), p.ring.MaxRecord())
	}
	skip, cost := p.ring.Plan(uint32(len(b)))
	if skip > 0 {
		// The tail is charged on its own so the record never has to wait
		// for more than a whole ring's worth of space.
		p.need = skip
		if err := reserve(); err != nil {
			return err
		}
		p.ring.SkipTail()
		if err := p.charge(skip, false); err != nil {
			return err
		}
	}
	p.need = cost
	if err := reserve(); err != nil {
		return err
	}
	p.ring.WriteSlice(b)
	return p.charge(cost, false)
}

// SliceConsumer is the reading end of a queue of byte records. It must be
// used from one goroutine at a time, Views included.
type SliceConsumer struct {
	*endpoint[wake.ConsumerRole]
	ring *ring.ByteRing

	held    uint32       // ring bytes read but not yet released
	pending *queue.Queue // *View in ring order, oldest first
	unread  func() bool
}

// NewSliceConsumer opens or creates the queue named in s, with
// s.Capacity bytes of ring, and returns its reading end.
func NewSliceConsumer(s Settings) (*SliceConsumer, error) {
	ep, r, err := openBytes[wake.ConsumerRole](s)
	if err != nil {
		return nil, err
	}
	c := &SliceConsumer{endpoint: ep, ring: r, pending: queue.New()}
	c.unread = func() bool { return atomic.LoadUint32(c.occ) > c.held }
	return c, nil
}

// View is a record borrowed in place from the ring. Its bytes stay valid
// and unchanged until Release or until the consumer is closed; the
// producer cannot reuse them before then.
// Views may be released in any order, but ring space is returned in ring
// order, so an old unreleased View holds back the space of newer ones.
type View struct {
	c        *SliceConsumer
	data     []byte
	cost     uint32
	released bool
}

// Bytes returns the record payload, or nil once the View is released or
// its consumer closed. The slice must not be used after either.
func (v *View) Bytes() []byte { return v.data }

// Len returns the payload length.
func (v *View) Len() int { return len(v.data) }

// Release returns the record's ring space to the producer. It is
// idempotent.
func (v *View) Release() error {
	if v.released {
		return nil
	}
	v.released = true
	v.data = nil
	return v.c.reclaim()
}

// ConsumeSlice returns the oldest record as a View, blocking while the
// queue holds no unread record.
func (c *SliceConsumer) ConsumeSlice() (*View, error) {
	return c.consume(func() error { return c.wait(c.unread) })
}

// TryConsumeSlice is ConsumeSlice returning iox.ErrWouldBlock instead of
// blocking.
func (c *SliceConsumer) TryConsumeSlice() (*View, error) {
	return c.consume(func() error { return c.try(c.unread) })
}

// ConsumeSliceContext is ConsumeSlice, giving up once ctx is done.
func (c *SliceConsumer) ConsumeSliceContext(ctx context.Context) (*View, error) {
	return c.consume(func() error { return c.waitContext(ctx, c.unread) })
}

// ConsumeSliceFunc passes the oldest record to fn and releases it when fn
// returns or panics. b must not be retained.
func (c *SliceConsumer) ConsumeSliceFunc(fn func(b []byte) error) (err error) {
	v, err := c.ConsumeSlice()
	if err != nil {
		return err
	}
	defer func() {
		if rerr := v.Release(); err == nil {
			err = rerr
		}
	}()
	return fn(v.Bytes())
}

// Close closes the consumer. Outstanding Views are emptied, as their
// bytes would point into the unmapped segment.
func (c *SliceConsumer) Close() error {
	for i := range c.pending.Length() {
		c.pending.Get(i).(*View).data = nil
	}
	return c.endpoint.Close()
}

// Outstanding returns the number of Views not yet released.
func (c *SliceConsumer) Outstanding() int {
	n := 0
	for i := range c.pending.Length() {
		if !c.pending.Get(i).(*View).released {
			n++
		}
	}
	return n
}

func (c *SliceConsumer) consume(await func() error) (*View, error) {
	for {
		if err := await(); err != nil {
			return nil, err
		}
		skip := c.ring.TakeTail()
		if skip == 0 {
			break
		}
		// Skipped tails are released in turn with the records before them.
		c.hold(&View{cost: skip, released: true})
		if err := c.reclaim(); err != nil {
			return nil, err
		}
	}
	b, _, cost := c.ring.ReadSlice()
	v := &View{c: c, data: b, cost: cost}
	c.hold(v)
	return v, nil
}

func (c *SliceConsumer) hold(v *View) {
	c.held += v.cost
	c.pending.Add(v)
}

// reclaim hands back the space of released Views at the head of the
// pending queue.
func (c *SliceConsumer) reclaim() error {
	if c.closed.Load() {
		return nil
	}
	var n uint32
	for c.pending.Length() > 0 {
		v := c.pending.Peek().(*View)
		if !v.released {
			break
		}
		c.pending.Remove()
		n += v.cost
	}
	if n == 0 {
		return nil
	}
	c.held -= n
	return c.discharge(n, false)
}
