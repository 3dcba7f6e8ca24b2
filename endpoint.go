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
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync/atomic"

	"code.hybscloud.com/iox"

	"github.com/bmuddha/shmemq/internal/ring"
	"github.com/bmuddha/shmemq/internal/segment"
	"github.com/bmuddha/shmemq/internal/wake"
)

// endpoint is the state shared by every producer and consumer variant: the
// mapped segment, the role's view of the sync word and the occupancy
// counter. Its exported methods are promoted to the public endpoint types.
type endpoint[R wake.Role] struct {
	seg      *segment.Segment
	sync     *wake.Synchronizer[R]
	occ      *uint32
	capacity uint32
	log      *slog.Logger
	closed   atomic.Bool
}

func openEndpoint[R wake.Role](s Settings, layout segment.Layout, mode string) (*endpoint[R], error) {
	var role R
	if err := s.Validate(); err != nil {
		return nil, err
	}
	seg, err := segment.OpenOrCreate(s.Name, layout)
	if err != nil {
		return nil, fmt.Errorf("shmemq: open %s %s: %w", role, s.Name, err)
	}
	sync, err := wake.New[R](seg.SyncWord(), wake.Config{
		Kind:  s.Sync,
		Name:  s.Name,
		Owner: seg.Owner(),
	})
	if err != nil {
		seg.Close()
		return nil, fmt.Errorf("shmemq: open %s %s: %w", role, s.Name, err)
	}

	e := &endpoint[R]{
		seg:      seg,
		sync:     sync,
		occ:      seg.Occupancy(),
		capacity: s.Capacity,
		log:      s.logger().With("queue", s.Name, "role", role.String(), "mode", mode),
	}
	e.log.Debug("endpoint opened",
		"path", seg.Path(),
		"owner", seg.Owner(),
		"sync", sync.Kind().String(),
		"capacity", s.Capacity,
		"size", seg.Size(),
	)
	return e, nil
}

// openFixed opens an endpoint whose payload is a ring of T.
func openFixed[R wake.Role, T any](s Settings) (*endpoint[R], *ring.Ring[T], error) {
	t := reflect.TypeFor[T]()
	if t.Size() == 0 || hasPointers(t) {
		return nil, nil, fmt.Errorf("%w: %v", ErrElementType, t)
	}
	e, err := openEndpoint[R](s, segment.Layout{
		ElemSize:  t.Size(),
		ElemAlign: uintptr(t.Align()),
		Capacity:  s.Capacity,
	}, "fixed")
	if err != nil {
		return nil, nil, err
	}
	r, err := ring.New[T](e.seg.Payload(), s.Capacity)
	if err != nil {
		e.Close()
		return nil, nil, err
	}
	return e, r, nil
}

// openBytes opens an endpoint whose payload is a ByteRing of s.Capacity
// bytes.
func openBytes[R wake.Role](s Settings) (*endpoint[R], *ring.ByteRing, error) {
	if s.Capacity%4 != 0 {
		return nil, nil, fmt.Errorf("%w: byte capacity %d is not a multiple of 4", ErrCapacity, s.Capacity)
	}
	e, err := openEndpoint[R](s, segment.Layout{
		ElemSize:  1,
		ElemAlign: 4,
		Capacity:  s.Capacity,
	}, "slice")
	if err != nil {
		return nil, nil, err
	}
	r, err := ring.NewByteRing(e.seg.Payload())
	if err != nil {
		e.Close()
		return nil, nil, err
	}
	return e, r, nil
}

// hasPointers reports whether values of t hold anything the garbage
// collector traces, or anything that is meaningless in another address
// space.
func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Chan,
		reflect.Func, reflect.Interface, reflect.Slice, reflect.String:
		return true
	case reflect.Array:
		return t.Len() > 0 && hasPointers(t.Elem())
	case reflect.Struct:
		for i := range t.NumField() {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}

// Name returns the shared memory object name.
func (e *endpoint[R]) Name() string { return e.seg.Name() }

// Owner reports whether this endpoint created the object, and so removes
// it on Close.
func (e *endpoint[R]) Owner() bool { return e.seg.Owner() }

// Sync returns the wait primitive in use.
func (e *endpoint[R]) Sync() SyncKind { return e.sync.Kind() }

// Capacity returns the capacity in elements, or in bytes for slice
// endpoints.
func (e *endpoint[R]) Capacity() uint32 { return e.capacity }

// Len returns the current occupancy. For slice endpoints this counts ring
// bytes, including bytes held by unreleased views and skipped tails.
func (e *endpoint[R]) Len() uint32 {
	if e.closed.Load() {
		return 0
	}
	return atomic.LoadUint32(e.occ)
}

// IsFull reports whether occupancy has reached capacity.
func (e *endpoint[R]) IsFull() bool {
	return e.Len() >= e.capacity
}

// HasCapacity reports whether extra more units would fit without
// exceeding capacity.
func (e *endpoint[R]) HasCapacity(extra uint32) bool {
	return uint64(e.Len())+uint64(extra) <= uint64(e.capacity)
}

// PeerParked reports whether the other end is parked waiting on this
// one. Like the other queries it is a snapshot.
func (e *endpoint[R]) PeerParked() bool {
	if e.closed.Load() {
		return false
	}
	return e.sync.PeerParked()
}

// Close unmaps the segment and releases the wait primitive. The creator
// also removes the named objects. Close is idempotent; it must not race
// with other operations on the same endpoint.
func (e *endpoint[R]) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := errors.Join(e.sync.Close(), e.seg.Close())
	e.log.Debug("endpoint closed", "owner", e.seg.Owner(), "err", err)
	return err
}

// wait parks until ready holds.
func (e *endpoint[R]) wait(ready func() bool) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.sync.Wait(ready)
}

// waitContext parks until ready holds or ctx is done. Cancellation
// interrupts the park; the callback is done before waitContext returns, so
// the endpoint may be closed right after.
func (e *endpoint[R]) waitContext(ctx context.Context, ready func() bool) error {
	if ctx.Done() == nil {
		return e.wait(ready)
	}
	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(interrupted)
		if err := e.sync.Interrupt(); err != nil {
			e.log.Warn("interrupt failed", "err", err)
		}
	})
	defer func() {
		if !stop() {
			<-interrupted
		}
	}()

	if err := e.wait(func() bool { return ready() || ctx.Err() != nil }); err != nil {
		return err
	}
	if !ready() {
		return ctx.Err()
	}
	return nil
}

// try reports iox.ErrWouldBlock instead of waiting.
func (e *endpoint[R]) try(ready func() bool) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if !ready() {
		return iox.ErrWouldBlock
	}
	return nil
}

// charge publishes n produced units and wakes a parked consumer. With
// edge set the wake is only attempted on the empty to non-empty edge.
func (e *endpoint[R]) charge(n uint32, edge bool) error {
	old := atomic.AddUint32(e.occ, n) - n
	if edge && old != 0 {
		return nil
	}
	return e.sync.Wake()
}

// discharge publishes n consumed units and wakes a parked producer. With
// edge set the wake is only attempted on the full to non-full edge.
func (e *endpoint[R]) discharge(n uint32, edge bool) error {
	old := atomic.AddUint32(e.occ, -n) + n
	if edge && old < e.capacity {
		return nil
	}
	return e.sync.Wake()
}
