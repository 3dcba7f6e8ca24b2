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

// Package wake implements blocking wait/wake between the two endpoints of
// a shared memory queue.
//
// Both endpoints share one 32-bit sync word. It is zero while nobody is
// parked, or holds the sentinel of the role that is parked. A waiter
// publishes its sentinel, re-checks its condition and only then blocks;
// a waker claims the peer's sentinel with a compare-and-swap and only then
// unblocks it. A wake that races ahead of the block therefore either makes
// the re-check succeed or finds the sentinel to claim. Claims map one to
// one to unblocks addressed to the claimed role, so a counting primitive
// never accumulates and a waker cannot take the unblock it just issued.
package wake

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"

	"code.hybscloud.com/iox"
)

// ErrUnsupported is returned when the requested primitive is not
// available in this build.
var ErrUnsupported = errors.New("wake: primitive not supported on this platform")

const (
	idle = 0

	producerSentinel = 0x80000000
	consumerSentinel = ^uint32(producerSentinel)
)

// Role is the closed set of endpoint roles. The peer's sentinel is the
// bitwise complement of the role's own.
type Role interface {
	ProducerRole | ConsumerRole
	Sentinel() uint32
	String() string
}

// ProducerRole parks while the queue is full.
type ProducerRole struct{}

// Sentinel returns the value a parked producer publishes.
func (ProducerRole) Sentinel() uint32 { return producerSentinel }

func (ProducerRole) String() string { return "producer" }

// ConsumerRole parks while the queue is empty.
type ConsumerRole struct{}

// Sentinel returns the value a parked consumer publishes.
func (ConsumerRole) Sentinel() uint32 { return consumerSentinel }

func (ConsumerRole) String() string { return "consumer" }

// Kind selects the blocking primitive.
type Kind int

const (
	// KindAuto picks futex on Linux, a named semaphore on other cgo
	// builds, and spinning otherwise.
	KindAuto Kind = iota
	KindFutex
	KindSemaphore
	KindSpin
)

func (k Kind) String() string {
	switch k {
	case KindAuto:
		return "auto"
	case KindFutex:
		return "futex"
	case KindSemaphore:
		return "semaphore"
	case KindSpin:
		return "spin"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind parses the String form of a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return KindAuto, nil
	case "futex":
		return KindFutex, nil
	case "semaphore", "sem":
		return KindSemaphore, nil
	case "spin":
		return KindSpin, nil
	}
	return 0, fmt.Errorf("wake: unknown primitive %q", s)
}

// Resolve maps KindAuto to the primitive this build uses.
func (k Kind) Resolve() Kind {
	if k != KindAuto {
		return k
	}
	switch {
	case futexSupported:
		return KindFutex
	case semaphoreSupported:
		return KindSemaphore
	}
	return KindSpin
}

// primitive parks and unparks a thread on behalf of a sync word.
type primitive interface {
	// block parks the role whose sentinel is given. It returns after an
	// unblock for that role, or spuriously. Implementations that count
	// (semaphores) must only return after consuming one unblock.
	block(word *uint32, sentinel uint32) error
	// unblock releases the role whose sentinel was just claimed.
	unblock(word *uint32, sentinel uint32) error
	close() error
}

// Config selects and names the primitive.
type Config struct {
	Kind Kind
	// Name is the queue's object name; the semaphore primitive derives
	// its own name from it.
	Name string
	// Owner removes named kernel objects on Close.
	Owner bool
}

// Synchronizer is one endpoint's view of the sync word.
type Synchronizer[R Role] struct {
	word *uint32
	prim primitive
	kind Kind
}

// New returns a synchronizer for role R over word, which must live in the
// shared segment.
func New[R Role](word *uint32, cfg Config) (*Synchronizer[R], error) {
	kind := cfg.Kind.Resolve()
	var (
		prim primitive
		err  error
	)
	switch kind {
	case KindFutex:
		prim, err = newFutex()
	case KindSemaphore:
		prim, err = newSemaphore(cfg.Name, cfg.Owner)
	case KindSpin:
		prim = spinner{}
	default:
		err = fmt.Errorf("wake: unknown primitive %v", kind)
	}
	if err != nil {
		return nil, err
	}
	return &Synchronizer[R]{word: word, prim: prim, kind: kind}, nil
}

// Kind returns the resolved primitive.
func (s *Synchronizer[R]) Kind() Kind { return s.kind }

// Wait returns once ready reports true, parking in between. ready must
// only turn true through the peer's actions followed by a Wake, or be
// re-evaluated cheaply; it is called repeatedly.
func (s *Synchronizer[R]) Wait(ready func() bool) error {
	var r R
	own, peer := r.Sentinel(), ^r.Sentinel()
	var bo iox.Backoff

	for !ready() {
		cur := atomic.LoadUint32(s.word)
		if cur == peer {
			// The peer is parked too. Its condition depends on us, so it
			// cannot make progress either until one side changes state;
			// poll instead of overwriting its sentinel.
			bo.Wait()
			continue
		}
		if cur != own && !atomic.CompareAndSwapUint32(s.word, cur, own) {
			runtime.Gosched()
			continue
		}
		bo.Reset()

		if ready() {
			if atomic.CompareAndSwapUint32(s.word, own, idle) {
				return nil
			}
			// A wake claimed the sentinel after the re-check; take its
			// unblock so none is left for the next wait.
			if err := s.prim.block(s.word, own); err != nil {
				return err
			}
			continue
		}

		err := s.prim.block(s.word, own)
		// Clears the sentinel after a spurious return; a claimed word is
		// already idle.
		atomic.CompareAndSwapUint32(s.word, own, idle)
		if err != nil {
			return fmt.Errorf("wake: %s wait: %w", r, err)
		}
	}
	return nil
}

// Wake unblocks the peer if it is parked. It never blocks and costs one
// compare-and-swap when the peer is not parked.
func (s *Synchronizer[R]) Wake() error {
	var r R
	peer := ^r.Sentinel()
	if !atomic.CompareAndSwapUint32(s.word, peer, idle) {
		return nil
	}
	if err := s.prim.unblock(s.word, peer); err != nil {
		return fmt.Errorf("wake: %s wake: %w", r, err)
	}
	return nil
}

// Interrupt releases a waiter of this role parked on the word, so that it
// re-checks its condition. It is for cancelling a Wait from another
// goroutine; ready must turn true for the Wait to return.
func (s *Synchronizer[R]) Interrupt() error {
	var r R
	own := r.Sentinel()
	if !atomic.CompareAndSwapUint32(s.word, own, idle) {
		return nil
	}
	if err := s.prim.unblock(s.word, own); err != nil {
		return fmt.Errorf("wake: %s interrupt: %w", r, err)
	}
	return nil
}

// PeerParked reports whether the peer's sentinel is published.
func (s *Synchronizer[R]) PeerParked() bool {
	var r R
	return atomic.LoadUint32(s.word) == ^r.Sentinel()
}

// Describe names the state a sync word value encodes.
func Describe(word uint32) string {
	switch word {
	case idle:
		return "idle"
	case producerSentinel:
		return "producer parked"
	case consumerSentinel:
		return "consumer parked"
	}
	return fmt.Sprintf("invalid (%#x)", word)
}

// Close releases the primitive.
func (s *Synchronizer[R]) Close() error {
	return s.prim.close()
}
