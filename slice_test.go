//go:build unix

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
	"bytes"
	"encoding/binary"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"code.hybscloud.com/iox"
)

func openSlicePair(t *testing.T, kind SyncKind, capacity uint32) (*SliceProducer, *SliceConsumer) {
	t.Helper()
	s := Settings{Name: testName(t), Capacity: capacity, Sync: kind}
	p, err := NewSliceProducer(s)
	if errors.Is(err, ErrUnsupported) {
		t.Skipf("%v not supported: %v", kind, err)
	}
	if err != nil {
		t.Fatalf("NewSliceProducer(%+v) = %v", s, err)
	}
	c, err := NewSliceConsumer(s)
	if err != nil {
		p.Close()
		t.Fatalf("NewSliceConsumer(%+v) = %v", s, err)
	}
	t.Cleanup(func() {
		c.Close()
		p.Close()
	})
	return p, c
}

func TestSliceCapacityMustBeMultipleOf4(t *testing.T) {
	if _, err := NewSliceProducer(Settings{Name: testName(t), Capacity: 18}); !errors.Is(err, ErrCapacity) {
		t.Fatalf("NewSliceProducer(capacity 18) = %v, want ErrCapacity", err)
	}
}

func TestSliceRecordTooLarge(t *testing.T) {
	p, c := openSlicePair(t, SyncSpin, 16)
	if p.MaxRecord() != 12 {
		t.Fatalf("MaxRecord() = %d, want 12", p.MaxRecord())
	}
	if err := p.ProduceSlice(make([]byte, 13)); !errors.Is(err, ErrRecordTooLarge) {
		t.Fatalf("ProduceSlice(13 bytes) = %v, want ErrRecordTooLarge", err)
	}
	if p.Len() != 0 {
		t.Fatalf("rejected record changed occupancy to %d", p.Len())
	}
	if err := p.ProduceSlice(bytes.Repeat([]byte{7}, 12)); err != nil {
		t.Fatalf("ProduceSlice(12 bytes) = %v", err)
	}
	if !p.IsFull() {
		t.Fatalf("Len() = %d after a ring-sized record, want full", p.Len())
	}
	err := c.ConsumeSliceFunc(func(b []byte) error {
		if !bytes.Equal(b, bytes.Repeat([]byte{7}, 12)) {
			t.Errorf("record = %v", b)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ConsumeSliceFunc() = %v", err)
	}
}

func TestSliceEmptyRecord(t *testing.T) {
	p, c := openSlicePair(t, SyncSpin, 16)
	if err := p.ProduceSlice(nil); err != nil {
		t.Fatalf("ProduceSlice(nil) = %v", err)
	}
	if p.Len() != 4 {
		t.Fatalf("Len() = %d after empty record, want 4", p.Len())
	}
	v, err := c.ConsumeSlice()
	if err != nil {
		t.Fatalf("ConsumeSlice() = %v", err)
	}
	if v.Len() != 0 {
		t.Fatalf("ConsumeSlice() returned %d bytes, want an empty record", v.Len())
	}
	v.Release()
	if c.Len() != 0 {
		t.Fatalf("Len() = %d after release, want 0", c.Len())
	}
}

// TestSliceWrapWritesSentinel follows a record that does not fit in the
// tail: the tail gets the sentinel and the record restarts at offset 0.
func TestSliceWrapWritesSentinel(t *testing.T) {
	forEachSync(t, func(t *testing.T, kind SyncKind) {
		p, c := openSlicePair(t, kind, 16)
		first := bytes.Repeat([]byte{0xAA}, 4)
		second := bytes.Repeat([]byte{0xBB}, 8)

		if err := p.ProduceSlice(first); err != nil {
			t.Fatalf("ProduceSlice(first) = %v", err)
		}
		if p.Len() != 8 {
			t.Fatalf("Len() = %d after 4-byte record, want 8", p.Len())
		}
		v, err := c.ConsumeSlice()
		if err != nil || !bytes.Equal(v.Bytes(), first) {
			t.Fatalf("ConsumeSlice() = %v, %v; want %x", v.Bytes(), err, first)
		}
		v.Release()

		// 8 bytes remain before the end and the record costs 12, so the
		// producer skips the tail and has to wait for the consumer to pass
		// it before the record fits.
		produced := make(chan error, 1)
		go func() { produced <- p.ProduceSlice(second) }()

		mem := c.seg.Payload()
		within(t, 5*time.Second, "tail skip", func() {
			for p.Len() != 8 {
				time.Sleep(time.Millisecond)
			}
		})
		if got := binary.NativeEndian.Uint32(mem[8:12]); got != 0xFFFFFFFF {
			t.Fatalf("tail length word = %#x, want sentinel", got)
		}

		within(t, 5*time.Second, "consume after wrap", func() {
			v, err = c.ConsumeSlice()
		})
		if err != nil || !bytes.Equal(v.Bytes(), second) {
			t.Fatalf("ConsumeSlice() = %x, %v; want %x", v.Bytes(), err, second)
		}
		if err := <-produced; err != nil {
			t.Fatalf("ProduceSlice(second) = %v", err)
		}

		if got := binary.NativeEndian.Uint32(mem[0:4]); got != 8 {
			t.Fatalf("length at offset 0 = %d, want 8", got)
		}
		if !bytes.Equal(mem[4:12], second) {
			t.Fatalf("payload at offset 4 = %x, want %x", mem[4:12], second)
		}
		if c.Len() != 12 {
			t.Fatalf("Len() = %d with the wrapped record held, want 12", c.Len())
		}
		v.Release()
		if c.Len() != 0 {
			t.Fatalf("Len() = %d after release, want 0", c.Len())
		}
	})
}

func TestSliceRoundTrip(t *testing.T) {
	const n = 20000
	forEachSync(t, func(t *testing.T, kind SyncKind) {
		p, c := openSlicePair(t, kind, 64)
		limit := p.MaxRecord()

		record := func(i int) []byte {
			r := rand.New(rand.NewPCG(uint64(i), 1))
			b := make([]byte, r.IntN(limit+1))
			for j := range b {
				b[j] = byte(r.Uint32())
			}
			return b
		}

		errc := make(chan error, 1)
		go func() {
			for i := range n {
				if err := p.ProduceSlice(record(i)); err != nil {
					errc <- err
					return
				}
			}
			errc <- nil
		}()

		within(t, 30*time.Second, "consumer", func() {
			for i := range n {
				err := c.ConsumeSliceFunc(func(b []byte) error {
					if want := record(i); !bytes.Equal(b, want) {
						t.Errorf("record %d = %x, want %x", i, b, want)
					}
					return nil
				})
				if err != nil {
					t.Errorf("ConsumeSliceFunc() = %v", err)
					return
				}
				if l := c.Len(); l > c.Capacity() {
					t.Errorf("Len() = %d exceeds capacity", l)
					return
				}
			}
		})
		if err := <-errc; err != nil {
			t.Fatalf("ProduceSlice() = %v", err)
		}
		if c.Len() != 0 {
			t.Fatalf("Len() = %d after draining, want 0", c.Len())
		}
	})
}

func TestViewsReleaseOutOfOrder(t *testing.T) {
	p, c := openSlicePair(t, SyncSpin, 64)
	for i := range 3 {
		if err := p.ProduceSlice([]byte{byte(i), byte(i), byte(i), byte(i)}); err != nil {
			t.Fatalf("ProduceSlice() = %v", err)
		}
	}
	var views [3]*View
	for i := range views {
		v, err := c.ConsumeSlice()
		if err != nil {
			t.Fatalf("ConsumeSlice() = %v", err)
		}
		if v.Bytes()[0] != byte(i) {
			t.Fatalf("view %d holds %v", i, v.Bytes())
		}
		views[i] = v
	}
	if _, err := c.TryConsumeSlice(); !errors.Is(err, iox.ErrWouldBlock) {
		t.Fatalf("TryConsumeSlice() with only held records = %v, want ErrWouldBlock", err)
	}
	if c.Outstanding() != 3 || c.Len() != 24 {
		t.Fatalf("Outstanding() = %d, Len() = %d; want 3, 24", c.Outstanding(), c.Len())
	}

	views[1].Release()
	if c.Len() != 24 {
		t.Fatalf("Len() = %d after releasing a middle view, want 24", c.Len())
	}
	if !bytes.Equal(views[2].Bytes(), []byte{2, 2, 2, 2}) {
		t.Fatalf("later view changed: %v", views[2].Bytes())
	}
	views[0].Release()
	if c.Len() != 8 {
		t.Fatalf("Len() = %d after releasing the head, want 8", c.Len())
	}
	views[2].Release()
	views[2].Release()
	if c.Len() != 0 || c.Outstanding() != 0 {
		t.Fatalf("Len() = %d, Outstanding() = %d; want 0, 0", c.Len(), c.Outstanding())
	}
}

func TestHeldViewBlocksProducer(t *testing.T) {
	p, c := openSlicePair(t, SyncAuto, 16)
	if err := p.ProduceSlice(make([]byte, 8)); err != nil {
		t.Fatalf("ProduceSlice() = %v", err)
	}
	v, err := c.ConsumeSlice()
	if err != nil {
		t.Fatalf("ConsumeSlice() = %v", err)
	}

	if err := p.TryProduceSlice(make([]byte, 8)); !errors.Is(err, iox.ErrWouldBlock) {
		t.Fatalf("TryProduceSlice() while the ring is held = %v, want ErrWouldBlock", err)
	}
	produced := make(chan error, 1)
	go func() { produced <- p.ProduceSlice([]byte{1, 2, 3}) }()
	select {
	case err := <-produced:
		t.Fatalf("ProduceSlice() returned %v while the view is held", err)
	case <-time.After(50 * time.Millisecond):
	}

	v.Release()
	select {
	case err := <-produced:
		if err != nil {
			t.Fatalf("ProduceSlice() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ProduceSlice() not woken by Release")
	}
}

func TestConsumeSliceFuncReleasesOnPanic(t *testing.T) {
	p, c := openSlicePair(t, SyncSpin, 32)
	p.ProduceSlice([]byte("boom"))

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("panic did not propagate")
			}
		}()
		c.ConsumeSliceFunc(func([]byte) error { panic("callback") })
	}()
	if c.Len() != 0 || c.Outstanding() != 0 {
		t.Fatalf("Len() = %d, Outstanding() = %d after panic; want 0, 0", c.Len(), c.Outstanding())
	}

	p.ProduceSlice([]byte("fail"))
	want := errors.New("callback failed")
	if err := c.ConsumeSliceFunc(func([]byte) error { return want }); !errors.Is(err, want) {
		t.Fatalf("ConsumeSliceFunc() = %v, want callback error", err)
	}
	if c.Len() != 0 {
		t.Fatalf("Len() = %d after failed callback, want 0", c.Len())
	}
}

func TestCloseEmptiesOutstandingViews(t *testing.T) {
	p, c := openSlicePair(t, SyncSpin, 32)
	if err := p.ProduceSlice([]byte("kept")); err != nil {
		t.Fatalf("ProduceSlice() = %v", err)
	}
	v, err := c.ConsumeSlice()
	if err != nil {
		t.Fatalf("ConsumeSlice() = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if v.Bytes() != nil || v.Len() != 0 {
		t.Fatalf("View after Close holds %d bytes, want none", v.Len())
	}
	if err := v.Release(); err != nil {
		t.Fatalf("Release() after Close = %v", err)
	}
}
