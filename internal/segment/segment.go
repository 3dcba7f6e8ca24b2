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

// Package segment maps named shared memory objects for a queue.
//
// A segment is laid out as
//
//	[sync word: 4][occupancy: 4][padding to element alignment][payload]
//
// No magic or version is stored. Both endpoints must compute the same
// Layout; the only check performed on an existing object is that its size
// matches the expected size.
package segment

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"unsafe"
)

// HeaderSize is the size of the sync word plus the occupancy counter.
const HeaderSize = 8

// MaxNameLen is the longest accepted object name, leading slash included.
const MaxNameLen = 255

// ErrLayoutMismatch is returned when an existing object does not have the
// size implied by the requested layout.
var ErrLayoutMismatch = errors.New("segment: existing object size does not match layout")

// Layout describes the payload region of a segment.
type Layout struct {
	ElemSize  uintptr // bytes per slot
	ElemAlign uintptr // required alignment of the payload base
	Capacity  uint32  // slots
}

// PayloadOffset returns the offset of the payload base from the start of
// the mapping. The mapping itself is page aligned.
func (l Layout) PayloadOffset() uintptr {
	align := l.ElemAlign
	if align == 0 {
		align = 1
	}
	return (HeaderSize + align - 1) &^ (align - 1)
}

// Size returns the total object size in bytes.
func (l Layout) Size() int64 {
	return int64(l.PayloadOffset()) + int64(l.ElemSize)*int64(l.Capacity)
}

// Validate reports whether the layout can be mapped.
func (l Layout) Validate() error {
	if l.ElemSize == 0 {
		return errors.New("segment: element size must be positive")
	}
	if l.Capacity == 0 {
		return errors.New("segment: capacity must be positive")
	}
	if l.ElemAlign != 0 && l.ElemAlign&(l.ElemAlign-1) != 0 {
		return fmt.Errorf("segment: alignment %d is not a power of two", l.ElemAlign)
	}
	if uint64(l.ElemSize) > (math.MaxInt64-uint64(l.PayloadOffset()))/uint64(l.Capacity) {
		return fmt.Errorf("segment: %d slots of %d bytes overflow", l.Capacity, l.ElemSize)
	}
	if l.Size() > int64(math.MaxInt) {
		return fmt.Errorf("segment: size %d exceeds address space", l.Size())
	}
	return nil
}

// Segment is a mapped named shared memory object.
type Segment struct {
	name   string
	path   string
	layout Layout
	owner  bool // created the object; unlinks it on Close

	fd  int
	mem []byte

	closed atomic.Bool
}

// Name returns the object name the segment was opened with.
func (s *Segment) Name() string { return s.name }

// Path returns the file system path backing the object.
func (s *Segment) Path() string { return s.path }

// Owner reports whether this segment created the object.
func (s *Segment) Owner() bool { return s.owner }

// Layout returns the layout the segment was mapped with.
func (s *Segment) Layout() Layout { return s.layout }

// Size returns the mapped size in bytes.
func (s *Segment) Size() int { return len(s.mem) }

// SyncWord returns the shared wait/wake word at offset 0.
func (s *Segment) SyncWord() *uint32 {
	return (*uint32)(unsafe.Pointer(&s.mem[0]))
}

// Occupancy returns the shared occupancy counter at offset 4.
func (s *Segment) Occupancy() *uint32 {
	return (*uint32)(unsafe.Pointer(&s.mem[4]))
}

// Payload returns the payload region, aligned for the layout's element.
func (s *Segment) Payload() []byte {
	off := s.layout.PayloadOffset()
	n := uintptr(s.layout.Capacity) * s.layout.ElemSize
	return s.mem[off : off+n : off+n]
}

// ValidateName checks the POSIX shared memory naming rules: a leading
// slash, no other slash, and a bounded length.
func ValidateName(name string) error {
	switch {
	case len(name) < 2 || name[0] != '/':
		return fmt.Errorf("segment: name %q must start with '/' followed by at least one character", name)
	case strings.ContainsRune(name[1:], '/'):
		return fmt.Errorf("segment: name %q must not contain '/' after the prefix", name)
	case len(name) > MaxNameLen:
		return fmt.Errorf("segment: name is %d bytes, limit is %d", len(name), MaxNameLen)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("segment: name %q contains a NUL byte", name)
	}
	return nil
}

// Path maps an object name to its backing file. /dev/shm is the shm_open
// namespace on Linux; elsewhere a prefixed file in the temp dir stands in.
func Path(name string) string {
	if isDevShmAvailable() {
		return filepath.Join("/dev/shm", name[1:])
	}
	return filepath.Join(os.TempDir(), "shmemq."+name[1:])
}

func isDevShmAvailable() bool {
	info, err := os.Stat("/dev/shm")
	if err != nil {
		return false
	}
	return info.IsDir()
}

// Remove unlinks a named object. It reports os.ErrNotExist when there is
// nothing to remove.
func Remove(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	return os.Remove(Path(name))
}

// Exists reports whether a named object is present.
func Exists(name string) bool {
	if ValidateName(name) != nil {
		return false
	}
	_, err := os.Stat(Path(name))
	return err == nil
}

// Info is a snapshot of an object's header, read without mapping it.
type Info struct {
	Name      string
	Path      string
	Size      int64
	SyncWord  uint32
	Occupancy uint32
}

// Inspect reads the header of an existing object. The words are read
// with plain loads and may be stale by the time they are returned.
func Inspect(name string) (Info, error) {
	if err := ValidateName(name); err != nil {
		return Info{}, err
	}
	path := Path(name)
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return Info{}, err
	}
	info := Info{Name: name, Path: path, Size: st.Size()}
	if st.Size() < HeaderSize {
		return info, fmt.Errorf("segment: %s is %d bytes, shorter than the header", path, st.Size())
	}
	var hdr [HeaderSize]byte
	if _, err := f.ReadAt(hdr[:], 0); err != nil && !errors.Is(err, io.EOF) {
		return info, err
	}
	info.SyncWord = binary.NativeEndian.Uint32(hdr[0:4])
	info.Occupancy = binary.NativeEndian.Uint32(hdr[4:8])
	return info, nil
}
