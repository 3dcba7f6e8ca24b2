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

package segment

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

const openFlags = unix.O_RDWR | unix.O_CLOEXEC | unix.O_NOFOLLOW

// OpenOrCreate opens the named object, creating and sizing it if it does
// not exist yet, and maps it. The caller that creates the object owns it
// and unlinks the name on Close.
//
// A freshly created object is zero filled by the resize, so the sync word
// and the occupancy counter start at zero.
func OpenOrCreate(name string, layout Layout) (*Segment, error) {
	if err := ValidateName(name); err != nil {
		return nil, fmt.Errorf("%w: %w", &Error{Op: OpOpen, Path: name, Errno: unix.EINVAL}, err)
	}
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	path := Path(name)

	owner := true
	fd, err := unix.Open(path, openFlags|unix.O_CREAT|unix.O_EXCL, 0o644)
	if errors.Is(err, unix.EEXIST) {
		owner = false
		fd, err = unix.Open(path, openFlags, 0)
	}
	if err != nil {
		return nil, newError(OpOpen, path, err)
	}

	// Ensure cleanup on error
	cleanup := func() {
		unix.Close(fd)
		if owner {
			unix.Unlink(path)
		}
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		cleanup()
		return nil, newError(OpSizeCheck, path, err)
	}

	want := layout.Size()
	switch {
	case st.Size == 0:
		// Either we created it, or the creator has not resized it yet.
		// Truncating to the same size twice is harmless.
		if err := unix.Ftruncate(fd, want); err != nil {
			cleanup()
			return nil, newError(OpResize, path, err)
		}
	case st.Size != want:
		cleanup()
		return nil, fmt.Errorf("%w: %s is %d bytes, layout needs %d", ErrLayoutMismatch, path, st.Size, want)
	}

	mem, err := unix.Mmap(fd, 0, int(want), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		cleanup()
		return nil, newError(OpMmap, path, err)
	}

	return &Segment{
		name:   name,
		path:   path,
		layout: layout,
		owner:  owner,
		fd:     fd,
		mem:    mem,
	}, nil
}

// Close unmaps the memory and closes the descriptor. The owner also
// unlinks the name; processes that still have the object mapped keep
// working. Close is idempotent.
func (s *Segment) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error

	if s.mem != nil {
		if err := unix.Munmap(s.mem); err != nil {
			errs = append(errs, fmt.Errorf("munmap failed: %w", err))
		}
		s.mem = nil
	}
	if err := unix.Close(s.fd); err != nil {
		errs = append(errs, fmt.Errorf("close failed: %w", err))
	}
	if s.owner {
		if err := unix.Unlink(s.path); err != nil && !errors.Is(err, unix.ENOENT) {
			errs = append(errs, fmt.Errorf("unlink failed: %w", err))
		}
	}
	return errors.Join(errs...)
}
