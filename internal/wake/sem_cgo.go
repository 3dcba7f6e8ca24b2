//go:build cgo && unix

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

/*
#cgo linux LDFLAGS: -pthread
#include <fcntl.h>
#include <semaphore.h>
#include <stdlib.h>

// sem_open is variadic and cannot be called from Go directly.
static sem_t *shmemq_sem_open(const char *name) {
	return sem_open(name, O_CREAT, 0644, 0);
}

static int shmemq_sem_failed(sem_t *s) {
	return s == SEM_FAILED;
}
*/
import "C"

import (
	"errors"
	"fmt"
	"syscall"
	"unsafe"
)

const semaphoreSupported = true

// namedSem is one named POSIX semaphore created with count zero.
type namedSem struct {
	sem  *C.sem_t
	name string
}

func openNamedSem(name string) (namedSem, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	s, err := C.shmemq_sem_open(cname)
	if C.shmemq_sem_failed(s) != 0 {
		return namedSem{}, fmt.Errorf("semaphore: open %s: %w", name, err)
	}
	return namedSem{sem: s, name: name}, nil
}

// semaphore parks each role on its own named semaphore. A post is only
// ever taken by the role it was meant for, so a waker that parks right
// after posting cannot consume its own wake.
type semaphore struct {
	producer namedSem
	consumer namedSem
	owner    bool
}

func newSemaphore(queue string, owner bool) (primitive, error) {
	if queue == "" {
		return nil, errors.New("semaphore: queue name is required")
	}
	pname, cname := SemaphoreNames(queue)
	for _, name := range []string{pname, cname} {
		if err := validateSemaphoreName(name); err != nil {
			return nil, err
		}
	}
	p, err := openNamedSem(pname)
	if err != nil {
		return nil, err
	}
	c, err := openNamedSem(cname)
	if err != nil {
		C.sem_close(p.sem)
		if owner {
			unlinkSemaphore(pname)
		}
		return nil, err
	}
	return &semaphore{producer: p, consumer: c, owner: owner}, nil
}

func (s *semaphore) of(sentinel uint32) namedSem {
	if sentinel == producerSentinel {
		return s.producer
	}
	return s.consumer
}

// block decrements the caller's semaphore, waiting for a post. A signal
// does not count as a post, so it retries on EINTR.
func (s *semaphore) block(_ *uint32, sentinel uint32) error {
	ns := s.of(sentinel)
	for {
		rc, err := C.sem_wait(ns.sem)
		if rc == 0 {
			return nil
		}
		if errors.Is(err, syscall.EINTR) {
			continue
		}
		return fmt.Errorf("semaphore: wait %s: %w", ns.name, err)
	}
}

// unblock posts to the semaphore of the role whose sentinel was claimed.
func (s *semaphore) unblock(_ *uint32, sentinel uint32) error {
	ns := s.of(sentinel)
	if rc, err := C.sem_post(ns.sem); rc != 0 {
		return fmt.Errorf("semaphore: post %s: %w", ns.name, err)
	}
	return nil
}

func (s *semaphore) close() error {
	var errs []error
	for _, ns := range []namedSem{s.producer, s.consumer} {
		if rc, err := C.sem_close(ns.sem); rc != 0 {
			errs = append(errs, fmt.Errorf("semaphore: close %s: %w", ns.name, err))
		}
		if s.owner {
			errs = append(errs, unlinkSemaphore(ns.name))
		}
	}
	return errors.Join(errs...)
}

func unlinkSemaphore(name string) error {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	if rc, err := C.sem_unlink(cname); rc != 0 && !errors.Is(err, syscall.ENOENT) {
		return fmt.Errorf("semaphore: unlink %s: %w", name, err)
	}
	return nil
}

// Unlink removes the named semaphores of a queue, if any. It is for
// cleaning up after a creator that exited without closing.
func Unlink(queue string) error {
	pname, cname := SemaphoreNames(queue)
	return errors.Join(unlinkSemaphore(pname), unlinkSemaphore(cname))
}
