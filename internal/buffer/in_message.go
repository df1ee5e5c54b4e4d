// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package buffer

import (
	"fmt"
	"io"
	"unsafe"

	"github.com/jacobsa/fuse/internal/fusekernel"
)

// MaxWriteSize is the largest write payload we advertise to the kernel in
// InitOut.MaxWrite. It bounds the size of WRITE requests the kernel will
// ever send us.
const MaxWriteSize = 1 << 20

// MaxReadSize is the size of the fixed buffer used to read a single request
// from the kernel. It must be large enough to hold the largest possible
// request: a WRITE of MaxWriteSize bytes plus header overhead.
const MaxReadSize = MaxWriteSize + 4096

// An incoming message from the kernel, including leading fusekernel.InHeader
// struct. Provides storage for messages and convenient access to their
// contents.
//
// The message is read into a fixed-size array in one shot and then parsed
// via a cursor; no further copies are made, so Consume/ConsumeBytes return
// data that aliases the buffer and must not be retained past the message's
// lifetime.
type InMessage struct {
	buf    [MaxReadSize]byte
	len    uintptr
	offset uintptr
}

// Initialize with the data read by a single call to r.Read. The first call to
// Consume will consume the bytes directly after the fusekernel.InHeader
// struct.
func (m *InMessage) Init(r io.Reader) (err error) {
	n, err := r.Read(m.buf[:])
	if err != nil {
		return err
	}

	if uintptr(n) < unsafe.Sizeof(fusekernel.InHeader{}) {
		return fmt.Errorf("too short to contain a fuse header: %d bytes", n)
	}

	m.len = uintptr(n)
	m.offset = unsafe.Sizeof(fusekernel.InHeader{})

	h := m.Header()
	if uintptr(h.Len) != m.len {
		return fmt.Errorf(
			"length field %d doesn't match bytes read %d", h.Len, m.len)
	}

	return nil
}

// Return a reference to the header read in the most recent call to Init.
func (m *InMessage) Header() (h *fusekernel.InHeader) {
	return (*fusekernel.InHeader)(unsafe.Pointer(&m.buf[0]))
}

// Len returns the number of bytes remaining to be consumed after the fixed
// header.
func (m *InMessage) Len() uintptr {
	return m.len - m.offset
}

// Consume the next n bytes from the message, returning a nil pointer if there
// are fewer than n bytes available.
func (m *InMessage) Consume(n uintptr) (p unsafe.Pointer) {
	if m.Len() < n {
		return nil
	}

	p = unsafe.Pointer(&m.buf[m.offset])
	m.offset += n
	return p
}

// Equivalent to Consume, except returns a slice of bytes. The result will be
// nil if Consume fails.
func (m *InMessage) ConsumeBytes(n uintptr) (b []byte) {
	if m.Len() < n {
		return nil
	}

	start := m.offset
	m.offset += n
	return m.buf[start : start+n : start+n]
}

// Remainder returns every byte not yet consumed, without advancing the
// cursor.
func (m *InMessage) Remainder() []byte {
	return m.buf[m.offset:m.len]
}

// ConsumeCString consumes a NUL terminated string from the unconsumed
// portion of the message, returning the string without its terminator and
// advancing the cursor past the NUL byte. FUSE uses this framing for
// SYMLINK and RENAME, which have no explicit length prefix.
func (m *InMessage) ConsumeCString() (string, error) {
	rest := m.buf[m.offset:m.len]
	for i, b := range rest {
		if b == 0 {
			m.offset += uintptr(i) + 1
			return string(rest[:i]), nil
		}
	}

	return "", fmt.Errorf("no NUL terminator found in remaining %d bytes", len(rest))
}

// Reset clears the message so it is ready to be reused for Init.
func (m *InMessage) Reset() {
	m.len = 0
	m.offset = 0
}
