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
	"log"
	"reflect"
	"unsafe"

	"github.com/jacobsa/fuse/internal/fusekernel"
)

// OutMessageInitialSize is the size of the leading header in every
// properly-constructed OutMessage. Reset brings the message back to this size.
const OutMessageInitialSize = uintptr(unsafe.Sizeof(fusekernel.OutHeader{}))

// OutMessage provides a mechanism for constructing a single contiguous fuse
// message from multiple segments, where the first segment is always a
// fusekernel.OutHeader message.
//
// Must be initialized with Reset.
type OutMessage struct {
	// The offset into payload to which we're currently writing.
	offset int

	header  [OutMessageInitialSize]byte
	payload [MaxReadSize]byte

	// Sglist, if non-nil, holds a scatter/gather list of additional buffers
	// (beyond header+payload) to be written to the kernel with writev instead
	// of a single contiguous write. Used for zero-copy READ replies, whose
	// data slice is owned by the file system rather than copied into payload.
	Sglist [][]byte
}

// NewOutMessage returns a freshly reset OutMessage whose payload has at
// least the given number of bytes of headroom already grown (zeroed).
func NewOutMessage(size uintptr) (m OutMessage) {
	m.Reset()
	m.Grow(int(size))
	return
}

// Make sure that the header field is aligned correctly for
// fusekernel.OutHeader type punning.
func init() {
	a := unsafe.Alignof(OutMessage{})
	o := unsafe.Offsetof(OutMessage{}.header)
	e := unsafe.Alignof(fusekernel.OutHeader{})

	if a%e != 0 || o%e != 0 {
		log.Panicf("Bad alignment or offset: %d, %d, need %d", a, o, e)
	}
}

// Make sure that the header and payload are contiguous.
func init() {
	a := unsafe.Offsetof(OutMessage{}.header) + OutMessageInitialSize
	b := unsafe.Offsetof(OutMessage{}.payload)

	if a != b {
		log.Panicf(
			"header ends at offset %d, but payload starts at offset %d",
			a, b)
	}
}

// Reset resets m so that it's ready to be used again. Afterward, the contents
// are solely a zeroed fusekernel.OutHeader struct.
func (m *OutMessage) Reset() {
	m.offset = 0
	m.Sglist = nil
	memclr(unsafe.Pointer(&m.header), OutMessageInitialSize)
}

// OutHeader returns a pointer to the header at the start of the message.
func (m *OutMessage) OutHeader() (h *fusekernel.OutHeader) {
	return (*fusekernel.OutHeader)(unsafe.Pointer(&m.header[0]))
}

// OutHeaderBytes returns the full contents of the message (header and
// payload, but not Sglist) as a single contiguous slice, suitable for a
// plain write(2) when there is no scatter/gather data to send.
func (m *OutMessage) OutHeaderBytes() []byte {
	return m.Bytes()
}

// Grow grows m's buffer by the given number of bytes, returning a pointer to
// the start of the new segment, which is guaranteed to be zeroed. If there is
// insufficient space, it returns nil.
func (m *OutMessage) Grow(n int) (p unsafe.Pointer) {
	p = m.GrowNoZero(n)
	if p != nil {
		memclr(p, uintptr(n))
	}

	return
}

// GrowNoZero is equivalent to Grow, except the new segment is not zeroed. Use
// with caution!
func (m *OutMessage) GrowNoZero(n int) (p unsafe.Pointer) {
	if n < 0 || m.offset+n > len(m.payload) {
		return nil
	}

	p = unsafe.Pointer(&m.payload[m.offset])
	m.offset += n

	return
}

// ShrinkTo shrinks m to the given size. It panics if the size is greater than
// Len() or less than OutMessageInitialSize.
func (m *OutMessage) ShrinkTo(n uintptr) {
	if n > uintptr(m.Len()) {
		panic(fmt.Sprintf("Can't shrink to %d bytes; currently %d", n, m.Len()))
	}

	if n < OutMessageInitialSize {
		panic(fmt.Sprintf(
			"Can't shrink to %d bytes; must be at least %d", n, OutMessageInitialSize))
	}

	m.offset = int(n - OutMessageInitialSize)
}

// Append is equivalent to growing by len(src), then copying src over the new
// segment. Int panics if there is not enough room available.
func (m *OutMessage) Append(src []byte) {
	p := m.GrowNoZero(len(src))
	if p == nil {
		panic(fmt.Sprintf("Can't grow %d bytes", len(src)))
	}

	sh := (*reflect.SliceHeader)(unsafe.Pointer(&src))
	memmove(p, unsafe.Pointer(sh.Data), uintptr(sh.Len))

	return
}

// AppendString is like Append, but accepts string input.
func (m *OutMessage) AppendString(src string) {
	p := m.GrowNoZero(len(src))
	if p == nil {
		panic(fmt.Sprintf("Can't grow %d bytes", len(src)))
	}

	sh := (*reflect.StringHeader)(unsafe.Pointer(&src))
	memmove(p, unsafe.Pointer(sh.Data), uintptr(sh.Len))

	return
}

// Len returns the current size of the message, including the leading header.
func (m *OutMessage) Len() int {
	return int(OutMessageInitialSize) + m.offset
}

// Bytes returns a reference to the current contents of the buffer, including
// the leading header.
func (m *OutMessage) Bytes() []byte {
	l := m.Len()
	sh := reflect.SliceHeader{
		Data: uintptr(unsafe.Pointer(&m.header)),
		Len:  l,
		Cap:  l,
	}

	return *(*[]byte)(unsafe.Pointer(&sh))
}
