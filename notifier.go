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

package fuse

import (
	"errors"
	"sync"
	"unsafe"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/internal/buffer"
	"github.com/jacobsa/fuse/internal/fusekernel"
)

// errNotifierUnbound is returned by Notifier methods called before the
// notifier has been bound to a live connection via NewServerWithNotifier and
// Mount.
var errNotifierUnbound = errors.New("notifier is not bound to a mounted connection")

// A Notifier lets a file system push unsolicited cache-invalidation messages
// to the kernel outside of the usual request/response cycle, for use with
// file systems whose backing data can change without a corresponding FUSE
// operation (cf. fuse_lowlevel_notify_inval_inode and
// fuse_lowlevel_notify_inval_entry in libfuse).
//
// Create one with NewNotifier, pass it to NewServerWithNotifier along with
// the real server, and mount the result. The notifier becomes usable once
// the kernel connection is established.
type Notifier struct {
	mu   sync.Mutex
	conn *Connection
}

// NewNotifier returns a notifier that is not yet bound to any connection.
// Its methods will fail until the server it is wired into (via
// NewServerWithNotifier) has been mounted.
func NewNotifier() *Notifier {
	return &Notifier{}
}

func (n *Notifier) bind(c *Connection) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.conn = c
}

func (n *Notifier) connection() (*Connection, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil {
		return nil, errNotifierUnbound
	}
	return n.conn, nil
}

// InvalidateInode asks the kernel to drop any cached data for the given
// inode in the range [offset, offset+length), and its cached attributes. A
// length of zero invalidates the entire cache for the inode.
func (n *Notifier) InvalidateInode(
	inode fuseops.InodeID,
	offset int64,
	length int64) error {
	c, err := n.connection()
	if err != nil {
		return err
	}

	body := fusekernel.NotifyInvalInodeOut{
		Ino: uint64(inode),
		Off: offset,
		Len: length,
	}

	return c.writeNotification(
		fusekernel.NotifyCodeInvalInode,
		unsafe.Sizeof(body),
		func(p unsafe.Pointer) {
			*(*fusekernel.NotifyInvalInodeOut)(p) = body
		},
		"")
}

// InvalidateEntry asks the kernel to drop the dentry cache entry named name
// within parent, forcing a fresh LookUpInode on next access.
func (n *Notifier) InvalidateEntry(parent fuseops.InodeID, name string) error {
	c, err := n.connection()
	if err != nil {
		return err
	}

	body := fusekernel.NotifyInvalEntryOut{
		Parent:  uint64(parent),
		Namelen: uint32(len(name)),
	}

	return c.writeNotification(
		fusekernel.NotifyCodeInvalEntry,
		unsafe.Sizeof(body),
		func(p unsafe.Pointer) {
			*(*fusekernel.NotifyInvalEntryOut)(p) = body
		},
		name)
}

// writeNotification assembles an unsolicited kernel message (request ID
// zero, the notify code stashed in the header's error field per the FUSE
// wire protocol) and writes it to the device. bodySize is the size of the
// fixed body struct written by fill; name, if non-empty, is appended NUL
// terminated immediately after it, as the wire format for
// NotifyInvalEntryOut requires.
func (c *Connection) writeNotification(
	code fusekernel.NotifyCode,
	bodySize uintptr,
	fill func(unsafe.Pointer),
	name string) error {
	m := buffer.NewOutMessage(0)

	p := m.Grow(int(bodySize))
	fill(p)

	if name != "" {
		m.AppendString(name)
		m.Append([]byte{0})
	}

	h := m.OutHeader()
	h.Unique = 0
	h.Error = int32(code)
	h.Len = uint32(m.Len())

	return c.writeOutMessage(&m)
}

// notifyingServer binds a Notifier to the connection before handing off to
// the wrapped Server, so that the notifier's methods become usable as soon
// as ops start flowing.
type notifyingServer struct {
	notifier *Notifier
	server   Server
}

// NewServerWithNotifier wraps server so that notifier is bound to the
// underlying connection as soon as the returned Server starts serving ops,
// allowing the file system to call notifier's methods concurrently with
// ordinary request handling.
func NewServerWithNotifier(notifier *Notifier, server Server) Server {
	return &notifyingServer{notifier: notifier, server: server}
}

func (s *notifyingServer) ServeOps(c *Connection) {
	s.notifier.bind(c)
	s.server.ServeOps(c)
}
