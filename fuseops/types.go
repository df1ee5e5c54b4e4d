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

package fuseops

import (
	"fmt"
	"os"
	"time"
)

// OpHeader carries the information common to every op, lifted out of the
// kernel request that gave rise to it.
type OpHeader struct {
	// The unique ID assigned by the kernel to this request, for correlating
	// with interrupt requests and for logging.
	ID uint64

	// The PID of the process making the request, if known to the kernel.
	Pid uint32

	// The UID and GID of the user making the request, from the kernel's
	// perspective (i.e. before any idmapping performed by a container
	// runtime).
	Uid uint32
	Gid uint32
}

// InodeID is an opaque 64-bit number used to identify a particular inode to
// the kernel, minted by the file system in responses to LookUpInodeOp,
// MkDirOp, etc. The value RootInodeID is reserved and always refers to the
// root of the file system.
type InodeID uint64

// RootInodeID is the fixed inode ID of the root of the mounted file system,
// supplied by the kernel in requests rather than minted by the file system.
const RootInodeID InodeID = 1

// HandleID is an opaque 64-bit number used by the kernel to refer to an
// open file or directory handle previously minted by the file system.
type HandleID uint64

// DirOffset is an offset into an open directory stream, in the units used
// by fuse_dirent.off: opaque to the kernel, interpreted only by the file
// system that produced it.
type DirOffset uint64

// GenerationNumber is a generation number for an inode, used together with
// the inode ID to form a globally unique identifier across inode ID reuse
// (cf. the Generation field of struct fuse_entry_out).
type GenerationNumber uint64

// HandleOwner identifies the owner of a POSIX record lock, as seen by
// GetLkOp/SetLkOp/SetLkwOp.
type HandleOwner uint64

// FileLockType is the type of a POSIX record lock, in the vocabulary used
// by struct flock: F_RDLCK, F_WRLCK, F_UNLCK. The platform-specific
// mapping to and from the kernel's own wire values for these lives in
// flock_linux.go / flock_darwin.go, since the two kernels disagree about
// the numbering.
type FileLockType uint32

const (
	F_RDLOCK FileLockType = iota
	F_WRLOCK
	F_UNLOCK
)

// InodeAttributes contains attributes for a file or directory inode. It
// corresponds to struct inode (cf. http://goo.gl/tvYyQt) in the VFS layer,
// or to struct stat (cf. http://goo.gl/utka1Y) exposed to user-space.
type InodeAttributes struct {
	Size  uint64
	Nlink uint32
	Mode  os.FileMode
	Rdev  uint32

	// Time information. See `man 2 stat` for full details.
	Atime  time.Time
	Mtime  time.Time
	Ctime  time.Time
	Crtime time.Time

	Uid uint32
	Gid uint32
}

// DebugString returns a short string suitable for debug logging.
func (a InodeAttributes) DebugString() string {
	return fmt.Sprintf(
		"%v %d %v %d/%d",
		a.Mode, a.Size, a.Mtime, a.Uid, a.Gid)
}

// ChildInodeEntry is information about a child inode, returned by
// operations that look up or create inodes (LookUpInodeOp, MkDirOp,
// CreateFileOp, CreateSymlinkOp, CreateLinkOp, MkNodeOp).
type ChildInodeEntry struct {
	// The ID of the child inode, and a generation number distinguishing this
	// incarnation of the ID from previous ones in case the ID is reused.
	Child      InodeID
	Generation GenerationNumber

	// Current attributes for the child inode, and the time at which they
	// should be considered stale and re-fetched via GetInodeAttributesOp.
	Attributes           InodeAttributes
	AttributesExpiration time.Time

	// The time until which the kernel may cache the fact that this (parent,
	// name) pair maps to this inode.
	EntryExpiration time.Time
}

// DirentType describes the type of a directory entry, as packed into the
// "type" field of struct fuse_dirent.
type DirentType uint32

const (
	DT_Unknown  DirentType = 0
	DT_Socket   DirentType = 12
	DT_Link     DirentType = 10
	DT_File     DirentType = 8
	DT_Block    DirentType = 6
	DT_Directory DirentType = 4
	DT_Char     DirentType = 2
	DT_FIFO     DirentType = 1
)

// Dirent describes a single directory entry, to be packed into ReadDirOp's
// response buffer with fuseutil.WriteDirent.
type Dirent struct {
	Offset DirOffset
	Inode  InodeID
	Name   string
	Type   DirentType
}

// OpenFlags mirror the flags passed to open(2), exposed to the file system
// on OpenFileOp, OpenDirOp and CreateFileOp.
type OpenFlags uint32

const (
	OpenReadOnly  OpenFlags = 0x0
	OpenWriteOnly OpenFlags = 0x1
	OpenReadWrite OpenFlags = 0x2
	OpenAppend    OpenFlags = 0x400
	OpenCreate    OpenFlags = 0x40
	OpenExclusive OpenFlags = 0x80
	OpenTruncate  OpenFlags = 0x200
	OpenSync      OpenFlags = 0x101000
	OpenNonblock  OpenFlags = 0x800
)
