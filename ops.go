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
	"fmt"
	"os"
	"time"
	"unsafe"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/internal/buffer"
	"github.com/jacobsa/fuse/internal/fusekernel"
)

// initOp carries the INIT handshake. Connection.Init handles it directly;
// it is never surfaced to the file system.
type initOp struct {
	Kernel       fusekernel.Protocol
	Library      fusekernel.Protocol
	MaxReadahead uint32
	MaxWrite     uint32
	MaxPages     uint16
	Flags        fusekernel.InitFlags
}

// interruptOp is handled inline by Connection.ReadOp; it asks us to cancel
// the context of an in-flight op.
type interruptOp struct {
	FuseID uint64
}

// unknownOp represents an opcode that this package does not know how to
// convert. kernelResponse replies to it with ENOSYS.
type unknownOp struct {
	OpCode uint32
	Inode  fuseops.InodeID
}

func (o *unknownOp) ShortDesc() string {
	return fmt.Sprintf("<opcode %d>(inode=%v)", o.OpCode, o.Inode)
}

func consumeMknodIn(m *buffer.InMessage, p fusekernel.Protocol) *fusekernel.MknodIn {
	return (*fusekernel.MknodIn)(m.Consume(fusekernel.MknodInSize(p)))
}

func consumeMkdirIn(m *buffer.InMessage, p fusekernel.Protocol) *fusekernel.MkdirIn {
	return (*fusekernel.MkdirIn)(m.Consume(fusekernel.MkdirInSize(p)))
}

func consumeCreateIn(m *buffer.InMessage, p fusekernel.Protocol) *fusekernel.CreateIn {
	return (*fusekernel.CreateIn)(m.Consume(fusekernel.CreateInSize(p)))
}

func consumeReadIn(m *buffer.InMessage, p fusekernel.Protocol) *fusekernel.ReadIn {
	return (*fusekernel.ReadIn)(m.Consume(fusekernel.ReadInSize(p)))
}

func consumeWriteIn(m *buffer.InMessage, p fusekernel.Protocol) *fusekernel.WriteIn {
	return (*fusekernel.WriteIn)(m.Consume(fusekernel.WriteInSize(p)))
}

// pointerToSlice builds a []byte of length n aliasing the memory at p. Used
// to hand out-message payload memory directly to the file system so that
// READ/READDIR/GETXATTR/LISTXATTR replies are filled in with no extra copy.
func pointerToSlice(p unsafe.Pointer, n int) []byte {
	return unsafe.Slice((*byte)(p), n)
}

func convertFileLock(lk fusekernel.FileLock) fuseops.Lock {
	return fuseops.Lock{
		Start: lk.Start,
		End:   lk.End,
		Type:  fuseops.FileLockType(lk.Type),
		Pid:   lk.Pid,
	}
}

func convertFileLockOut(lk fuseops.Lock) fusekernel.FileLock {
	return fusekernel.FileLock{
		Start: lk.Start,
		End:   lk.End,
		Type:  uint32(lk.Type),
		Pid:   lk.Pid,
	}
}

// convertInMessage converts the next incoming kernel message to an op, whose
// Header field (where it has one) carries the request's OpHeader. READ,
// READDIR, GETXATTR and LISTXATTR grow outMsg's
// payload and alias it directly into the op's destination buffer so that the
// file system can fill in the reply without an extra copy.
func convertInMessage(
	cfg *MountConfig,
	inMsg *buffer.InMessage,
	outMsg *buffer.OutMessage,
	protocol fusekernel.Protocol) (op interface{}, err error) {
	h := inMsg.Header()
	hdr := fuseops.OpHeader{ID: h.Unique, Pid: h.Pid, Uid: h.Uid, Gid: h.Gid}

	switch h.Opcode {
	case fusekernel.OpInit:
		// Kernels older than protocol 7.36 send only the leading Major, Minor,
		// MaxReadahead and Flags fields; the remaining fields are left zero.
		var in fusekernel.InitIn
		n := unsafe.Sizeof(in)
		if inMsg.Len() < n {
			n = unsafe.Offsetof(in.Flags2)
		}
		p := inMsg.Consume(n)
		if p == nil {
			err = fmt.Errorf("corrupt INIT message")
			return
		}
		copy(pointerToSlice(unsafe.Pointer(&in), int(n)), pointerToSlice(p, int(n)))

		op = &initOp{
			Kernel: fusekernel.Protocol{Major: in.Major, Minor: in.Minor},
			Flags:  fusekernel.InitFlags(in.Flags) | fusekernel.InitFlags(in.Flags2)<<32,
		}
		return

	case fusekernel.OpInterrupt:
		in := (*fusekernel.InterruptIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.InterruptIn{})))
		if in == nil {
			err = fmt.Errorf("corrupt INTERRUPT message")
			return
		}

		op = &interruptOp{FuseID: in.Unique}
		return

	case fusekernel.OpLookup:
		name, e := inMsg.ConsumeCString()
		if e != nil {
			err = e
			return
		}

		op = &fuseops.LookUpInodeOp{
			Header: hdr,
			Parent: fuseops.InodeID(h.Nodeid),
			Name:   name,
		}

	case fusekernel.OpGetattr:
		if p := inMsg.Consume(unsafe.Sizeof(fusekernel.GetattrIn{})); p == nil {
			err = fmt.Errorf("corrupt GETATTR message")
			return
		}

		op = &fuseops.GetInodeAttributesOp{
			Header: hdr,
			Inode:  fuseops.InodeID(h.Nodeid),
		}

	case fusekernel.OpSetattr:
		in := (*fusekernel.SetattrIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.SetattrIn{})))
		if in == nil {
			err = fmt.Errorf("corrupt SETATTR message")
			return
		}

		o := &fuseops.SetInodeAttributesOp{
			Header: hdr,
			Inode:  fuseops.InodeID(h.Nodeid),
		}

		if in.Valid&fusekernel.SetattrSize != 0 {
			size := in.Size
			o.Size = &size
		}

		if in.Valid&fusekernel.SetattrMode != 0 {
			mode := convertFileMode(in.Mode)
			o.Mode = &mode
		}

		if in.Valid&fusekernel.SetattrAtime != 0 {
			t := time.Unix(int64(in.Atime), int64(in.AtimeNsec))
			o.Atime = &t
		}

		if in.Valid&fusekernel.SetattrMtime != 0 {
			t := time.Unix(int64(in.Mtime), int64(in.MtimeNsec))
			o.Mtime = &t
		}

		op = o

	case fusekernel.OpReadlink:
		op = &fuseops.ReadSymlinkOp{
			Header: hdr,
			Inode:  fuseops.InodeID(h.Nodeid),
		}

	case fusekernel.OpSymlink:
		name, e := inMsg.ConsumeCString()
		if e != nil {
			err = e
			return
		}

		target, e2 := inMsg.ConsumeCString()
		if e2 != nil {
			err = e2
			return
		}

		op = &fuseops.CreateSymlinkOp{
			Header: hdr,
			Parent: fuseops.InodeID(h.Nodeid),
			Name:   name,
			Target: target,
		}

	case fusekernel.OpMknod:
		in := consumeMknodIn(inMsg, protocol)
		if in == nil {
			err = fmt.Errorf("corrupt MKNOD message")
			return
		}

		name, e := inMsg.ConsumeCString()
		if e != nil {
			err = e
			return
		}

		op = &fuseops.MkNodeOp{
			Header: hdr,
			Parent: fuseops.InodeID(h.Nodeid),
			Name:   name,
			Mode:   convertFileMode(in.Mode),
			Rdev:   in.Rdev,
		}

	case fusekernel.OpMkdir:
		in := consumeMkdirIn(inMsg, protocol)
		if in == nil {
			err = fmt.Errorf("corrupt MKDIR message")
			return
		}

		name, e := inMsg.ConsumeCString()
		if e != nil {
			err = e
			return
		}

		op = &fuseops.MkDirOp{
			Header: hdr,
			Parent: fuseops.InodeID(h.Nodeid),
			Name:   name,
			Mode:   convertFileMode(in.Mode) | os.ModeDir,
		}

	case fusekernel.OpUnlink:
		name, e := inMsg.ConsumeCString()
		if e != nil {
			err = e
			return
		}

		op = &fuseops.UnlinkOp{
			Header: hdr,
			Parent: fuseops.InodeID(h.Nodeid),
			Name:   name,
		}

	case fusekernel.OpRmdir:
		name, e := inMsg.ConsumeCString()
		if e != nil {
			err = e
			return
		}

		op = &fuseops.RmDirOp{
			Header: hdr,
			Parent: fuseops.InodeID(h.Nodeid),
			Name:   name,
		}

	case fusekernel.OpRename:
		in := (*fusekernel.RenameIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.RenameIn{})))
		if in == nil {
			err = fmt.Errorf("corrupt RENAME message")
			return
		}

		oldName, e := inMsg.ConsumeCString()
		if e != nil {
			err = e
			return
		}

		newName, e2 := inMsg.ConsumeCString()
		if e2 != nil {
			err = e2
			return
		}

		op = &fuseops.RenameOp{
			Header:    hdr,
			OldParent: fuseops.InodeID(h.Nodeid),
			OldName:   oldName,
			NewParent: fuseops.InodeID(in.Newdir),
			NewName:   newName,
		}

	case fusekernel.OpRename2:
		in := (*fusekernel.Rename2In)(inMsg.Consume(unsafe.Sizeof(fusekernel.Rename2In{})))
		if in == nil {
			err = fmt.Errorf("corrupt RENAME2 message")
			return
		}

		oldName, e := inMsg.ConsumeCString()
		if e != nil {
			err = e
			return
		}

		newName, e2 := inMsg.ConsumeCString()
		if e2 != nil {
			err = e2
			return
		}

		op = &fuseops.Rename2Op{
			Header:    hdr,
			OldParent: fuseops.InodeID(h.Nodeid),
			OldName:   oldName,
			NewParent: fuseops.InodeID(in.Newdir),
			NewName:   newName,
			Flags:     fuseops.RenameFlags(in.Flags),
		}

	case fusekernel.OpLink:
		in := (*fusekernel.LinkIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.LinkIn{})))
		if in == nil {
			err = fmt.Errorf("corrupt LINK message")
			return
		}

		name, e := inMsg.ConsumeCString()
		if e != nil {
			err = e
			return
		}

		op = &fuseops.CreateLinkOp{
			Header: hdr,
			Target: fuseops.InodeID(in.Oldnodeid),
			Parent: fuseops.InodeID(h.Nodeid),
			Name:   name,
		}

	case fusekernel.OpOpen:
		in := (*fusekernel.OpenIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.OpenIn{})))
		if in == nil {
			err = fmt.Errorf("corrupt OPEN message")
			return
		}

		op = &fuseops.OpenFileOp{
			Header: hdr,
			Inode:  fuseops.InodeID(h.Nodeid),
			Flags:  fuseops.OpenFlags(in.Flags),
		}

	case fusekernel.OpOpendir:
		in := (*fusekernel.OpenIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.OpenIn{})))
		if in == nil {
			err = fmt.Errorf("corrupt OPENDIR message")
			return
		}

		op = &fuseops.OpenDirOp{
			Header: hdr,
			Inode:  fuseops.InodeID(h.Nodeid),
			Flags:  fuseops.OpenFlags(in.Flags),
		}

	case fusekernel.OpRead:
		in := consumeReadIn(inMsg, protocol)
		if in == nil {
			err = fmt.Errorf("corrupt READ message")
			return
		}

		size := int64(in.Size)

		var dst []byte
		if !cfg.UseVectoredRead || cfg.AllocateReadBufferForVectoredRead {
			p := outMsg.GrowNoZero(int(size))
			if p == nil {
				err = fmt.Errorf("read size %d too large", size)
				return
			}
			dst = pointerToSlice(p, int(size))
		}

		op = &fuseops.ReadFileOp{
			Header: hdr,
			Inode:  fuseops.InodeID(h.Nodeid),
			Handle: fuseops.HandleID(in.Fh),
			Offset: int64(in.Offset),
			Size:   size,
			Dst:    dst,
		}

	case fusekernel.OpWrite:
		in := consumeWriteIn(inMsg, protocol)
		if in == nil {
			err = fmt.Errorf("corrupt WRITE message")
			return
		}

		data := inMsg.ConsumeBytes(uintptr(in.Size))
		if data == nil {
			err = fmt.Errorf("corrupt WRITE payload")
			return
		}

		op = &fuseops.WriteFileOp{
			Header: hdr,
			Inode:  fuseops.InodeID(h.Nodeid),
			Handle: fuseops.HandleID(in.Fh),
			Offset: int64(in.Offset),
			Data:   data,
		}

	case fusekernel.OpStatfs:
		op = &fuseops.StatFSOp{Header: hdr}

	case fusekernel.OpRelease:
		in := (*fusekernel.ReleaseIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.ReleaseIn{})))
		if in == nil {
			err = fmt.Errorf("corrupt RELEASE message")
			return
		}

		op = &fuseops.ReleaseFileHandleOp{
			Header: hdr,
			Handle: fuseops.HandleID(in.Fh),
		}

	case fusekernel.OpReleasedir:
		in := (*fusekernel.ReleaseIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.ReleaseIn{})))
		if in == nil {
			err = fmt.Errorf("corrupt RELEASEDIR message")
			return
		}

		op = &fuseops.ReleaseDirHandleOp{
			Header: hdr,
			Handle: fuseops.HandleID(in.Fh),
		}

	case fusekernel.OpFsync, fusekernel.OpFsyncdir:
		in := (*fusekernel.FsyncIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.FsyncIn{})))
		if in == nil {
			err = fmt.Errorf("corrupt FSYNC message")
			return
		}

		op = &fuseops.SyncFileOp{
			Header: hdr,
			Inode:  fuseops.InodeID(h.Nodeid),
			Handle: fuseops.HandleID(in.Fh),
		}

	case fusekernel.OpFlush:
		in := (*fusekernel.FlushIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.FlushIn{})))
		if in == nil {
			err = fmt.Errorf("corrupt FLUSH message")
			return
		}

		op = &fuseops.FlushFileOp{
			Header: hdr,
			Inode:  fuseops.InodeID(h.Nodeid),
			Handle: fuseops.HandleID(in.Fh),
		}

	case fusekernel.OpCreate:
		in := consumeCreateIn(inMsg, protocol)
		if in == nil {
			err = fmt.Errorf("corrupt CREATE message")
			return
		}

		name, e := inMsg.ConsumeCString()
		if e != nil {
			err = e
			return
		}

		op = &fuseops.CreateFileOp{
			Header: hdr,
			Parent: fuseops.InodeID(h.Nodeid),
			Name:   name,
			Mode:   convertFileMode(in.Mode),
			Flags:  fuseops.OpenFlags(in.Flags),
		}

	case fusekernel.OpForget:
		in := (*fusekernel.ForgetIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.ForgetIn{})))
		if in == nil {
			err = fmt.Errorf("corrupt FORGET message")
			return
		}

		op = &fuseops.ForgetInodeOp{
			Header: hdr,
			ID:     fuseops.InodeID(h.Nodeid),
		}

	case fusekernel.OpBatchForget:
		in := (*fusekernel.BatchForgetIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.BatchForgetIn{})))
		if in == nil {
			err = fmt.Errorf("corrupt BATCH_FORGET message")
			return
		}

		entries := make([]fuseops.BatchForgetEntry, 0, in.Count)
		for i := uint32(0); i < in.Count; i++ {
			one := (*fusekernel.ForgetOne)(inMsg.Consume(unsafe.Sizeof(fusekernel.ForgetOne{})))
			if one == nil {
				err = fmt.Errorf("corrupt BATCH_FORGET entry %d", i)
				return
			}

			entries = append(entries, fuseops.BatchForgetEntry{
				Inode: fuseops.InodeID(one.Nodeid),
				N:     one.Nlookup,
			})
		}

		op = &fuseops.BatchForgetOp{Header: hdr, Entries: entries}

	case fusekernel.OpReaddir, fusekernel.OpReaddirplus:
		in := consumeReadIn(inMsg, protocol)
		if in == nil {
			err = fmt.Errorf("corrupt READDIR message")
			return
		}

		size := int(in.Size)
		p := outMsg.GrowNoZero(size)
		if p == nil {
			err = fmt.Errorf("readdir size %d too large", size)
			return
		}

		op = &fuseops.ReadDirOp{
			Header: hdr,
			Inode:  fuseops.InodeID(h.Nodeid),
			Handle: fuseops.HandleID(in.Fh),
			Offset: fuseops.DirOffset(in.Offset),
			Dst:    pointerToSlice(p, size),
		}

	case fusekernel.OpGetxattr, fusekernel.OpListxattr:
		in := (*fusekernel.GetxattrIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.GetxattrIn{})))
		if in == nil {
			err = fmt.Errorf("corrupt GETXATTR/LISTXATTR message")
			return
		}

		var dst []byte
		if in.Size != 0 {
			p := outMsg.GrowNoZero(int(in.Size))
			if p == nil {
				err = fmt.Errorf("xattr size %d too large", in.Size)
				return
			}
			dst = pointerToSlice(p, int(in.Size))
		}

		if h.Opcode == fusekernel.OpGetxattr {
			name, e := inMsg.ConsumeCString()
			if e != nil {
				err = e
				return
			}

			op = &fuseops.GetXattrOp{Header: hdr, Inode: fuseops.InodeID(h.Nodeid), Name: name, Dst: dst}
		} else {
			op = &fuseops.ListXattrOp{Header: hdr, Inode: fuseops.InodeID(h.Nodeid), Dst: dst}
		}

	case fusekernel.OpSetxattr:
		// We never advertise InitSetxattrExt, so the kernel always sends the
		// compat-sized body.
		in := (*fusekernel.SetxattrIn)(inMsg.Consume(fusekernel.SetxattrInSize(protocol, false)))
		if in == nil {
			err = fmt.Errorf("corrupt SETXATTR message")
			return
		}

		name, e := inMsg.ConsumeCString()
		if e != nil {
			err = e
			return
		}

		value := inMsg.ConsumeBytes(uintptr(in.Size))
		if value == nil {
			err = fmt.Errorf("corrupt SETXATTR value")
			return
		}

		op = &fuseops.SetXattrOp{
			Header: hdr,
			Inode:  fuseops.InodeID(h.Nodeid),
			Name:   name,
			Value:  value,
			Flags:  in.Flags,
		}

	case fusekernel.OpRemovexattr:
		name, e := inMsg.ConsumeCString()
		if e != nil {
			err = e
			return
		}

		op = &fuseops.RemoveXattrOp{Header: hdr, Inode: fuseops.InodeID(h.Nodeid), Name: name}

	case fusekernel.OpAccess:
		in := (*fusekernel.AccessIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.AccessIn{})))
		if in == nil {
			err = fmt.Errorf("corrupt ACCESS message")
			return
		}

		op = &fuseops.AccessOp{Header: hdr, Inode: fuseops.InodeID(h.Nodeid), Mask: in.Mask}

	case fusekernel.OpGetlk:
		in := (*fusekernel.LkIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.LkIn{})))
		if in == nil {
			err = fmt.Errorf("corrupt GETLK message")
			return
		}

		op = &fuseops.GetLkOp{
			Header: hdr,
			Inode:  fuseops.InodeID(h.Nodeid),
			Handle: fuseops.HandleID(in.Fh),
			Owner:  fuseops.HandleOwner(in.Owner),
			Lock:   convertFileLock(in.Lk),
		}

	case fusekernel.OpSetlk, fusekernel.OpSetlkw:
		in := (*fusekernel.LkIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.LkIn{})))
		if in == nil {
			err = fmt.Errorf("corrupt SETLK/SETLKW message")
			return
		}

		if h.Opcode == fusekernel.OpSetlkw {
			op = &fuseops.SetLkwOp{
				Header: hdr,
				Inode:  fuseops.InodeID(h.Nodeid),
				Handle: fuseops.HandleID(in.Fh),
				Owner:  fuseops.HandleOwner(in.Owner),
				Lock:   convertFileLock(in.Lk),
			}
		} else {
			op = &fuseops.SetLkOp{
				Header: hdr,
				Inode:  fuseops.InodeID(h.Nodeid),
				Handle: fuseops.HandleID(in.Fh),
				Owner:  fuseops.HandleOwner(in.Owner),
				Lock:   convertFileLock(in.Lk),
			}
		}

	case fusekernel.OpFallocate:
		in := (*fusekernel.FallocateIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.FallocateIn{})))
		if in == nil {
			err = fmt.Errorf("corrupt FALLOCATE message")
			return
		}

		op = &fuseops.FallocateOp{
			Header: hdr,
			Inode:  fuseops.InodeID(h.Nodeid),
			Handle: fuseops.HandleID(in.Fh),
			Offset: in.Offset,
			Length: in.Length,
			Mode:   in.Mode,
		}

	case fusekernel.OpLseek:
		in := (*fusekernel.LseekIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.LseekIn{})))
		if in == nil {
			err = fmt.Errorf("corrupt LSEEK message")
			return
		}

		op = &fuseops.LSeekOp{
			Header: hdr,
			Inode:  fuseops.InodeID(h.Nodeid),
			Handle: fuseops.HandleID(in.Fh),
			Offset: int64(in.Offset),
			Whence: int(in.Whence),
		}

	case fusekernel.OpCopyFileRange:
		in := (*fusekernel.CopyFileRangeIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.CopyFileRangeIn{})))
		if in == nil {
			err = fmt.Errorf("corrupt COPY_FILE_RANGE message")
			return
		}

		op = &fuseops.CopyFileRangeOp{
			Header:    hdr,
			Inode:     fuseops.InodeID(h.Nodeid),
			Handle:    fuseops.HandleID(in.FhIn),
			Offset:    int64(in.OffIn),
			DstInode:  fuseops.InodeID(in.NodeidOut),
			DstHandle: fuseops.HandleID(in.FhOut),
			DstOffset: int64(in.OffOut),
			Length:    in.Len,
			Flags:     in.Flags,
		}

	case fusekernel.OpBmap:
		in := (*fusekernel.BmapIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.BmapIn{})))
		if in == nil {
			err = fmt.Errorf("corrupt BMAP message")
			return
		}

		op = &fuseops.BmapOp{
			Header:    hdr,
			Inode:     fuseops.InodeID(h.Nodeid),
			BlockSize: in.Blocksize,
			Block:     in.Block,
		}

	case fusekernel.OpPoll:
		in := (*fusekernel.PollIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.PollIn{})))
		if in == nil {
			err = fmt.Errorf("corrupt POLL message")
			return
		}

		op = &fuseops.PollOp{Header: hdr, Handle: fuseops.HandleID(in.Fh)}

	case fusekernel.OpIoctl:
		in := (*fusekernel.IoctlIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.IoctlIn{})))
		if in == nil {
			err = fmt.Errorf("corrupt IOCTL message")
			return
		}

		op = &fuseops.IoctlOp{
			Header: hdr,
			Handle: fuseops.HandleID(in.Fh),
			Cmd:    in.Cmd,
			Arg:    in.Arg,
			Input:  inMsg.ConsumeBytes(uintptr(in.InSize)),
			Output: make([]byte, in.OutSize),
		}

	case fusekernel.OpDestroy:
		op = &fuseops.DestroyOp{Header: hdr}

	default:
		op = &unknownOp{OpCode: uint32(h.Opcode), Inode: fuseops.InodeID(h.Nodeid)}
	}

	return
}

// kernelResponse builds and writes the reply for op into outMsg (or, for
// notifications and no-reply ops, reports noResponse so the caller skips the
// write). unique and opErr come from the original request and Reply's
// caller, respectively.
func (c *Connection) kernelResponse(
	outMsg *buffer.OutMessage,
	unique uint64,
	op interface{},
	opErr error) (noResponse bool) {
	h := outMsg.OutHeader()
	h.Unique = unique

	switch op.(type) {
	case *fuseops.ForgetInodeOp, *fuseops.BatchForgetOp, *fuseops.DestroyOp, *interruptOp:
		return true
	}

	if opErr != nil {
		// Discard any payload grown during decode (e.g. for reads): OS X
		// returns EINVAL for an over-long error reply.
		outMsg.ShrinkTo(buffer.OutMessageInitialSize)
		h.Error = -errnoForReply(opErr)
		h.Len = uint32(outMsg.Len())
		return false
	}

	if err := c.kernelResponseForOp(outMsg, op); err != nil {
		outMsg.ShrinkTo(buffer.OutMessageInitialSize)
		h.Error = -errnoForReply(err)
		h.Len = uint32(outMsg.Len())
		return false
	}

	h.Len = uint32(outMsg.Len())
	return false
}

// kernelResponseForOp appends op's success-path reply body to outMsg.
func (c *Connection) kernelResponseForOp(m *buffer.OutMessage, op interface{}) error {
	switch o := op.(type) {
	case *initOp:
		size := int(fusekernel.InitOutSize(o.Kernel.Minor))
		out := (*fusekernel.InitOut)(m.Grow(size))
		out.Major = o.Library.Major
		out.Minor = o.Library.Minor
		out.MaxReadahead = o.MaxReadahead
		out.Flags = uint32(o.Flags)
		out.Flags2 = uint32(o.Flags >> 32)
		out.MaxWrite = o.MaxWrite
		out.MaxPages = o.MaxPages

	case *fuseops.LookUpInodeOp:
		out := (*fusekernel.EntryOut)(m.Grow(int(fusekernel.EntryOutSize(c.protocol))))
		convertChildInodeEntry(&o.Entry, out)

	case *fuseops.GetInodeAttributesOp:
		out := (*fusekernel.AttrOut)(m.Grow(int(fusekernel.AttrOutSize(c.protocol))))
		out.AttrValid, out.AttrValidNsec = convertExpirationTime(o.AttributesExpiration)
		out.Attr = convertAttributes(o.Inode, o.Attributes)

	case *fuseops.SetInodeAttributesOp:
		out := (*fusekernel.AttrOut)(m.Grow(int(fusekernel.AttrOutSize(c.protocol))))
		out.AttrValid, out.AttrValidNsec = convertExpirationTime(o.AttributesExpiration)
		out.Attr = convertAttributes(o.Inode, o.Attributes)

	case *fuseops.MkDirOp:
		out := (*fusekernel.EntryOut)(m.Grow(int(fusekernel.EntryOutSize(c.protocol))))
		convertChildInodeEntry(&o.Entry, out)

	case *fuseops.CreateFileOp:
		eSize := int(fusekernel.EntryOutSize(c.protocol))
		e := (*fusekernel.EntryOut)(m.Grow(eSize))
		convertChildInodeEntry(&o.Entry, e)

		oo := (*fusekernel.OpenOut)(m.Grow(int(unsafe.Sizeof(fusekernel.OpenOut{}))))
		oo.Fh = uint64(o.Handle)

	case *fuseops.CreateSymlinkOp:
		out := (*fusekernel.EntryOut)(m.Grow(int(fusekernel.EntryOutSize(c.protocol))))
		convertChildInodeEntry(&o.Entry, out)

	case *fuseops.CreateLinkOp:
		out := (*fusekernel.EntryOut)(m.Grow(int(fusekernel.EntryOutSize(c.protocol))))
		convertChildInodeEntry(&o.Entry, out)

	case *fuseops.MkNodeOp:
		out := (*fusekernel.EntryOut)(m.Grow(int(fusekernel.EntryOutSize(c.protocol))))
		convertChildInodeEntry(&o.Entry, out)

	case *fuseops.ReadSymlinkOp:
		m.AppendString(o.Target)

	case *fuseops.RenameOp, *fuseops.Rename2Op, *fuseops.RmDirOp, *fuseops.UnlinkOp,
		*fuseops.SetXattrOp, *fuseops.RemoveXattrOp, *fuseops.FlushFileOp,
		*fuseops.SyncFileOp, *fuseops.AccessOp, *fuseops.ReleaseFileHandleOp,
		*fuseops.ReleaseDirHandleOp, *fuseops.SetLkOp, *fuseops.SetLkwOp,
		*fuseops.FallocateOp, *fuseops.DestroyOp:
		// No reply payload beyond the header.

	case *fuseops.OpenFileOp:
		out := (*fusekernel.OpenOut)(m.Grow(int(unsafe.Sizeof(fusekernel.OpenOut{}))))
		out.Fh = uint64(o.Handle)
		if o.KeepPageCache {
			out.OpenFlags |= fusekernel.OpenKeepCache
		}
		if o.UseDirectIO {
			out.OpenFlags |= fusekernel.OpenDirectIO
		}

	case *fuseops.OpenDirOp:
		out := (*fusekernel.OpenOut)(m.Grow(int(unsafe.Sizeof(fusekernel.OpenOut{}))))
		out.Fh = uint64(o.Handle)

	case *fuseops.ReadFileOp:
		if len(o.Dst) > 0 {
			m.ShrinkTo(uintptr(m.Len()) - uintptr(len(o.Dst)) + uintptr(o.BytesRead))
		}
		if c.cfg.UseVectoredRead && len(o.Data) > 0 {
			m.Sglist = o.Data
		}

	case *fuseops.ReadDirOp:
		m.ShrinkTo(uintptr(m.Len()) - uintptr(len(o.Dst)) + uintptr(o.BytesRead))

	case *fuseops.WriteFileOp:
		out := (*fusekernel.WriteOut)(m.Grow(int(unsafe.Sizeof(fusekernel.WriteOut{}))))
		out.Size = uint32(len(o.Data))

	case *fuseops.StatFSOp:
		out := (*fusekernel.StatfsOut)(m.Grow(int(fusekernel.StatfsOutSize(c.protocol))))
		out.Blocks = o.Blocks
		out.Bfree = o.BlocksFree
		out.Bavail = o.BlocksAvailable
		out.Files = o.Inodes
		out.Ffree = o.InodesFree
		out.Bsize = o.BlockSize
		out.Frsize = o.IoSize
		out.Namelen = 255

	case *fuseops.GetXattrOp:
		if len(o.Dst) == 0 {
			writeXattrSize(m, uint32(o.BytesRead))
		} else {
			m.ShrinkTo(uintptr(m.Len()) - uintptr(len(o.Dst)) + uintptr(o.BytesRead))
		}

	case *fuseops.ListXattrOp:
		if len(o.Dst) == 0 {
			writeXattrSize(m, uint32(o.BytesRead))
		} else {
			m.ShrinkTo(uintptr(m.Len()) - uintptr(len(o.Dst)) + uintptr(o.BytesRead))
		}

	case *fuseops.GetLkOp:
		out := (*fusekernel.LkOut)(m.Grow(int(unsafe.Sizeof(fusekernel.LkOut{}))))
		out.Lk = convertFileLockOut(o.OutLock)

	case *fuseops.BmapOp:
		out := (*fusekernel.BmapOut)(m.Grow(int(unsafe.Sizeof(fusekernel.BmapOut{}))))
		out.Block = o.PhysicalBlock

	case *fuseops.LSeekOp:
		out := (*fusekernel.LseekOut)(m.Grow(int(unsafe.Sizeof(fusekernel.LseekOut{}))))
		out.Offset = uint64(o.OffsetOut)

	case *fuseops.CopyFileRangeOp:
		out := (*fusekernel.WriteOut)(m.Grow(int(unsafe.Sizeof(fusekernel.WriteOut{}))))
		out.Size = uint32(o.BytesCopied)

	case *fuseops.PollOp:
		out := (*fusekernel.PollOut)(m.Grow(int(unsafe.Sizeof(fusekernel.PollOut{}))))
		out.Revents = o.REvents

	case *fuseops.IoctlOp:
		out := (*fusekernel.IoctlOut)(m.Grow(int(unsafe.Sizeof(fusekernel.IoctlOut{}))))
		out.Result = o.Result
		m.Append(o.Output)

	default:
		return fmt.Errorf("kernelResponseForOp: unhandled op type %T", op)
	}

	return nil
}

// writeXattrSize replies to a size-query GETXATTR/LISTXATTR (Size == 0 in
// the request) with a GetxattrOut carrying the true size of the value.
func writeXattrSize(m *buffer.OutMessage, size uint32) {
	out := (*fusekernel.GetxattrOut)(m.Grow(int(unsafe.Sizeof(fusekernel.GetxattrOut{}))))
	out.Size = size
}

// convertChildInodeEntry fills in a kernel EntryOut from a ChildInodeEntry.
func convertChildInodeEntry(e *fuseops.ChildInodeEntry, out *fusekernel.EntryOut) {
	out.Nodeid = uint64(e.Child)
	out.Generation = uint64(e.Generation)
	out.EntryValid, out.EntryValidNsec = convertExpirationTime(e.EntryExpiration)
	out.AttrValid, out.AttrValidNsec = convertExpirationTime(e.AttributesExpiration)
	out.Attr = convertAttributes(e.Child, e.Attributes)
}

// convertExpirationTime splits an absolute expiration time into the
// (seconds, nanoseconds) pair the kernel wants, per fuse_kernel.h's
// convention of validity *duration* counted from time of reply (cf.
// the libfuse client, which adds this to its own clock on receipt).
func convertExpirationTime(t time.Time) (secs uint64, nsecs uint32) {
	d := time.Until(t)
	if d < 0 {
		d = 0
	}

	secs = uint64(d / time.Second)
	nsecs = uint32(d % time.Second)
	return
}

// convertAttributes converts fuseops.InodeAttributes to the kernel's wire
// format, filling in the inode number from the separately-tracked ID.
func convertAttributes(inode fuseops.InodeID, in fuseops.InodeAttributes) (out fusekernel.Attr) {
	out.Ino = uint64(inode)
	out.Size = in.Size
	out.Blocks = (in.Size + 511) / 512
	out.Atime = uint64(in.Atime.Unix())
	out.AtimeNsec = uint32(in.Atime.Nanosecond())
	out.Mtime = uint64(in.Mtime.Unix())
	out.MtimeNsec = uint32(in.Mtime.Nanosecond())
	out.Ctime = uint64(in.Ctime.Unix())
	out.CtimeNsec = uint32(in.Ctime.Nanosecond())
	out.Mode = convertGoMode(in.Mode)
	out.Nlink = in.Nlink
	out.Uid = in.Uid
	out.Gid = in.Gid
	out.Rdev = in.Rdev

	return
}

// convertGoMode converts an os.FileMode to the raw mode_t the kernel wants.
func convertGoMode(mode os.FileMode) uint32 {
	var out uint32

	switch {
	case mode&os.ModeDir != 0:
		out |= syscallIFDIR
	case mode&os.ModeDevice != 0 && mode&os.ModeCharDevice != 0:
		out |= syscallIFCHR
	case mode&os.ModeDevice != 0:
		out |= syscallIFBLK
	case mode&os.ModeNamedPipe != 0:
		out |= syscallIFIFO
	case mode&os.ModeSymlink != 0:
		out |= syscallIFLNK
	case mode&os.ModeSocket != 0:
		out |= syscallIFSOCK
	default:
		out |= syscallIFREG
	}

	out |= uint32(mode.Perm())

	if mode&os.ModeSetuid != 0 {
		out |= syscallISUID
	}
	if mode&os.ModeSetgid != 0 {
		out |= syscallISGID
	}
	if mode&os.ModeSticky != 0 {
		out |= syscallISVTX
	}

	return out
}

// convertFileMode converts a raw mode_t from the kernel to an os.FileMode.
func convertFileMode(unixMode uint32) os.FileMode {
	mode := os.FileMode(unixMode & 0777)

	switch unixMode & syscallIFMT {
	case syscallIFDIR:
		mode |= os.ModeDir
	case syscallIFCHR:
		mode |= os.ModeDevice | os.ModeCharDevice
	case syscallIFBLK:
		mode |= os.ModeDevice
	case syscallIFIFO:
		mode |= os.ModeNamedPipe
	case syscallIFLNK:
		mode |= os.ModeSymlink
	case syscallIFSOCK:
		mode |= os.ModeSocket
	}

	if unixMode&syscallISUID != 0 {
		mode |= os.ModeSetuid
	}
	if unixMode&syscallISGID != 0 {
		mode |= os.ModeSetgid
	}
	if unixMode&syscallISVTX != 0 {
		mode |= os.ModeSticky
	}

	return mode
}

// The S_IF*/S_IS* bits, named independently of package syscall so this file
// builds identically on every supported GOOS.
const (
	syscallIFMT   = 0170000
	syscallIFSOCK = 0140000
	syscallIFLNK  = 0120000
	syscallIFREG  = 0100000
	syscallIFBLK  = 0060000
	syscallIFDIR  = 0040000
	syscallIFCHR  = 0020000
	syscallIFIFO  = 0010000
	syscallISUID  = 0004000
	syscallISGID  = 0002000
	syscallISVTX  = 0001000
)

// describeRequest returns a short human readable summary of an inbound op,
// for debug logging.
func describeRequest(op interface{}) string {
	if d, ok := op.(interface{ ShortDesc() string }); ok {
		return d.ShortDesc()
	}

	return fmt.Sprintf("%T", op)
}

// describeResponse returns a short human readable summary of a successful
// reply, for debug logging.
func describeResponse(op interface{}) string {
	switch o := op.(type) {
	case *fuseops.LookUpInodeOp:
		return o.Entry.Attributes.DebugString()
	case *fuseops.GetInodeAttributesOp:
		return o.Attributes.DebugString()
	case *fuseops.ReadFileOp:
		return fmt.Sprintf("%d bytes", o.BytesRead)
	case *fuseops.WriteFileOp:
		return fmt.Sprintf("%d bytes", len(o.Data))
	case *fuseops.ReadDirOp:
		return fmt.Sprintf("%d bytes", o.BytesRead)
	}

	return "OK"
}
