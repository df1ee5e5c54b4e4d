// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

// Package memfs implements an in-memory file system, suitable for use as a
// fuse.Server for exercising the rest of this package against a real
// kernel.
package memfs

import (
	"context"
	"os"
	"sync"
	"syscall"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jacobsa/timeutil"
)

// CheckFileOpenFlagsFileName is the name under the root used by tests that
// want to create and read back a single file without depending on any
// other memFS behavior.
const CheckFileOpenFlagsFileName = "check_file_open_flags"

// NewMemFS creates a file system that stores data and metadata in memory,
// with new inodes owned by the given uid/gid and all times reported by
// clock.
func NewMemFS(uid, gid uint32, clock timeutil.Clock) fuse.Server {
	fs := &memFS{
		clock: clock,
		uid:   uid,
		gid:   gid,
	}

	root := newInode(newAttrs(os.ModeDir|0755, uid, gid, clock.Now()))
	fs.inodes = append(fs.inodes, nil, root) // index 0 unused; root is 1

	return fuseutil.NewFileSystemServer(fs)
}

// NewMemFSWithCallbacks is like NewMemFS, using a real-time clock, except
// that readCallback and writeCallback (if non-nil) are invoked synchronously
// whenever a ReadFile or WriteFile op, respectively, is handled.
func NewMemFSWithCallbacks(
	uid uint32,
	gid uint32,
	readCallback func(),
	writeCallback func()) fuse.Server {
	fs := &memFS{
		clock:         timeutil.RealClock(),
		uid:           uid,
		gid:           gid,
		readCallback:  readCallback,
		writeCallback: writeCallback,
	}

	root := newInode(newAttrs(os.ModeDir|0755, uid, gid, fs.clock.Now()))
	fs.inodes = append(fs.inodes, nil, root)

	return fuseutil.NewFileSystemServer(fs)
}

type memFS struct {
	fuseutil.NotImplementedFileSystem

	clock timeutil.Clock
	uid   uint32
	gid   uint32

	readCallback  func()
	writeCallback func()

	mu sync.Mutex

	// inodes[0] is always nil; inodes[fuseops.RootInodeID] is the root. A nil
	// entry past index RootInodeID marks a freed slot available for reuse.
	//
	// GUARDED_BY(mu)
	inodes []*inode

	// GUARDED_BY(mu)
	freeInodes []fuseops.InodeID
}

var _ fuseutil.FileSystem = (*memFS)(nil)

// allocateInode reserves a slot for a new inode, reusing a freed one when
// possible, and stores in at that slot.
func (fs *memFS) allocateInode(in *inode) fuseops.InodeID {
	if n := len(fs.freeInodes); n > 0 {
		id := fs.freeInodes[n-1]
		fs.freeInodes = fs.freeInodes[:n-1]
		fs.inodes[id] = in
		return id
	}

	id := fuseops.InodeID(len(fs.inodes))
	fs.inodes = append(fs.inodes, in)
	return id
}

func (fs *memFS) getInode(id fuseops.InodeID) (*inode, error) {
	if id == 0 || int(id) >= len(fs.inodes) || fs.inodes[id] == nil {
		return nil, fuse.ENOENT
	}
	return fs.inodes[id], nil
}

func (fs *memFS) entry(id fuseops.InodeID, in *inode) fuseops.ChildInodeEntry {
	return fuseops.ChildInodeEntry{
		Child:      id,
		Attributes: in.attrs,
	}
}

////////////////////////////////////////////////////////////////////////
// Lookups and attributes
////////////////////////////////////////////////////////////////////////

func (fs *memFS) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, err := fs.getInode(op.Parent)
	if err != nil {
		return err
	}

	i := parent.findChild(op.Name)
	if i < 0 {
		return fuse.ENOENT
	}

	child, err := fs.getInode(parent.entries[i].Inode)
	if err != nil {
		return err
	}

	op.Entry = fs.entry(parent.entries[i].Inode, child)
	return nil
}

func (fs *memFS) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, err := fs.getInode(op.Inode)
	if err != nil {
		return err
	}

	in.attrs.Size = uint64(in.Len())
	op.Attributes = in.attrs
	return nil
}

func (fs *memFS) SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, err := fs.getInode(op.Inode)
	if err != nil {
		return err
	}

	if op.Size != nil {
		in.Truncate(*op.Size)
	}
	if op.Mode != nil {
		in.attrs.Mode = *op.Mode
	}
	if op.Atime != nil {
		in.attrs.Atime = *op.Atime
	}
	if op.Mtime != nil {
		in.attrs.Mtime = *op.Mtime
	}

	in.attrs.Size = uint64(in.Len())
	op.Attributes = in.attrs
	return nil
}

func (fs *memFS) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, err := fs.getInode(op.ID)
	if err != nil {
		return err
	}

	if in.attrs.Nlink == 0 {
		fs.inodes[op.ID] = nil
		fs.freeInodes = append(fs.freeInodes, op.ID)
	}

	return nil
}

////////////////////////////////////////////////////////////////////////
// Directory mutation
////////////////////////////////////////////////////////////////////////

func (fs *memFS) mkChild(
	parentID fuseops.InodeID,
	name string,
	attrs fuseops.InodeAttributes) (fuseops.InodeID, *inode, error) {
	parent, err := fs.getInode(parentID)
	if err != nil {
		return 0, nil, err
	}

	if parent.findChild(name) >= 0 {
		return 0, nil, fuse.EEXIST
	}

	child := newInode(attrs)
	id := fs.allocateInode(child)
	parent.AddChild(id, name, direntType(attrs.Mode))
	parent.touch(fs.clock)

	return id, child, nil
}

func (fs *memFS) MkDir(ctx context.Context, op *fuseops.MkDirOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	attrs := newAttrs(os.ModeDir|op.Mode, fs.uid, fs.gid, fs.clock.Now())
	id, child, err := fs.mkChild(op.Parent, op.Name, attrs)
	if err != nil {
		return err
	}

	op.Entry = fs.entry(id, child)
	return nil
}

func (fs *memFS) MkNode(ctx context.Context, op *fuseops.MkNodeOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	attrs := newAttrs(op.Mode, fs.uid, fs.gid, fs.clock.Now())
	attrs.Rdev = op.Rdev
	id, child, err := fs.mkChild(op.Parent, op.Name, attrs)
	if err != nil {
		return err
	}

	op.Entry = fs.entry(id, child)
	return nil
}

func (fs *memFS) CreateFile(ctx context.Context, op *fuseops.CreateFileOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	attrs := newAttrs(op.Mode, fs.uid, fs.gid, fs.clock.Now())
	id, child, err := fs.mkChild(op.Parent, op.Name, attrs)
	if err != nil {
		return err
	}

	op.Entry = fs.entry(id, child)
	op.Handle = fuseops.HandleID(id)
	return nil
}

func (fs *memFS) CreateSymlink(ctx context.Context, op *fuseops.CreateSymlinkOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	attrs := newAttrs(os.ModeSymlink|0444, fs.uid, fs.gid, fs.clock.Now())
	id, child, err := fs.mkChild(op.Parent, op.Name, attrs)
	if err != nil {
		return err
	}
	child.target = op.Target

	op.Entry = fs.entry(id, child)
	return nil
}

func (fs *memFS) CreateLink(ctx context.Context, op *fuseops.CreateLinkOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, err := fs.getInode(op.Parent)
	if err != nil {
		return err
	}
	if parent.findChild(op.Name) >= 0 {
		return fuse.EEXIST
	}

	target, err := fs.getInode(op.Target)
	if err != nil {
		return err
	}

	target.attrs.Nlink++
	parent.AddChild(op.Target, op.Name, direntType(target.attrs.Mode))
	parent.touch(fs.clock)

	op.Entry = fs.entry(op.Target, target)
	return nil
}

func (fs *memFS) Rename(ctx context.Context, op *fuseops.RenameOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	oldParent, err := fs.getInode(op.OldParent)
	if err != nil {
		return err
	}
	newParent, err := fs.getInode(op.NewParent)
	if err != nil {
		return err
	}

	i := oldParent.findChild(op.OldName)
	if i < 0 {
		return fuse.ENOENT
	}
	childID := oldParent.entries[i].Inode
	childType := oldParent.entries[i].Type

	if j := newParent.findChild(op.NewName); j >= 0 {
		newParent.entries[j].Inode = 0
	}

	oldParent.entries[i].Inode = 0
	newParent.AddChild(childID, op.NewName, childType)

	now := fs.clock.Now()
	oldParent.attrs.Mtime = now
	newParent.attrs.Mtime = now
	return nil
}

func (fs *memFS) RmDir(ctx context.Context, op *fuseops.RmDirOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, err := fs.getInode(op.Parent)
	if err != nil {
		return err
	}

	i := parent.findChild(op.Name)
	if i < 0 {
		return fuse.ENOENT
	}

	child, err := fs.getInode(parent.entries[i].Inode)
	if err != nil {
		return err
	}
	if child.numChildren() > 0 {
		return fuse.ENOTEMPTY
	}

	parent.entries[i].Inode = 0
	child.attrs.Nlink = 0
	parent.touch(fs.clock)
	return nil
}

func (fs *memFS) Unlink(ctx context.Context, op *fuseops.UnlinkOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, err := fs.getInode(op.Parent)
	if err != nil {
		return err
	}

	id := parent.RemoveChild(op.Name)
	if id == 0 {
		return fuse.ENOENT
	}

	if child, err := fs.getInode(id); err == nil {
		child.attrs.Nlink--
	}
	parent.touch(fs.clock)
	return nil
}

////////////////////////////////////////////////////////////////////////
// Directory handles
////////////////////////////////////////////////////////////////////////

func (fs *memFS) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, err := fs.getInode(op.Inode)
	if err != nil {
		return err
	}
	if !in.isDir() {
		return fuse.ENOTDIR
	}

	op.Handle = fuseops.HandleID(op.Inode)
	return nil
}

func (fs *memFS) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, err := fs.getInode(op.Inode)
	if err != nil {
		return err
	}

	for i := int(op.Offset); i < len(in.entries); i++ {
		e := in.entries[i]
		if e.Inode == 0 {
			continue
		}

		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], e)
		if n == 0 {
			break
		}
		op.BytesRead += n
	}

	return nil
}

func (fs *memFS) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) error {
	return nil
}

////////////////////////////////////////////////////////////////////////
// File handles
////////////////////////////////////////////////////////////////////////

func (fs *memFS) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, err := fs.getInode(op.Inode)
	if err != nil {
		return err
	}
	if in.isDir() {
		return syscall.EISDIR
	}

	op.Handle = fuseops.HandleID(op.Inode)
	op.KeepPageCache = true
	return nil
}

func (fs *memFS) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	if fs.readCallback != nil {
		defer fs.readCallback()
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, err := fs.getInode(op.Inode)
	if err != nil {
		return err
	}

	if op.Offset >= int64(len(in.contents)) {
		return nil
	}

	op.BytesRead = copy(op.Dst, in.contents[op.Offset:])
	return nil
}

func (fs *memFS) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) error {
	if fs.writeCallback != nil {
		defer fs.writeCallback()
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, err := fs.getInode(op.Inode)
	if err != nil {
		return err
	}

	if _, err := in.WriteAt(op.Data, op.Offset); err != nil {
		return err
	}
	in.touch(fs.clock)
	return nil
}

func (fs *memFS) SyncFile(ctx context.Context, op *fuseops.SyncFileOp) error {
	return nil
}

func (fs *memFS) FlushFile(ctx context.Context, op *fuseops.FlushFileOp) error {
	return nil
}

func (fs *memFS) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error {
	return nil
}

func (fs *memFS) ReadSymlink(ctx context.Context, op *fuseops.ReadSymlinkOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, err := fs.getInode(op.Inode)
	if err != nil {
		return err
	}
	if !in.isSymlink() {
		return syscall.EINVAL
	}

	op.Target = in.target
	return nil
}

func (fs *memFS) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	return nil
}

func (fs *memFS) Destroy(ctx context.Context, op *fuseops.DestroyOp) error {
	return nil
}
