// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

package forgetfs

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
)

const (
	rootInode = fuseops.RootInodeID
	fooInode  = rootInode + 1
)

// Create a file system whose sole contents are a file named "foo".
//
// The file "foo" may be opened for reading and/or writing, but reads and
// writes aren't supported. Additionally, a directory may be created anew
// (under any name, in any directory) an arbitrary number of times, but it will
// never exist in lookups by name.
//
// The file system maintains reference counts for the inodes involved. It will
// panic if a reference count becomes negative or if an inode ID is re-used
// after we expect it to be dead. Its Check method may be used to check that
// there are no inodes with non-zero reference counts remaining, after
// unmounting.
func NewFileSystem() (fs *ForgetFS, err error) {
	impl := &forgetFS{}
	impl.refCounts = map[fuseops.InodeID]int{
		rootInode: 1,
		fooInode:  0,
	}
	impl.nextBar = fooInode + 1

	fs = &ForgetFS{
		Server: fuseutil.NewFileSystemServer(impl),
		impl:   impl,
	}
	return
}

// ForgetFS wraps the fuse.Server implementing the behavior documented on
// NewFileSystem, exposing Check for use after unmounting.
type ForgetFS struct {
	fuse.Server
	impl *forgetFS
}

// Panic if there are any inodes that have a non-zero reference count. For use
// after unmounting.
func (fs *ForgetFS) Check() {
	fs.impl.mu.Lock()
	defer fs.impl.mu.Unlock()

	for id, n := range fs.impl.refCounts {
		// The root inode keeps the one reference it starts with.
		if id == rootInode {
			n--
		}
		if n != 0 {
			panic(fmt.Sprintf("inode %v still has reference count %d", id, n))
		}
	}
}

type forgetFS struct {
	fuseutil.NotImplementedFileSystem

	mu sync.Mutex

	// GUARDED_BY(mu)
	refCounts map[fuseops.InodeID]int

	// GUARDED_BY(mu)
	nextBar fuseops.InodeID
}

// ref increments the reference count for id, which must already be known to
// the file system.
//
// LOCKS_REQUIRED(fs.mu)
func (fs *forgetFS) ref(id fuseops.InodeID) {
	if _, ok := fs.refCounts[id]; !ok {
		panic(fmt.Sprintf("unknown inode: %v", id))
	}
	fs.refCounts[id]++
}

func (fs *forgetFS) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if op.Parent != rootInode || op.Name != "foo" {
		return fuse.ENOENT
	}

	fs.ref(fooInode)
	op.Entry = fuseops.ChildInodeEntry{
		Child: fooInode,
		Attributes: fuseops.InodeAttributes{
			Nlink: 1,
			Mode:  0644,
		},
	}
	return nil
}

func (fs *forgetFS) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.refCounts[op.Inode]; !ok {
		return fuse.ENOENT
	}

	if op.Inode == rootInode {
		op.Attributes = fuseops.InodeAttributes{Nlink: 1, Mode: os.ModeDir | 0755}
	} else {
		op.Attributes = fuseops.InodeAttributes{Nlink: 1, Mode: 0644}
	}
	return nil
}

// MkDir allocates a new "bar" inode on every call, distinct from any earlier
// one, but never registers it under a name a later LookUpInode will find.
func (fs *forgetFS) MkDir(ctx context.Context, op *fuseops.MkDirOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	id := fs.nextBar
	fs.nextBar++

	if _, ok := fs.refCounts[id]; ok {
		panic(fmt.Sprintf("inode ID reused: %v", id))
	}
	fs.refCounts[id] = 1

	op.Entry = fuseops.ChildInodeEntry{
		Child: id,
		Attributes: fuseops.InodeAttributes{
			Nlink: 1,
			Mode:  os.ModeDir | 0755,
		},
	}
	return nil
}

func (fs *forgetFS) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	return nil
}

func (fs *forgetFS) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, ok := fs.refCounts[op.ID]
	if !ok {
		panic(fmt.Sprintf("unknown inode: %v", op.ID))
	}

	n--
	if n < 0 {
		panic(fmt.Sprintf("negative reference count for inode %v", op.ID))
	}
	fs.refCounts[op.ID] = n

	return nil
}
