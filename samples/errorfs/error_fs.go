// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

package errorfs

import (
	"context"
	"os"
	"reflect"
	"sync"
	"syscall"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
)

const FooContents = "xxxx"

const (
	rootInode = fuseops.RootInodeID
	fooInode  = rootInode + 1
)

// A file system whose sole contents are a file named "foo" containing the
// string defined by FooContents.
//
// The file system can be configured to returned canned errors for particular
// operations using the method SetError.
type FS interface {
	fuseutil.FileSystem

	// Cause the file system to return the supplied error for all future
	// operations matching the supplied type.
	SetError(t reflect.Type, err syscall.Errno)
}

func New() (fs FS, err error) {
	now := time.Now()
	ffs := &errorFS{
		errors: make(map[reflect.Type]syscall.Errno),
		rootAttrs: fuseops.InodeAttributes{
			Mode:  os.ModeDir | 0755,
			Mtime: now,
			Ctime: now,
		},
		fooAttrs: fuseops.InodeAttributes{
			Mode:  0644,
			Size:  uint64(len(FooContents)),
			Mtime: now,
			Ctime: now,
		},
	}

	fs = ffs
	return
}

type errorFS struct {
	fuseutil.NotImplementedFileSystem

	mu     sync.Mutex
	errors map[reflect.Type]syscall.Errno // GUARDED_BY(mu)

	rootAttrs fuseops.InodeAttributes
	fooAttrs  fuseops.InodeAttributes
}

// errorForOp returns the canned error configured via SetError for ops of
// op's dynamic type, if any.
func (fs *errorFS) errorForOp(op interface{}) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if errno, ok := fs.errors[reflect.TypeOf(op)]; ok {
		return errno
	}
	return nil
}

func (fs *errorFS) SetError(t reflect.Type, err syscall.Errno) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.errors[t] = err
}

func (fs *errorFS) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	if err := fs.errorForOp(op); err != nil {
		return err
	}

	if op.Parent != rootInode || op.Name != "foo" {
		return syscall.ENOENT
	}

	op.Entry = fuseops.ChildInodeEntry{
		Child:      fooInode,
		Attributes: fs.fooAttrs,
	}
	return nil
}

func (fs *errorFS) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	if err := fs.errorForOp(op); err != nil {
		return err
	}

	switch op.Inode {
	case rootInode:
		op.Attributes = fs.rootAttrs
	case fooInode:
		op.Attributes = fs.fooAttrs
	default:
		return syscall.ENOENT
	}

	return nil
}

func (fs *errorFS) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	return fs.errorForOp(op)
}

func (fs *errorFS) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	if err := fs.errorForOp(op); err != nil {
		return err
	}

	if op.Offset >= int64(len(FooContents)) {
		return nil
	}

	op.BytesRead = copy(op.Dst, FooContents[op.Offset:])
	return nil
}

func (fs *errorFS) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	return fs.errorForOp(op)
}

func (fs *errorFS) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	if err := fs.errorForOp(op); err != nil {
		return err
	}

	if op.Offset > 0 {
		return nil
	}

	n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], fuseops.Dirent{
		Offset: 1,
		Inode:  fooInode,
		Name:   "foo",
		Type:   fuseops.DT_File,
	})
	op.BytesRead += n
	return nil
}
