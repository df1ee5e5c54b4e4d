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

package fuseutil

import (
	"context"
	"flag"
	"io"
	"math/rand"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
)

var fRandomDelays = flag.Bool(
	"fuseutil.random_delays", false,
	"If set, randomly delay each op received, to help expose concurrency issues.")

// An interface with a method for most op types in the fuseops package. This
// can be used in conjunction with NewFileSystemServer to avoid writing a
// "dispatch loop" that switches on op types, instead receiving typed method
// calls directly. AccessOp, Rename2Op, GetLkOp, SetLkOp, SetLkwOp, LSeekOp,
// CopyFileRangeOp, BmapOp, PollOp and IoctlOp have no method; the server
// returned by NewFileSystemServer answers them with ENOSYS.
//
// Each method returns the error that should be reported to the kernel,
// exactly as though it were read from a Go standard library call: nil for
// success, or a syscall.Errno (or other error, which is reported as EIO) on
// failure. The dispatcher is responsible for sending the reply to the
// kernel; implementations must not call Connection.Reply themselves.
//
// See NotImplementedFileSystem for a convenient way to embed default
// implementations for methods you don't care about.
type FileSystem interface {
	LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error
	GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error
	SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) error
	ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) error
	BatchForget(ctx context.Context, op *fuseops.BatchForgetOp) error
	MkDir(ctx context.Context, op *fuseops.MkDirOp) error
	MkNode(ctx context.Context, op *fuseops.MkNodeOp) error
	CreateFile(ctx context.Context, op *fuseops.CreateFileOp) error
	CreateLink(ctx context.Context, op *fuseops.CreateLinkOp) error
	CreateSymlink(ctx context.Context, op *fuseops.CreateSymlinkOp) error
	Rename(ctx context.Context, op *fuseops.RenameOp) error
	RmDir(ctx context.Context, op *fuseops.RmDirOp) error
	Unlink(ctx context.Context, op *fuseops.UnlinkOp) error
	OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error
	ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error
	ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) error
	OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error
	ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error
	WriteFile(ctx context.Context, op *fuseops.WriteFileOp) error
	SyncFile(ctx context.Context, op *fuseops.SyncFileOp) error
	FlushFile(ctx context.Context, op *fuseops.FlushFileOp) error
	ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error
	ReadSymlink(ctx context.Context, op *fuseops.ReadSymlinkOp) error
	StatFS(ctx context.Context, op *fuseops.StatFSOp) error
	GetXattr(ctx context.Context, op *fuseops.GetXattrOp) error
	SetXattr(ctx context.Context, op *fuseops.SetXattrOp) error
	ListXattr(ctx context.Context, op *fuseops.ListXattrOp) error
	RemoveXattr(ctx context.Context, op *fuseops.RemoveXattrOp) error
	Fallocate(ctx context.Context, op *fuseops.FallocateOp) error
	Destroy(ctx context.Context, op *fuseops.DestroyOp) error
}

// Create a fuse.Server that handles ops by calling the associated FileSystem
// method and replying to the kernel with the resulting error. Unsupported
// ops are responded to directly with ENOSYS.
//
// Each call to a FileSystem method is made on its own goroutine, and is free
// to block.
//
// (It is safe to naively process ops concurrently because the kernel
// guarantees to serialize operations that the user expects to happen in order,
// cf. http://goo.gl/jnkHPO, fuse-devel thread "Fuse guarantees on concurrent
// requests").
func NewFileSystemServer(fs FileSystem) fuse.Server {
	return &fileSystemServer{fs: fs}
}

type fileSystemServer struct {
	fs FileSystem
}

func (s *fileSystemServer) ServeOps(c *fuse.Connection) {
	for {
		ctx, op, err := c.ReadOp()
		if err == io.EOF {
			break
		}

		if err != nil {
			panic(err)
		}

		go s.handleOp(c, ctx, op)
	}
}

func (s *fileSystemServer) handleOp(
	c *fuse.Connection,
	ctx context.Context,
	op interface{}) {
	// Delay if requested.
	if *fRandomDelays {
		const delayLimit = 100 * time.Microsecond
		delay := time.Duration(rand.Int63n(int64(delayLimit)))
		time.Sleep(delay)
	}

	// Dispatch to the appropriate method, sending the resulting error (or nil)
	// back to the kernel exactly once.
	var err error
	switch typed := op.(type) {
	default:
		err = fuse.ENOSYS

	case *fuseops.LookUpInodeOp:
		err = s.fs.LookUpInode(ctx, typed)

	case *fuseops.GetInodeAttributesOp:
		err = s.fs.GetInodeAttributes(ctx, typed)

	case *fuseops.SetInodeAttributesOp:
		err = s.fs.SetInodeAttributes(ctx, typed)

	case *fuseops.ForgetInodeOp:
		err = s.fs.ForgetInode(ctx, typed)

	case *fuseops.BatchForgetOp:
		err = s.fs.BatchForget(ctx, typed)

	case *fuseops.MkDirOp:
		err = s.fs.MkDir(ctx, typed)

	case *fuseops.MkNodeOp:
		err = s.fs.MkNode(ctx, typed)

	case *fuseops.CreateFileOp:
		err = s.fs.CreateFile(ctx, typed)

	case *fuseops.CreateLinkOp:
		err = s.fs.CreateLink(ctx, typed)

	case *fuseops.CreateSymlinkOp:
		err = s.fs.CreateSymlink(ctx, typed)

	case *fuseops.RenameOp:
		err = s.fs.Rename(ctx, typed)

	case *fuseops.RmDirOp:
		err = s.fs.RmDir(ctx, typed)

	case *fuseops.UnlinkOp:
		err = s.fs.Unlink(ctx, typed)

	case *fuseops.OpenDirOp:
		err = s.fs.OpenDir(ctx, typed)

	case *fuseops.ReadDirOp:
		err = s.fs.ReadDir(ctx, typed)

	case *fuseops.ReleaseDirHandleOp:
		err = s.fs.ReleaseDirHandle(ctx, typed)

	case *fuseops.OpenFileOp:
		err = s.fs.OpenFile(ctx, typed)

	case *fuseops.ReadFileOp:
		err = s.fs.ReadFile(ctx, typed)

	case *fuseops.WriteFileOp:
		err = s.fs.WriteFile(ctx, typed)

	case *fuseops.SyncFileOp:
		err = s.fs.SyncFile(ctx, typed)

	case *fuseops.FlushFileOp:
		err = s.fs.FlushFile(ctx, typed)

	case *fuseops.ReleaseFileHandleOp:
		err = s.fs.ReleaseFileHandle(ctx, typed)

	case *fuseops.ReadSymlinkOp:
		err = s.fs.ReadSymlink(ctx, typed)

	case *fuseops.StatFSOp:
		err = s.fs.StatFS(ctx, typed)

	case *fuseops.GetXattrOp:
		err = s.fs.GetXattr(ctx, typed)

	case *fuseops.SetXattrOp:
		err = s.fs.SetXattr(ctx, typed)

	case *fuseops.ListXattrOp:
		err = s.fs.ListXattr(ctx, typed)

	case *fuseops.RemoveXattrOp:
		err = s.fs.RemoveXattr(ctx, typed)

	case *fuseops.FallocateOp:
		err = s.fs.Fallocate(ctx, typed)

	case *fuseops.DestroyOp:
		err = s.fs.Destroy(ctx, typed)
	}

	if replyErr := c.Reply(ctx, err); replyErr != nil {
		// Nothing further to do; the connection is likely gone.
		return
	}
}
