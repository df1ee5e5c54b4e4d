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
	"context"
	"errors"
	"fmt"
	"log"
	"os"
)

// ErrExternallyManagedMountPoint is returned by Unmount when the mount point
// looks like one set up by something other than this package (e.g. a
// /dev/fd/N mountpoint created by a container runtime), a case in which the
// ordinary unmount helper is known to behave differently.
var ErrExternallyManagedMountPoint = errors.New("externally managed mount point")

// FuseImpl selects which macOS FUSE kernel implementation a mount should
// target. It has no effect on Linux or FreeBSD.
type FuseImpl int

const (
	// FUSEImplMacFUSE targets the macFUSE kernel extension (the historical
	// osxfuse), whose /dev/osxfuseN devices and mount_osxfusefs helper this
	// package already knows how to drive.
	FUSEImplMacFUSE FuseImpl = iota

	// FUSEImplFuseT targets fuse-t, a non-kernel-extension FUSE shim for
	// macOS whose writev to /dev/fuse is not atomic with respect to
	// concurrent writers; see fusekernel.IsPlatformFuseT.
	FUSEImplFuseT
)

// A type that knows how to serve ops read from a connection. Use
// fuseutil.NewFileSystemServer to obtain one from a fuseutil.FileSystem.
type Server interface {
	// Read and serve ops from the supplied connection until EOF.
	ServeOps(*Connection)
}

// A struct representing the status of a mount operation, with a method that
// waits for unmounting.
type MountedFileSystem struct {
	dir string

	conn *Connection

	// The result to return from Join. Not valid until the channel is closed.
	joinStatus          error
	joinStatusAvailable chan struct{}
}

// Return the directory on which the file system is mounted (or where we
// attempted to mount it.)
func (mfs *MountedFileSystem) Dir() string {
	return mfs.dir
}

// Block until a mounted file system has been unmounted. The return value will
// be non-nil if anything unexpected happened while serving. May be called
// multiple times.
func (mfs *MountedFileSystem) Join(ctx context.Context) error {
	select {
	case <-mfs.joinStatusAvailable:
		return mfs.joinStatus
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Optional configuration accepted by Mount.
type MountConfig struct {
	// A parent context for operation contexts handed to the file system. If
	// nil, context.Background() is used.
	OpContext context.Context

	// Mount options passed more or less verbatim to the kernel or to the
	// platform mount helper, as a set of bare flags or name=value pairs (e.g.
	// "allow_other", "max_read=131072").
	Options map[string]string

	// The name to report for the mounted file system, and its "subtype" (a
	// hint to userspace tools such as `df` and `mount` about what kind of file
	// system this is).
	FSName  string
	Subtype string

	// OS X only: the volume name to display in the Finder.
	VolumeName string

	// OS X only: which FUSE implementation to mount against. Zero value
	// selects the platform default (macFUSE).
	FuseImpl FuseImpl

	// Mount the file system read-only.
	ReadOnly bool

	// Disable the kernel's writeback caching of dirty pages, trading
	// performance for immediate visibility of writes.
	DisableWritebackCaching bool

	// Enable asynchronous reads, allowing the kernel to issue concurrent read
	// requests against the same file handle.
	EnableAsyncReads bool

	// Ask the kernel to cache symlink targets, if it supports doing so.
	EnableSymlinkCaching bool

	// Tell the kernel it need not call OpenFile before ReadFile/WriteFile, if
	// it supports doing so (Linux >= 3.16).
	EnableNoOpenSupport bool

	// Tell the kernel it need not call OpenDir before ReadDir, if it supports
	// doing so (Linux >= 5.1).
	EnableNoOpendirSupport bool

	// Allow the kernel to issue LookUpInode and ReadDir requests for a given
	// directory in parallel.
	EnableParallelDirOps bool

	// Ask the kernel to perform SetInodeAttributes truncation atomically with
	// the open(2) call that requested it, if it supports doing so.
	EnableAtomicTrunc bool

	// Enable the READDIRPLUS opcode, letting ReadDir responses carry full
	// child attributes and save a round of LookUpInode calls.
	EnableReaddirplus bool

	// In conjunction with EnableReaddirplus, let the kernel adaptively choose
	// between READDIR and READDIRPLUS.
	EnableAutoReaddirplus bool

	// OS X only: disable the "novncache" mount option, which is set by
	// default because osxfuse does not honor ChildInodeEntry.EntryExpiration
	// (cf. http://goo.gl/8yR0Ie) and caches potentially forever otherwise.
	EnableVnodeCaching bool

	// Ask the connection to use the vectored-read calling convention for
	// ReadFileOp: the file system may supply response data via
	// ReadFileOp.Data (scatter/gather buffers written with writev) instead
	// of copying into ReadFileOp.Dst.
	UseVectoredRead bool

	// When UseVectoredRead is set, also pre-allocate ReadFileOp.Dst as
	// before, so file systems that haven't been adapted to supply their own
	// buffers still work. File systems that always supply Data may disable
	// this to avoid the wasted allocation.
	AllocateReadBufferForVectoredRead bool

	// Debug and error logging destinations. If nil, debug logging is
	// controlled by the -fuse.debug flag and error logging goes to stderr.
	DebugLogger *log.Logger
	ErrorLogger *log.Logger

	// Supplies and reclaims the message buffers the connection reads
	// requests into and builds responses in. If nil, a *DefaultMessageProvider
	// is used.
	MessageProvider MessageProvider
}

func (c *MountConfig) opContext() context.Context {
	if c.OpContext != nil {
		return c.OpContext
	}
	return context.Background()
}

// Attempt to mount a file system on the given directory, using the supplied
// Server to serve connection requests. This function blocks until the
// kernel confirms the mount (or rejects it).
func Mount(
	dir string,
	server Server,
	config *MountConfig) (mfs *MountedFileSystem, err error) {
	if config == nil {
		config = &MountConfig{}
	}

	cfg := *config
	cfg.OpContext = cfg.opContext()

	debugLogger := cfg.DebugLogger
	if debugLogger == nil && *fEnableDebug {
		debugLogger = getLogger()
	}

	errorLogger := cfg.ErrorLogger
	if errorLogger == nil {
		errorLogger = log.New(os.Stderr, "fuse: ", log.LstdFlags)
	}

	mc := buildMountConfig(&cfg)

	ready := make(chan error, 1)
	dev, err := mount(dir, mc, ready)
	if err != nil {
		err = fmt.Errorf("mount: %v", err)
		return
	}

	conn, err := newConnection(cfg, debugLogger, errorLogger, dev)
	if err != nil {
		dev.Close()
		err = fmt.Errorf("newConnection: %v", err)
		return
	}

	// Give the platform adaptor a chance to report an asynchronous failure
	// (e.g. a helper process that exited non-zero) before we declare success.
	select {
	case err = <-ready:
		if err != nil {
			conn.close()
			err = fmt.Errorf("mount: %v", err)
			return
		}
	default:
	}

	mfs = &MountedFileSystem{
		dir:                 dir,
		conn:                conn,
		joinStatusAvailable: make(chan struct{}),
	}

	go func() {
		server.ServeOps(conn)
		mfs.joinStatus = conn.close()
		close(mfs.joinStatusAvailable)
	}()

	return
}
