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

import "syscall"

// Errors corresponding to kernel error numbers. These may be returned by
// FileSystem methods and will be translated into the appropriate errno on
// the wire; any other error value is translated to EIO.
const (
	EEXIST    = syscall.EEXIST
	EINVAL    = syscall.EINVAL
	EIO       = syscall.EIO
	ENOATTR   = syscall.ENODATA
	ENOENT    = syscall.ENOENT
	ENOSYS    = syscall.ENOSYS
	ENOTDIR   = syscall.ENOTDIR
	ENOTEMPTY = syscall.ENOTEMPTY
	ERANGE    = syscall.ERANGE
)

// maxWireErrno is the largest error number the Linux client will accept in
// a reply; anything outside [1, maxWireErrno) is clamped to it before being
// negated onto the wire.
const maxWireErrno = 512

// errnoForReply maps an error returned by a FileSystem method to the
// (positive, unnegated) errno that should be written into the kernel
// reply's OutHeader.Error field. Callers negate the result themselves.
//
// A non-Errno error value (the kernel has no way to interpret anything
// else) is treated as EIO before clamping.
func errnoForReply(err error) int32 {
	if err == nil {
		return 0
	}

	errno, ok := err.(syscall.Errno)
	n := int32(errno)
	if !ok {
		n = int32(syscall.EIO)
	}

	if n <= 0 || n >= maxWireErrno {
		n = maxWireErrno
	}

	return n
}
