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

// Package fusekernel defines the on-the-wire layout of the FUSE kernel
// protocol: opcodes, flags, and the fixed-size structs exchanged with
// /dev/fuse. It is a Go transliteration of the kernel's fuse_kernel.h,
// extended with the handful of compat-sized variants the protocol has
// accumulated as it grew fields over time.
//
// Values in this package are laid out to match the C structs byte for byte
// on the host architecture; nothing here is portable across endianness or
// word size, which is fine because /dev/fuse is a local, same-host
// transport.
package fusekernel

import "unsafe"

// Protocol is a (major, minor) FUSE protocol version pair.
type Protocol struct {
	Major uint32
	Minor uint32
}

// LT returns whether p is strictly older than other.
func (p Protocol) LT(other Protocol) bool {
	return p.Major < other.Major ||
		(p.Major == other.Major && p.Minor < other.Minor)
}

// GE returns whether p is at least as new as other.
func (p Protocol) GE(other Protocol) bool {
	return !p.LT(other)
}

func (p Protocol) String() string {
	return itoa(int(p.Major)) + "." + itoa(int(p.Minor))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Protocol version bounds that this package understands how to speak.
const (
	ProtoVersionMinMajor = 7
	ProtoVersionMinMinor = 8

	ProtoVersionMaxMajor = 7
	ProtoVersionMaxMinor = 38
)

// Root inode number, fixed by the protocol.
const RootID = 1

// FUSE_MIN_READ_BUFFER: the kernel refuses a read of /dev/fuse into a buffer
// smaller than this, so readers must size their buffer at least this large.
const MinReadBuffer = 8192

// FUSE_IOCTL_MAX_IOV: maximum number of iovecs the kernel will describe in a
// single IOCTL request/reply.
const IoctlMaxIov = 256

// Opcode identifies the kind of request carried by an InHeader.
type Opcode uint32

const (
	OpLookup      Opcode = 1
	OpForget      Opcode = 2 // No reply.
	OpGetattr     Opcode = 3
	OpSetattr     Opcode = 4
	OpReadlink    Opcode = 5
	OpSymlink     Opcode = 6
	OpMknod       Opcode = 8
	OpMkdir       Opcode = 9
	OpUnlink      Opcode = 10
	OpRmdir       Opcode = 11
	OpRename      Opcode = 12
	OpLink        Opcode = 13
	OpOpen        Opcode = 14
	OpRead        Opcode = 15
	OpWrite       Opcode = 16
	OpStatfs      Opcode = 17
	OpRelease     Opcode = 18
	OpFsync       Opcode = 20
	OpSetxattr    Opcode = 21
	OpGetxattr    Opcode = 22
	OpListxattr   Opcode = 23
	OpRemovexattr Opcode = 24
	OpFlush       Opcode = 25
	OpInit        Opcode = 26
	OpOpendir     Opcode = 27
	OpReaddir     Opcode = 28
	OpReleasedir  Opcode = 29
	OpFsyncdir    Opcode = 30
	OpGetlk       Opcode = 31
	OpSetlk       Opcode = 32
	OpSetlkw      Opcode = 33
	OpAccess      Opcode = 34
	OpCreate      Opcode = 35
	OpInterrupt   Opcode = 36
	OpBmap        Opcode = 37
	OpDestroy     Opcode = 38
	OpIoctl       Opcode = 39
	OpPoll        Opcode = 40
	OpNotifyReply Opcode = 41
	OpBatchForget Opcode = 42
	OpFallocate   Opcode = 43
	OpReaddirplus Opcode = 44
	OpRename2     Opcode = 45
	OpLseek       Opcode = 46
	OpCopyFileRange Opcode = 47

	// CUSE-only opcodes, kept for completeness of the shared opcode space.
	OpCuseInit Opcode = 4096
)

func (o Opcode) String() string {
	if s, ok := opcodeNames[o]; ok {
		return s
	}
	return "OP_" + itoa(int(o))
}

var opcodeNames = map[Opcode]string{
	OpLookup:        "LOOKUP",
	OpForget:        "FORGET",
	OpGetattr:       "GETATTR",
	OpSetattr:       "SETATTR",
	OpReadlink:      "READLINK",
	OpSymlink:       "SYMLINK",
	OpMknod:         "MKNOD",
	OpMkdir:         "MKDIR",
	OpUnlink:        "UNLINK",
	OpRmdir:         "RMDIR",
	OpRename:        "RENAME",
	OpLink:          "LINK",
	OpOpen:          "OPEN",
	OpRead:          "READ",
	OpWrite:         "WRITE",
	OpStatfs:        "STATFS",
	OpRelease:       "RELEASE",
	OpFsync:         "FSYNC",
	OpSetxattr:      "SETXATTR",
	OpGetxattr:      "GETXATTR",
	OpListxattr:     "LISTXATTR",
	OpRemovexattr:   "REMOVEXATTR",
	OpFlush:         "FLUSH",
	OpInit:          "INIT",
	OpOpendir:       "OPENDIR",
	OpReaddir:       "READDIR",
	OpReleasedir:    "RELEASEDIR",
	OpFsyncdir:      "FSYNCDIR",
	OpGetlk:         "GETLK",
	OpSetlk:         "SETLK",
	OpSetlkw:        "SETLKW",
	OpAccess:        "ACCESS",
	OpCreate:        "CREATE",
	OpInterrupt:     "INTERRUPT",
	OpBmap:          "BMAP",
	OpDestroy:       "DESTROY",
	OpIoctl:         "IOCTL",
	OpPoll:          "POLL",
	OpNotifyReply:   "NOTIFY_REPLY",
	OpBatchForget:   "BATCH_FORGET",
	OpFallocate:     "FALLOCATE",
	OpReaddirplus:   "READDIRPLUS",
	OpRename2:       "RENAME2",
	OpLseek:         "LSEEK",
	OpCopyFileRange: "COPY_FILE_RANGE",
}

// NotifyCode identifies the kind of an unsolicited server->kernel message
// sent with request ID zero.
type NotifyCode int32

const (
	NotifyCodePoll        NotifyCode = 1
	NotifyCodeInvalInode  NotifyCode = 2
	NotifyCodeInvalEntry  NotifyCode = 3
	NotifyCodeStore       NotifyCode = 4
	NotifyCodeRetrieve    NotifyCode = 5
	NotifyCodeDelete      NotifyCode = 6
)

// InitFlags are capability bits negotiated in the INIT handshake.
type InitFlags uint64

const (
	InitAsyncRead        InitFlags = 1 << 0
	InitPosixLocks       InitFlags = 1 << 1
	InitFileOps          InitFlags = 1 << 2
	InitAtomicOTrunc     InitFlags = 1 << 3
	InitExportSupport    InitFlags = 1 << 4
	InitBigWrites        InitFlags = 1 << 5
	InitDontMask         InitFlags = 1 << 6
	InitSpliceWrite       InitFlags = 1 << 7
	InitSpliceMove        InitFlags = 1 << 8
	InitSpliceRead        InitFlags = 1 << 9
	InitFlockLocks        InitFlags = 1 << 10
	InitHasIoctlDir       InitFlags = 1 << 11
	InitAutoInvalData     InitFlags = 1 << 12
	InitDoReaddirplus     InitFlags = 1 << 13
	InitReaddirplusAuto   InitFlags = 1 << 14
	InitAsyncDIO          InitFlags = 1 << 15
	InitWritebackCache    InitFlags = 1 << 16
	InitNoOpenSupport     InitFlags = 1 << 17
	InitParallelDirOps    InitFlags = 1 << 18
	InitHandleKillpriv    InitFlags = 1 << 19
	InitPosixACL          InitFlags = 1 << 20
	InitAbortError        InitFlags = 1 << 21
	InitMaxPages          InitFlags = 1 << 22
	InitCacheSymlinks     InitFlags = 1 << 23
	InitNoOpendirSupport  InitFlags = 1 << 24
	InitExplicitInvalData InitFlags = 1 << 25
	InitMapAlignment      InitFlags = 1 << 26
	InitSubmounts         InitFlags = 1 << 27
	InitHandleKillprivV2  InitFlags = 1 << 28
	InitSetxattrExt       InitFlags = 1 << 29
	InitInitExt           InitFlags = 1 << 30
	InitAtomicTrunc       InitFlags = 1 << 31
)

// ReleaseFlags are bits set on ReleaseIn.ReleaseFlags.
type ReleaseFlags uint32

const (
	ReleaseFlush       ReleaseFlags = 1 << 0
	ReleaseFlockUnlock ReleaseFlags = 1 << 1
)

// WriteFlags are bits set on WriteIn.WriteFlags.
type WriteFlags uint32

const (
	WriteCache     WriteFlags = 1 << 0
	WriteLockOwner WriteFlags = 1 << 1
	WriteKillPriv  WriteFlags = 1 << 2
)

// ReadFlags are bits set on ReadIn.ReadFlags.
type ReadFlags uint32

const ReadLockOwner ReadFlags = 1 << 1

// GetattrFlags are bits set on GetattrIn.GetattrFlags.
type GetattrFlags uint32

const GetattrFh GetattrFlags = 1 << 0

// FsyncFlags are bits set on FsyncIn.FsyncFlags.
type FsyncFlags uint32

const FsyncFdatasync FsyncFlags = 1 << 0

// SetattrValid is a bitmask of which fields of SetattrIn are valid.
type SetattrValid uint32

const (
	SetattrMode      SetattrValid = 1 << 0
	SetattrUid       SetattrValid = 1 << 1
	SetattrGid       SetattrValid = 1 << 2
	SetattrSize      SetattrValid = 1 << 3
	SetattrAtime     SetattrValid = 1 << 4
	SetattrMtime     SetattrValid = 1 << 5
	SetattrHandle    SetattrValid = 1 << 6
	SetattrAtimeNow  SetattrValid = 1 << 7
	SetattrMtimeNow  SetattrValid = 1 << 8
	SetattrLockOwner SetattrValid = 1 << 9
	SetattrCtime     SetattrValid = 1 << 10
)

// RenameFlags are bits set on a RENAME2 request.
type RenameFlags uint32

const (
	RenameNoReplace RenameFlags = 1 << 0
	RenameExchange  RenameFlags = 1 << 1
	RenameWhiteout  RenameFlags = 1 << 2
)

// OpenFlags mirror the O_* flags passed through OpenIn.Flags/CreateIn.Flags,
// using the values the Linux kernel itself uses (which match syscall.O_*).
type OpenFlags uint32

// OpenResponseFlags are bits the file system may set on OpenOut.OpenFlags.
type OpenResponseFlags uint32

const (
	OpenDirectIO  OpenResponseFlags = 1 << 0
	OpenKeepCache OpenResponseFlags = 1 << 1
	OpenNonSeekable OpenResponseFlags = 1 << 2
	OpenCacheDir  OpenResponseFlags = 1 << 3
	OpenStream    OpenResponseFlags = 1 << 4
)

// IsPlatformFuseT reports whether this build is talking to the macOS fuse-t
// kernel shim, which (unlike a real kernel) does not make writev to
// /dev/fuse atomic with respect to concurrent writers.
var IsPlatformFuseT bool

// ---------------------------------------------------------------------------
// Wire structs
// ---------------------------------------------------------------------------

// InHeader precedes every request sent by the kernel.
type InHeader struct {
	Len     uint32
	Opcode  Opcode
	Unique  uint64
	Nodeid  uint64
	Uid     uint32
	Gid     uint32
	Pid     uint32
	_       uint32
}

// OutHeader precedes every reply sent to the kernel.
type OutHeader struct {
	Len    uint32
	Error  int32
	Unique uint64
}

const OutHeaderSize = unsafe.Sizeof(OutHeader{})

// InitIn is the body of an INIT request.
type InitIn struct {
	Major        uint32
	Minor        uint32
	MaxReadahead uint32
	Flags        uint32
	Flags2       uint32
	Unused       [11]uint32
}

// InitOut is the body of an INIT reply. Older kernels only read a prefix of
// this struct; see CompatInitOutSize / Compat22InitOutSize.
type InitOut struct {
	Major               uint32
	Minor               uint32
	MaxReadahead        uint32
	Flags               uint32
	MaxBackground       uint16
	CongestionThreshold uint16
	MaxWrite            uint32
	TimeGran            uint32
	MaxPages            uint16
	MapAlignment        uint16
	Flags2              uint32
	MaxStackDepth       uint32
	Unused              [6]uint32
}

// Compat sizes: the number of leading bytes of the "full" struct that older
// kernels understand. A reply must never exceed what the negotiated
// protocol version is willing to read, so encoders truncate to these sizes
// when talking to an old kernel.
const (
	CompatInitOutSize   = 8
	Compat22InitOutSize = 24
)

// EntryOut is the reply body for LOOKUP/MKNOD/MKDIR/SYMLINK/LINK.
type EntryOut struct {
	Nodeid         uint64
	Generation     uint64
	EntryValid     uint64
	AttrValid      uint64
	EntryValidNsec uint32
	AttrValidNsec  uint32
	Attr           Attr
}

const CompatEntryOutSize = unsafe.Offsetof(EntryOut{}.Attr) + compatAttrSize

// Attr is the kernel's inode attribute struct, embedded in EntryOut/AttrOut.
type Attr struct {
	Ino       uint64
	Size      uint64
	Blocks    uint64
	Atime     uint64
	Mtime     uint64
	Ctime     uint64
	AtimeNsec uint32
	MtimeNsec uint32
	CtimeNsec uint32
	Mode      uint32
	Nlink     uint32
	Uid       uint32
	Gid       uint32
	Rdev      uint32
	Blksize   uint32
	Flags     uint32
}

const compatAttrSize = unsafe.Offsetof(Attr{}.Blksize)

// AttrOut is the reply body for GETATTR/SETATTR.
type AttrOut struct {
	AttrValid     uint64
	AttrValidNsec uint32
	Dummy         uint32
	Attr          Attr
}

const CompatAttrOutSize = unsafe.Offsetof(AttrOut{}.Attr) + compatAttrSize

// GetattrIn is the request body for GETATTR.
type GetattrIn struct {
	GetattrFlags GetattrFlags
	_            uint32
	Fh           uint64
}

// MknodIn is the request body for MKNOD. The name follows as a NUL
// terminated string.
type MknodIn struct {
	Mode    uint32
	Rdev    uint32
	Umask   uint32
	_       uint32
}

const CompatMknodInSize = unsafe.Offsetof(MknodIn{}.Umask)

// MkdirIn is the request body for MKDIR. The name follows as a NUL
// terminated string.
type MkdirIn struct {
	Mode  uint32
	Umask uint32
}

const CompatMkdirInSize = unsafe.Offsetof(MkdirIn{}.Umask)

// RenameIn is the request body for RENAME. Old-name and new-name follow as
// two consecutive NUL terminated strings.
type RenameIn struct {
	Newdir uint64
}

// Rename2In is the request body for RENAME2.
type Rename2In struct {
	Newdir  uint64
	Flags   RenameFlags
	_       uint32
}

// LinkIn is the request body for LINK.
type LinkIn struct {
	Oldnodeid uint64
}

// SetattrIn is the request body for SETATTR.
type SetattrIn struct {
	Valid     SetattrValid
	_         uint32
	Fh        uint64
	Size      uint64
	LockOwner uint64
	Atime     uint64
	Mtime     uint64
	Ctime     uint64
	AtimeNsec uint32
	MtimeNsec uint32
	CtimeNsec uint32
	Mode      uint32
	_         uint32
	Uid       uint32
	Gid       uint32
	_         uint32
}

// OpenIn is the request body for OPEN/OPENDIR.
type OpenIn struct {
	Flags  uint32
	Unused uint32
}

// OpenOut is the reply body for OPEN/OPENDIR/CREATE.
type OpenOut struct {
	Fh        uint64
	OpenFlags OpenResponseFlags
	_         uint32
}

// CreateIn is the request body for CREATE. The name follows as a NUL
// terminated string.
type CreateIn struct {
	Flags uint32
	Mode  uint32
	Umask uint32
	_     uint32
}

// ReleaseIn is the request body for RELEASE/RELEASEDIR.
type ReleaseIn struct {
	Fh           uint64
	Flags        uint32
	ReleaseFlags ReleaseFlags
	LockOwner    uint64
}

// FlushIn is the request body for FLUSH.
type FlushIn struct {
	Fh        uint64
	Unused    uint32
	_         uint32
	LockOwner uint64
}

// ReadIn is the request body for READ/READDIR/READDIRPLUS.
type ReadIn struct {
	Fh        uint64
	Offset    uint64
	Size      uint32
	ReadFlags ReadFlags
	LockOwner uint64
	Flags     uint32
	_         uint32
}

const CompatReadInSize = unsafe.Offsetof(ReadIn{}.LockOwner)

// WriteIn is the request body for WRITE. Data follows immediately.
type WriteIn struct {
	Fh         uint64
	Offset     uint64
	Size       uint32
	WriteFlags WriteFlags
	LockOwner  uint64
	Flags      uint32
	_          uint32
}

const CompatWriteInSize = unsafe.Offsetof(WriteIn{}.LockOwner)

// WriteOut is the reply body for WRITE.
type WriteOut struct {
	Size uint32
	_    uint32
}

// FsyncIn is the request body for FSYNC/FSYNCDIR.
type FsyncIn struct {
	Fh         uint64
	FsyncFlags FsyncFlags
	_          uint32
}

// FileLock describes a POSIX lock, used by GETLK/SETLK/SETLKW.
type FileLock struct {
	Start uint64
	End   uint64
	Type  uint32
	Pid   uint32
}

type LkIn struct {
	Fh    uint64
	Owner uint64
	Lk    FileLock
	LkFlags uint32
	_       uint32
}

type LkOut struct {
	Lk FileLock
}

// AccessIn is the request body for ACCESS.
type AccessIn struct {
	Mask uint32
	_    uint32
}

// StatfsOut is the reply body for STATFS.
type StatfsOut struct {
	Blocks  uint64
	Bfree   uint64
	Bavail  uint64
	Files   uint64
	Ffree   uint64
	Bsize   uint32
	Namelen uint32
	Frsize  uint32
	_       uint32
	Unused  [6]uint32
}

const CompatStatfsSize = unsafe.Offsetof(StatfsOut{}.Bsize)

// SetxattrIn is the request body for SETXATTR. Name and value follow.
type SetxattrIn struct {
	Size  uint32
	Flags uint32
	// SetxattrExt fields, present only when InitSetxattrExt was negotiated.
	SetxattrFlags uint32
	_             uint32
}

const CompatSetxattrInSize = unsafe.Offsetof(SetxattrIn{}.SetxattrFlags)

// GetxattrIn is the request body for GETXATTR/LISTXATTR. Name follows.
type GetxattrIn struct {
	Size uint32
	_    uint32
}

// GetxattrOut is the reply body used when Size was zero in the request.
type GetxattrOut struct {
	Size uint32
	_    uint32
}

// InterruptIn is the request body for INTERRUPT.
type InterruptIn struct {
	Unique uint64
}

// BmapIn is the request body for BMAP.
type BmapIn struct {
	Block     uint64
	Blocksize uint32
	_         uint32
}

type BmapOut struct {
	Block uint64
}

// FallocateIn is the request body for FALLOCATE.
type FallocateIn struct {
	Fh     uint64
	Offset uint64
	Length uint64
	Mode   uint32
	_      uint32
}

// LseekIn is the request body for LSEEK.
type LseekIn struct {
	Fh     uint64
	Offset uint64
	Whence uint32
	_      uint32
}

type LseekOut struct {
	Offset uint64
}

// CopyFileRangeIn is the request body for COPY_FILE_RANGE.
type CopyFileRangeIn struct {
	FhIn    uint64
	OffIn   uint64
	NodeidOut uint64
	FhOut   uint64
	OffOut  uint64
	Len     uint64
	Flags   uint64
}

// PollIn is the request body for POLL.
type PollIn struct {
	Fh     uint64
	Kh     uint64
	Flags  uint32
	Events uint32
}

type PollOut struct {
	Revents uint32
	_       uint32
}

// IoctlIn is the request body for IOCTL. Input data follows.
type IoctlIn struct {
	Fh      uint64
	Flags   uint32
	Cmd     uint32
	Arg     uint64
	InSize  uint32
	OutSize uint32
}

type IoctlOut struct {
	Result  int32
	Flags   uint32
	InIovs  uint32
	OutIovs uint32
}

// BatchForgetIn precedes a list of ForgetOne entries.
type BatchForgetIn struct {
	Count uint32
	_     uint32
}

type ForgetOne struct {
	Nodeid uint64
	Nlookup uint64
}

// ForgetIn is the request body for FORGET.
type ForgetIn struct {
	Nlookup uint64
}

// NotifyInvalInodeOut is the body of an unsolicited INVALIDATE_INODE
// notification sent to the kernel.
type NotifyInvalInodeOut struct {
	Ino    uint64
	Off    int64
	Len    int64
}

// NotifyInvalEntryOut is the body of an unsolicited INVALIDATE_ENTRY
// notification. The name follows as a NUL terminated string.
type NotifyInvalEntryOut struct {
	Parent  uint64
	Namelen uint32
	_       uint32
}

// NotifyDeleteOut is the body of an unsolicited DELETE notification.
type NotifyDeleteOut struct {
	Parent  uint64
	Child   uint64
	Namelen uint32
	_       uint32
}

// NotifyPollWakeupOut is the body of an unsolicited POLL_WAKEUP
// notification.
type NotifyPollWakeupOut struct {
	Kh uint64
}

// Dirent is the fixed header of a packed directory entry, as written by
// fuseutil.WriteDirent. The name, and then NUL padding to the next 8 byte
// boundary, follow immediately.
type Dirent struct {
	Ino     uint64
	Off     uint64
	Namelen uint32
	Type    uint32
}

const DirentSize = unsafe.Sizeof(Dirent{})

// EntryOutSize returns the size, in bytes, of an EntryOut reply appropriate
// for the given negotiated protocol version.
func EntryOutSize(p Protocol) uintptr {
	if p.LT(Protocol{7, 9}) {
		return CompatEntryOutSize
	}
	return unsafe.Sizeof(EntryOut{})
}

// AttrOutSize returns the size, in bytes, of an AttrOut reply appropriate
// for the given negotiated protocol version.
func AttrOutSize(p Protocol) uintptr {
	if p.LT(Protocol{7, 9}) {
		return CompatAttrOutSize
	}
	return unsafe.Sizeof(AttrOut{})
}

// InitOutSize returns the size, in bytes, of an InitOut reply appropriate
// for the given kernel-requested protocol minor version.
func InitOutSize(minor uint32) uintptr {
	switch {
	case minor < 5:
		return CompatInitOutSize
	case minor < 23:
		return Compat22InitOutSize
	default:
		return unsafe.Sizeof(InitOut{})
	}
}

// StatfsOutSize returns the size, in bytes, of a StatfsOut reply appropriate
// for the given negotiated protocol version.
func StatfsOutSize(p Protocol) uintptr {
	if p.LT(Protocol{7, 4}) {
		return CompatStatfsSize
	}
	return unsafe.Sizeof(StatfsOut{})
}

// The kernel added a umask field to MKNOD/MKDIR/CREATE request bodies in
// protocol 7.12.
var protocolUmask = Protocol{7, 12}

// MknodInSize returns the size of a MknodIn request body at the given
// negotiated protocol version.
func MknodInSize(p Protocol) uintptr {
	if p.LT(protocolUmask) {
		return CompatMknodInSize
	}
	return unsafe.Sizeof(MknodIn{})
}

// MkdirInSize returns the size of a MkdirIn request body at the given
// negotiated protocol version.
func MkdirInSize(p Protocol) uintptr {
	if p.LT(protocolUmask) {
		return CompatMkdirInSize
	}
	return unsafe.Sizeof(MkdirIn{})
}

// CreateInSize returns the size of a CreateIn request body at the given
// negotiated protocol version.
func CreateInSize(p Protocol) uintptr {
	if p.LT(protocolUmask) {
		return unsafe.Offsetof(CreateIn{}.Umask)
	}
	return unsafe.Sizeof(CreateIn{})
}

// The kernel added a lock_owner field to READ/WRITE request bodies in
// protocol 7.9.
var protocolLockOwner = Protocol{7, 9}

// ReadInSize returns the size of a ReadIn request body at the given
// negotiated protocol version.
func ReadInSize(p Protocol) uintptr {
	if p.LT(protocolLockOwner) {
		return CompatReadInSize
	}
	return unsafe.Sizeof(ReadIn{})
}

// WriteInSize returns the size of a WriteIn request body at the given
// negotiated protocol version.
func WriteInSize(p Protocol) uintptr {
	if p.LT(protocolLockOwner) {
		return CompatWriteInSize
	}
	return unsafe.Sizeof(WriteIn{})
}

// SetxattrInSize returns the size of a SetxattrIn request body at the given
// negotiated protocol version; the trailing SetxattrFlags field is present
// only once the kernel has negotiated InitSetxattrExt.
func SetxattrInSize(p Protocol, setxattrExt bool) uintptr {
	if !setxattrExt {
		return CompatSetxattrInSize
	}
	return unsafe.Sizeof(SetxattrIn{})
}
