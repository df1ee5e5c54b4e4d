// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

package memfs

import (
	"os"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/timeutil"
)

// inode represents a single file, directory, or symlink in the file
// system's in-memory tree. A directory inode holds its children as a slice
// of dirent-like entries; a file inode holds its bytes directly; a symlink
// inode holds its target.
//
// Not safe for concurrent access; callers must hold memFS.mu.
type inode struct {
	attrs fuseops.InodeAttributes

	// For directories, the children of this inode, in the order they were
	// added. A child is considered deleted if its Inode field is zero; the
	// slot is kept (rather than spliced out) so that ReadDir's offsets stay
	// stable across concurrent mutation, per the kernel's requirements.
	entries []fuseops.Dirent

	// For files, the current contents.
	contents []byte

	// For symlinks, the link target.
	target string
}

func newInode(attrs fuseops.InodeAttributes) *inode {
	attrs.Nlink = 1
	return &inode{attrs: attrs}
}

func (in *inode) isDir() bool {
	return in.attrs.Mode&os.ModeDir != 0
}

func (in *inode) isSymlink() bool {
	return in.attrs.Mode&os.ModeSymlink != 0
}

func (in *inode) isFile() bool {
	return !in.isDir() && !in.isSymlink()
}

// findChild returns the index into entries of the live entry named name, or
// -1 if there is none.
func (in *inode) findChild(name string) int {
	for i, e := range in.entries {
		if e.Inode != 0 && e.Name == name {
			return i
		}
	}
	return -1
}

// AddChild records a new (name, id) mapping, reusing a deleted slot if one
// is available so that Dirent.Offset values handed out earlier remain
// meaningful.
func (in *inode) AddChild(id fuseops.InodeID, name string, dt fuseops.DirentType) {
	for i, e := range in.entries {
		if e.Inode == 0 {
			in.entries[i] = fuseops.Dirent{
				Offset: fuseops.DirOffset(i + 1),
				Inode:  id,
				Name:   name,
				Type:   dt,
			}
			return
		}
	}

	in.entries = append(in.entries, fuseops.Dirent{
		Offset: fuseops.DirOffset(len(in.entries) + 1),
		Inode:  id,
		Name:   name,
		Type:   dt,
	})
}

// RemoveChild tombstones the entry named name, returning the inode ID it
// referred to (or zero if there was no such entry).
func (in *inode) RemoveChild(name string) fuseops.InodeID {
	i := in.findChild(name)
	if i < 0 {
		return 0
	}

	id := in.entries[i].Inode
	in.entries[i].Inode = 0
	return id
}

// numChildren reports the number of live entries, for checking that a
// directory is empty before removing it.
func (in *inode) numChildren() int {
	n := 0
	for _, e := range in.entries {
		if e.Inode != 0 {
			n++
		}
	}
	return n
}

// Len reports the apparent size of the inode's data, for use as
// InodeAttributes.Size.
func (in *inode) Len() int {
	switch {
	case in.isDir():
		return len(in.entries)
	case in.isSymlink():
		return len(in.target)
	default:
		return len(in.contents)
	}
}

// Truncate resizes a file's contents to n bytes, zero-filling any growth.
func (in *inode) Truncate(n uint64) {
	if n <= uint64(len(in.contents)) {
		in.contents = in.contents[:n]
		return
	}

	newContents := make([]byte, n)
	copy(newContents, in.contents)
	in.contents = newContents
}

// WriteAt writes p into the file's contents at offset off, extending the
// file with zeros first if necessary, per the semantics documented on
// fuseops.WriteFileOp.Offset.
func (in *inode) WriteAt(p []byte, off int64) (int, error) {
	newLen := off + int64(len(p))
	if newLen > int64(len(in.contents)) {
		in.Truncate(uint64(newLen))
	}

	return copy(in.contents[off:], p), nil
}

// touch updates the inode's modification and change times to now.
func (in *inode) touch(clock timeutil.Clock) {
	now := clock.Now()
	in.attrs.Mtime = now
	in.attrs.Ctime = now
}

// newAttrs builds a fresh InodeAttributes for a newly-created inode with
// the given mode and owner, with all time fields set to now.
func newAttrs(mode os.FileMode, uid, gid uint32, now time.Time) fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Mode:   mode,
		Uid:    uid,
		Gid:    gid,
		Atime:  now,
		Mtime:  now,
		Ctime:  now,
		Crtime: now,
	}
}

func direntType(mode os.FileMode) fuseops.DirentType {
	switch {
	case mode&os.ModeDir != 0:
		return fuseops.DT_Directory
	case mode&os.ModeSymlink != 0:
		return fuseops.DT_Link
	default:
		return fuseops.DT_File
	}
}
