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
	"strconv"
	"strings"
	"syscall"
)

const maxMountOptionsLen = 4096

// parseFuseFd returns N for a path of the form /dev/fd/N, or -1 and an error
// if N is not a non-negative integer.
func parseFuseFd(path string) (int, error) {
	fd, err := strconv.Atoi(strings.TrimPrefix(path, "/dev/fd/"))
	if err != nil {
		return -1, fmt.Errorf("invalid fd in %q: %v", path, err)
	}
	if fd < 0 {
		return -1, fmt.Errorf("invalid fd in %q: negative", path)
	}
	return fd, nil
}

// Begin the process of mounting at the given directory, returning a
// connection to the kernel. Mounting is performed directly via the mount(2)
// system call; no fusermount or other setuid helper is involved, so the
// caller must hold CAP_SYS_ADMIN (or be root).
func mount(
	dir string,
	conf *mountConfig,
	ready chan<- error) (dev *os.File, err error) {
	fi, err := os.Stat(dir)
	if err != nil {
		err = fmt.Errorf("Stat: %v", err)
		return
	}

	if !fi.IsDir() {
		err = fmt.Errorf("%q is not a directory", dir)
		return
	}

	// Mirror the refusal historically performed by the fusermount(1) helper:
	// don't silently hide the contents of a non-empty directory.
	entries, err := os.ReadDir(dir)
	if err != nil {
		err = fmt.Errorf("ReadDir: %v", err)
		return
	}

	if len(entries) != 0 {
		err = fmt.Errorf("mount point %q is not empty", dir)
		return
	}

	dev, err = os.OpenFile("/dev/fuse", os.O_RDWR, 0)
	if err != nil {
		err = fmt.Errorf("opening /dev/fuse: %v", err)
		return
	}

	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		dev.Close()
		err = fmt.Errorf("unexpected stat type for %q", dir)
		return
	}

	opts := fmt.Sprintf(
		"fd=%d,rootmode=%o,user_id=%d,group_id=%d,%s",
		dev.Fd(),
		st.Mode&syscall.S_IFMT,
		os.Getuid(),
		os.Getgid(),
		conf.getOptions())

	if len(opts) > maxMountOptionsLen {
		dev.Close()
		err = fmt.Errorf("mount options too long: %d bytes", len(opts))
		return
	}

	fsType := "fuse"
	if conf.subtype != "" {
		fsType = "fuse." + conf.subtype
	}

	source := conf.fsName
	if source == "" {
		source = fsType
	}

	var flags uintptr = syscall.MS_NOSUID | syscall.MS_NODEV

	if err = syscall.Mount(source, dir, fsType, flags, opts); err != nil {
		dev.Close()
		err = fmt.Errorf("mount(2): %v", err)
		return
	}

	close(ready)
	return
}
