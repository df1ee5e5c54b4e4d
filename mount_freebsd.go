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

	"golang.org/x/sys/unix"
)

// Begin the process of mounting at the given directory, returning a
// connection to the kernel. FreeBSD has no mount(2) option string for fuse;
// instead the iovec-based nmount(2) interface is used, via the libc wrapper
// in golang.org/x/sys/unix.
func mount(
	dir string,
	conf *mountConfig,
	ready chan<- error) (dev *os.File, err error) {
	dev, err = os.OpenFile("/dev/fuse", os.O_RDWR, 0)
	if err != nil {
		err = fmt.Errorf("opening /dev/fuse: %v", err)
		return
	}

	iovecArgs := map[string]string{
		"fstype": "fusefs",
		"from":   "/dev/fuse",
		"fspath": dir,
		"fd":     fmt.Sprintf("%d", dev.Fd()),
	}

	if conf.subtype != "" {
		iovecArgs["subtype"] = conf.subtype
	}

	for k, v := range conf.options {
		if _, ok := iovecArgs[k]; !ok {
			iovecArgs[k] = v
		}
	}

	var iov []unix.Iovec
	addString := func(s string) {
		b := append([]byte(s), 0)
		iov = append(iov, unix.Iovec{Base: &b[0], Len: uint64(len(b))})
	}

	for k, v := range iovecArgs {
		addString(k)
		addString(v)
	}

	var flags int
	if conf.readOnly {
		flags |= unix.MNT_RDONLY
	}

	if err = unix.Nmount(iov, flags); err != nil {
		dev.Close()
		err = fmt.Errorf("nmount(2): %v", err)
		return
	}

	close(ready)
	return
}
