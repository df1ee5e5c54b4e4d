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
	"runtime"
	"sort"
	"strings"
)

// mountConfig carries the platform-agnostic set of mount(8)-style options
// derived from a MountConfig, in a form that each platform's mount adaptor
// can render into whatever a mount(2) options string, an nmount(2) iovec
// list, or a "-o" argument to an external helper needs.
type mountConfig struct {
	fsName     string
	subtype    string
	volumeName string
	readOnly   bool
	fuseImpl   FuseImpl
	options    map[string]string
}

func buildMountConfig(cfg *MountConfig) *mountConfig {
	mc := &mountConfig{
		fsName:     cfg.FSName,
		subtype:    cfg.Subtype,
		volumeName: cfg.VolumeName,
		readOnly:   cfg.ReadOnly,
		fuseImpl:   cfg.FuseImpl,
		options:    make(map[string]string),
	}

	for k, v := range cfg.Options {
		mc.options[k] = v
	}

	// Enable kernel-side permission checking against the Mode, Uid and Gid
	// reported in InodeAttributes, unless the caller set the option.
	if _, ok := mc.options["default_permissions"]; !ok {
		mc.options["default_permissions"] = ""
	}

	if mc.readOnly {
		mc.options["ro"] = ""
	}

	if mc.subtype != "" {
		mc.options["subtype"] = mc.subtype
	}

	// OS X only: the Finder volume name, and "novncache" unless the caller
	// enabled vnode caching.
	if runtime.GOOS == "darwin" {
		if mc.volumeName != "" {
			mc.options["volname"] = mc.volumeName
		}
		if !cfg.EnableVnodeCaching {
			mc.options["novncache"] = ""
		}
	}

	return mc
}

// getOptions renders the option set as a comma-separated list in the form
// accepted by mount(8)-family programs: bare flags render as just their
// name, valued options as name=value. Deterministic order for logging and
// for tests.
func (c *mountConfig) getOptions() string {
	var opts []string
	for k, v := range c.options {
		if v == "" {
			opts = append(opts, k)
		} else {
			opts = append(opts, fmt.Sprintf("%s=%s", k, v))
		}
	}
	sort.Strings(opts)
	return strings.Join(opts, ",")
}
