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

// Package freelist implements a tiny singly linked free list of
// interface{} values, used by package fuse to avoid allocating a fresh
// message buffer for every request read from the kernel.
package freelist

// Freelist is a free list of arbitrary values. The zero value is an empty
// list. Not safe for concurrent use; callers are expected to guard it with
// their own lock, as package fuse does.
type Freelist struct {
	head *node
}

type node struct {
	v    interface{}
	next *node
}

// Get removes and returns an arbitrary element of the list, or returns nil
// if the list is empty.
func (fl *Freelist) Get() interface{} {
	n := fl.head
	if n == nil {
		return nil
	}

	fl.head = n.next
	n.next = nil
	return n.v
}

// Put adds v to the list for later retrieval by Get.
func (fl *Freelist) Put(v interface{}) {
	fl.head = &node{v: v, next: fl.head}
}
