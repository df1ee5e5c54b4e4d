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
	"sync"

	"github.com/jacobsa/fuse/internal/buffer"
	"github.com/jacobsa/fuse/internal/freelist"
)

// InMessage holds a single request read from the kernel.
type InMessage = buffer.InMessage

// OutMessage holds a single response being built up to send to the kernel.
type OutMessage = buffer.OutMessage

// MessageProvider supplies and reclaims the buffers a Connection uses to
// read requests from, and build responses for, the kernel. Implement this
// to observe or replace the pooling behavior of DefaultMessageProvider, e.g.
// for instrumentation in tests. Set it via MountConfig.MessageProvider.
type MessageProvider interface {
	GetInMessage() *InMessage
	GetOutMessage() *OutMessage
	PutInMessage(*InMessage)
	PutOutMessage(*OutMessage)
}

// DefaultMessageProvider is the MessageProvider used when
// MountConfig.MessageProvider is left nil. It pools message buffers in a
// freelist so that a Connection need not allocate one per op. The zero
// value is ready to use.
type DefaultMessageProvider struct {
	mu sync.Mutex

	// GUARDED_BY(mu)
	inMessages freelist.Freelist

	// GUARDED_BY(mu)
	outMessages freelist.Freelist
}

func (p *DefaultMessageProvider) GetInMessage() *InMessage {
	p.mu.Lock()
	v := p.inMessages.Get()
	p.mu.Unlock()

	if v == nil {
		return new(InMessage)
	}
	return v.(*InMessage)
}

func (p *DefaultMessageProvider) PutInMessage(m *InMessage) {
	p.mu.Lock()
	p.inMessages.Put(m)
	p.mu.Unlock()
}

func (p *DefaultMessageProvider) GetOutMessage() *OutMessage {
	p.mu.Lock()
	v := p.outMessages.Get()
	p.mu.Unlock()

	var m *OutMessage
	if v == nil {
		m = new(OutMessage)
	} else {
		m = v.(*OutMessage)
	}

	m.Reset()
	return m
}

func (p *DefaultMessageProvider) PutOutMessage(m *OutMessage) {
	p.mu.Lock()
	p.outMessages.Put(m)
	p.mu.Unlock()
}
