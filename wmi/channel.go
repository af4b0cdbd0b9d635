// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

package wmi

import "sync"

// SharedChannel reference-counts one channel. The first Acquire
// initializes it and the last Release tears it down.
//
// It is for callers on a single goroutine only. On Windows the channel
// pins the OS thread of the first Acquire, and the last Release must run
// on that same thread. Concurrent callers, such as the gRPC service, use
// a private channel per call instead.
type SharedChannel struct {
	backend Backend

	mu   sync.Mutex
	refs int
	ch   Channel
}

func NewSharedChannel(b Backend) *SharedChannel {
	return &SharedChannel{backend: b}
}

func (s *SharedChannel) Acquire() (Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refs == 0 {
		ch, err := initChannel(s.backend)
		if err != nil {
			return nil, err
		}
		s.ch = ch
	}
	s.refs++

	return &sharedRef{s: s, ch: s.ch}, nil
}

// Refs reports the number of outstanding references.
func (s *SharedChannel) Refs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}

func (s *SharedChannel) release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refs == 0 {
		return
	}
	s.refs--
	if s.refs == 0 {
		s.ch.Release()
		s.ch = nil
	}
}

type sharedRef struct {
	s    *SharedChannel
	ch   Channel
	once sync.Once
}

// InitializeSecurity is a no-op: the policy was applied on first acquire.
func (r *sharedRef) InitializeSecurity(AuthLevel, ImpersonationLevel) error {
	return nil
}

func (r *sharedRef) Release() {
	r.once.Do(r.s.release)
}

// underlying returns the backend channel behind a shared reference.
func underlying(ch Channel) Channel {
	if r, ok := ch.(*sharedRef); ok {
		return r.ch
	}
	return ch
}
