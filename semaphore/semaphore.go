// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

package semaphore

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Semaphore bounds the number of wmi sessions open at the same time.
// Build one with NewSemaphore.
type Semaphore struct {
	w     *semaphore.Weighted
	size  int
	inUse *atomic.Int64
}

// NewSemaphore returns a semaphore with n slots, at least one.
func NewSemaphore(n int) Semaphore {
	if n < 1 {
		n = 1
	}
	return Semaphore{
		w:     semaphore.NewWeighted(int64(n)),
		size:  n,
		inUse: new(atomic.Int64),
	}
}

// Acquire takes a slot, waiting while ctx allows. It returns ctx.Err()
// when ctx is done before a slot frees up.
func (s Semaphore) Acquire(ctx context.Context) error {
	// prefer a free slot over an already expired ctx
	if s.TryAcquire() {
		return nil
	}
	if err := s.w.Acquire(ctx, 1); err != nil {
		return err
	}
	s.inUse.Add(1)
	return nil
}

func (s Semaphore) TryAcquire() bool {
	if !s.w.TryAcquire(1) {
		return false
	}
	s.inUse.Add(1)
	return true
}

// Release frees a slot taken by Acquire or TryAcquire. It panics when no
// slot is held.
func (s Semaphore) Release() {
	if s.inUse.Add(-1) < 0 {
		s.inUse.Add(1)
		panic("semaphore: release without acquire")
	}
	s.w.Release(1)
}

// InUse reports the number of taken slots.
func (s Semaphore) InUse() int {
	return int(s.inUse.Load())
}

func (s Semaphore) Cap() int {
	return s.size
}
