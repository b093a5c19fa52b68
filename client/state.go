// Copyright 2016 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package client

import (
	"context"
	"sync"

	"github.com/atelier-saulx/based-sub007/schema"
	"github.com/pingcap/errors"
	"go.uber.org/atomic"
)

// State holds the schema snapshot the client currently builds against. It
// is shared by every query and mutation of a client.
type State struct {
	mu      sync.RWMutex
	snap    *schema.Snapshot
	changed chan struct{}

	checksum atomic.Uint64
	version  atomic.Uint64
}

func NewState() *State {
	return &State{changed: make(chan struct{})}
}

// SetSchema installs snap and wakes everyone waiting for a change. Setting a
// snapshot with the current checksum does nothing.
func (s *State) SetSchema(snap *schema.Snapshot) {
	if snap == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap != nil && s.snap.Checksum == snap.Checksum {
		return
	}
	s.snap = snap
	s.checksum.Store(snap.Checksum)
	s.version.Inc()
	close(s.changed)
	s.changed = make(chan struct{})
}

// Snapshot returns the current snapshot, nil before the first SetSchema.
func (s *State) Snapshot() *schema.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Checksum returns the checksum of the current snapshot.
func (s *State) Checksum() uint64 {
	return s.checksum.Load()
}

// Version counts the schema changes seen so far.
func (s *State) Version() uint64 {
	return s.version.Load()
}

// Changed returns a channel that is closed at the next schema change.
func (s *State) Changed() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changed
}

// Wait blocks until a schema is available.
func (s *State) Wait(ctx context.Context) (*schema.Snapshot, error) {
	return s.wait(ctx, func(*schema.Snapshot) bool { return true })
}

// WaitChange blocks until the current schema has a checksum other than from.
func (s *State) WaitChange(ctx context.Context, from uint64) (*schema.Snapshot, error) {
	return s.wait(ctx, func(snap *schema.Snapshot) bool { return snap.Checksum != from })
}

func (s *State) wait(ctx context.Context, ready func(*schema.Snapshot) bool) (*schema.Snapshot, error) {
	for {
		s.mu.RLock()
		snap, changed := s.snap, s.changed
		s.mu.RUnlock()
		if snap != nil && ready(snap) {
			return snap, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return nil, errors.WithStack(ctx.Err())
		}
	}
}
