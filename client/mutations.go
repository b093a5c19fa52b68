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

	"github.com/google/btree"
	"github.com/pingcap/errors"
)

type seqItem uint64

func (s seqItem) Less(than btree.Item) bool {
	return s < than.(seqItem)
}

// mutations tracks the writes that have been accepted but not yet
// acknowledged by the engine. Every write takes a sequence number; a reader
// that must observe all writes issued before it takes a mark and waits until
// no pending write is at or below it.
type mutations struct {
	mu      sync.Mutex
	last    uint64
	pending *btree.BTree
	changed chan struct{}
}

func newMutations() *mutations {
	return &mutations{
		pending: btree.New(8),
		changed: make(chan struct{}),
	}
}

// Begin registers a new pending write.
func (m *mutations) Begin() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last++
	m.pending.ReplaceOrInsert(seqItem(m.last))
	return m.last
}

// Done acknowledges writes.
func (m *mutations) Done(seqs ...uint64) {
	if len(seqs) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, seq := range seqs {
		m.pending.Delete(seqItem(seq))
	}
	close(m.changed)
	m.changed = make(chan struct{})
}

// Mark returns the sequence number of the latest write.
func (m *mutations) Mark() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Len returns the number of pending writes.
func (m *mutations) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending.Len()
}

// settled reports whether every write up to mark is acknowledged.
func (m *mutations) settled(mark uint64) (bool, <-chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	min := m.pending.Min()
	return min == nil || uint64(min.(seqItem)) > mark, m.changed
}

// Wait blocks until every write up to mark is acknowledged.
func (m *mutations) Wait(ctx context.Context, mark uint64) error {
	for {
		ok, changed := m.settled(mark)
		if ok {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		}
	}
}
