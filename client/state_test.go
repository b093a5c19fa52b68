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
	"time"

	"github.com/atelier-saulx/based-sub007/schema/mockschema"
	. "github.com/pingcap/check"
	"github.com/pingcap/errors"
)

var _ = Suite(&testStateSuite{})

type testStateSuite struct{}

func (s *testStateSuite) TestSetSchema(c *C) {
	st := NewState()
	c.Assert(st.Snapshot(), IsNil)
	c.Assert(st.Version(), Equals, uint64(0))

	a := mockschema.MustSnapshot()
	changed := st.Changed()
	st.SetSchema(a)
	select {
	case <-changed:
	default:
		c.Fatal("change not signalled")
	}
	c.Assert(st.Checksum(), Equals, a.Checksum)
	c.Assert(st.Version(), Equals, uint64(1))

	// Same checksum is not a change.
	changed = st.Changed()
	st.SetSchema(mockschema.MustSnapshot())
	st.SetSchema(nil)
	select {
	case <-changed:
		c.Fatal("unexpected change")
	default:
	}
	c.Assert(st.Version(), Equals, uint64(1))
}

func (s *testStateSuite) TestWaitChange(c *C) {
	st := NewState()
	a, b := mockschema.MustSnapshot(), mockschema.MustSnapshotWith("extra")
	st.SetSchema(a)

	snap, err := st.WaitChange(context.Background(), b.Checksum)
	c.Assert(err, IsNil)
	c.Assert(snap, Equals, a)

	go func() {
		time.Sleep(10 * time.Millisecond)
		st.SetSchema(b)
	}()
	snap, err = st.WaitChange(context.Background(), a.Checksum)
	c.Assert(err, IsNil)
	c.Assert(snap, Equals, b)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = st.WaitChange(ctx, b.Checksum)
	c.Assert(errors.Cause(err), Equals, context.DeadlineExceeded)
}

var _ = Suite(&testMutationsSuite{})

type testMutationsSuite struct{}

func (s *testMutationsSuite) TestBarrier(c *C) {
	m := newMutations()
	c.Assert(m.Wait(context.Background(), m.Mark()), IsNil)

	s1, s2, s3 := m.Begin(), m.Begin(), m.Begin()
	c.Assert(m.Len(), Equals, 3)
	c.Assert(m.Mark(), Equals, s3)

	// Only writes up to the mark matter.
	m.Done(s1, s2)
	c.Assert(m.Wait(context.Background(), s2), IsNil)

	done := make(chan error, 1)
	go func() {
		done <- m.Wait(context.Background(), s3)
	}()
	select {
	case <-done:
		c.Fatal("wait returned before the write was acknowledged")
	case <-time.After(10 * time.Millisecond):
	}
	m.Done(s3)
	c.Assert(<-done, IsNil)
	c.Assert(m.Len(), Equals, 0)
}

func (s *testMutationsSuite) TestWaitCanceled(c *C) {
	m := newMutations()
	m.Begin()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Assert(errors.Cause(m.Wait(ctx, m.Mark())), Equals, context.Canceled)
}
