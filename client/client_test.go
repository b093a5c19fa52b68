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
	"encoding/binary"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/atelier-saulx/based-sub007/config"
	"github.com/atelier-saulx/based-sub007/modify"
	"github.com/atelier-saulx/based-sub007/query"
	"github.com/atelier-saulx/based-sub007/schema"
	"github.com/atelier-saulx/based-sub007/schema/mockschema"
	"github.com/atelier-saulx/based-sub007/testutil"
	. "github.com/pingcap/check"
	"github.com/pingcap/errors"
)

func TestClient(t *testing.T) {
	TestingT(t)
}

var _ = Suite(&testClientSuite{})

var errBoom = errors.New("boom")

// mockChannel plays the engine. Created nodes get id tmpId+1000.
type mockChannel struct {
	mu       sync.Mutex
	calls    []string
	queries  [][]byte
	modifies [][]byte

	onQuery  func(n int, buf []byte) ([]byte, error)
	onModify func(n int, buf []byte) ([]byte, error)
}

func (m *mockChannel) Query(ctx context.Context, buf []byte) ([]byte, error) {
	m.mu.Lock()
	n := len(m.queries)
	m.calls = append(m.calls, "query")
	m.queries = append(m.queries, append([]byte(nil), buf...))
	f := m.onQuery
	m.mu.Unlock()
	if f != nil {
		return f(n, buf)
	}
	return []byte("result"), nil
}

func (m *mockChannel) Modify(ctx context.Context, buf []byte) ([]byte, error) {
	m.mu.Lock()
	n := len(m.modifies)
	m.calls = append(m.calls, "modify")
	m.modifies = append(m.modifies, append([]byte(nil), buf...))
	f := m.onModify
	m.mu.Unlock()
	if f != nil {
		return f(n, buf)
	}
	return createdIDs(buf)
}

func createdIDs(buf []byte) ([]byte, error) {
	cmds, err := modify.Decode(buf)
	if err != nil {
		return nil, err
	}
	var out []byte
	for _, cmd := range cmds {
		if cmd.Op == modify.OpSwitchNode && cmd.Create {
			pair := make([]byte, 8)
			binary.LittleEndian.PutUint32(pair, cmd.ID)
			binary.LittleEndian.PutUint32(pair[4:], cmd.ID+1000)
			out = append(out, pair...)
		}
	}
	return out, nil
}

func (m *mockChannel) numModifies() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.modifies)
}

func (m *mockChannel) numQueries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queries)
}

func bufChecksum(buf []byte) uint64 {
	return binary.LittleEndian.Uint64(buf[3:11])
}

type testClientSuite struct {
	snap  *schema.Snapshot
	snaps []*schema.Snapshot
}

func (s *testClientSuite) SetUpSuite(c *C) {
	s.snap = mockschema.MustSnapshot()
	for _, p := range []string{"p1", "p2", "p3", "p4", "p5"} {
		s.snaps = append(s.snaps, mockschema.MustSnapshotWith(p))
	}
}

// newClient returns a client that only flushes on demand unless the caller
// changes FlushDelay.
func (s *testClientSuite) newClient(c *C, ch Channel, adjust ...func(*config.Config)) *Client {
	cfg := testutil.NewTestConfig(c)
	cfg.Modify.FlushDelay = config.NewDuration(time.Hour)
	for _, f := range adjust {
		f(cfg)
	}
	state := NewState()
	state.SetSchema(s.snap)
	cli, err := NewClient(cfg, ch, state)
	c.Assert(err, IsNil)
	return cli
}

func (s *testClientSuite) TestGet(c *C) {
	ch := &mockChannel{}
	cli := s.newClient(c, ch)
	defer cli.Close()

	resp, err := cli.Query("user", nil).Filter("age", ">", 20).Sort("age", "desc").Get(context.Background())
	c.Assert(err, IsNil)
	c.Assert(string(resp.Data), Equals, "result")
	c.Assert(resp.Retries, Equals, 0)
	c.Assert(resp.SchemaChecksum, Equals, s.snap.Checksum)
	c.Assert(ch.numQueries(), Equals, 1)
	c.Assert(bufChecksum(ch.queries[0]), Equals, s.snap.Checksum)
}

func (s *testClientSuite) TestStaleWithNewerSchemaRebuildsAtOnce(c *C) {
	ch := &mockChannel{}
	cli := s.newClient(c, ch)
	defer cli.Close()
	ch.onQuery = func(n int, buf []byte) ([]byte, error) {
		if n == 0 {
			cli.State().SetSchema(s.snaps[0])
			return []byte{staleSchema}, nil
		}
		return []byte("result"), nil
	}

	resp, err := cli.Query("user", 1).Get(context.Background())
	c.Assert(err, IsNil)
	c.Assert(resp.Retries, Equals, 1)
	c.Assert(resp.SchemaChecksum, Equals, s.snaps[0].Checksum)
	c.Assert(ch.numQueries(), Equals, 2)
	c.Assert(bufChecksum(ch.queries[0]), Equals, s.snap.Checksum)
	c.Assert(bufChecksum(ch.queries[1]), Equals, s.snaps[0].Checksum)
}

func (s *testClientSuite) TestStaleWaitsForSchemaChange(c *C) {
	ch := &mockChannel{}
	cli := s.newClient(c, ch)
	defer cli.Close()
	ch.onQuery = func(n int, buf []byte) ([]byte, error) {
		if n == 0 {
			go func() {
				time.Sleep(30 * time.Millisecond)
				cli.State().SetSchema(s.snaps[1])
			}()
			return []byte{staleSchema}, nil
		}
		return []byte("result"), nil
	}

	start := time.Now()
	resp, err := cli.Query("user", nil).Get(context.Background())
	c.Assert(err, IsNil)
	c.Assert(time.Since(start) >= 30*time.Millisecond, IsTrue)
	c.Assert(resp.Retries, Equals, 1)
	c.Assert(resp.SchemaChecksum, Equals, s.snaps[1].Checksum)
	c.Assert(ch.numQueries(), Equals, 2)
}

func (s *testClientSuite) TestStaleWaitHonorsContext(c *C) {
	ch := &mockChannel{onQuery: func(int, []byte) ([]byte, error) {
		return []byte{staleSchema}, nil
	}}
	cli := s.newClient(c, ch)
	defer cli.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := cli.Query("user", nil).Get(ctx)
	c.Assert(errors.Cause(err), Equals, context.DeadlineExceeded)
	c.Assert(ch.numQueries(), Equals, 1)
}

// Every change of the engine schema is followed by exactly one rebuild, and
// the buffer that is finally accepted carries the engine's schema.
func (s *testClientSuite) TestConverges(c *C) {
	var mu sync.Mutex
	engine := s.snap
	ch := &mockChannel{}
	cli := s.newClient(c, ch)
	defer cli.Close()
	ch.onQuery = func(n int, buf []byte) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		if n < len(s.snaps) {
			engine = s.snaps[n]
			cli.State().SetSchema(engine)
		}
		if bufChecksum(buf) != engine.Checksum {
			return []byte{staleSchema}, nil
		}
		return []byte("result"), nil
	}

	resp, err := cli.Query("user", nil).Include("name").Get(context.Background())
	c.Assert(err, IsNil)
	c.Assert(resp.Retries, Equals, len(s.snaps))
	c.Assert(resp.SchemaChecksum, Equals, s.snaps[len(s.snaps)-1].Checksum)
	c.Assert(ch.numQueries(), Equals, len(s.snaps)+1)
	for i, buf := range ch.queries[1:] {
		c.Assert(bufChecksum(buf), Equals, s.snaps[i].Checksum)
	}
}

func (s *testClientSuite) TestSchemaChangeDuringDrainRebuilds(c *C) {
	ch := &mockChannel{}
	cli := s.newClient(c, ch)
	defer cli.Close()
	ch.onModify = func(n int, buf []byte) ([]byte, error) {
		cli.State().SetSchema(s.snaps[2])
		return createdIDs(buf)
	}

	_, err := cli.Create(context.Background(), "counter", map[string]interface{}{"count": 1})
	c.Assert(err, IsNil)
	resp, err := cli.Query("counter", nil).Get(context.Background())
	c.Assert(err, IsNil)
	c.Assert(resp.Retries, Equals, 1)
	c.Assert(ch.calls, DeepEquals, []string{"modify", "query"})
	c.Assert(bufChecksum(ch.queries[0]), Equals, s.snaps[2].Checksum)
}

func (s *testClientSuite) TestGetSeesEarlierWrites(c *C) {
	ch := &mockChannel{}
	cli := s.newClient(c, ch)
	defer cli.Close()

	err := cli.Update(context.Background(), "user", 7, map[string]interface{}{"age": 30})
	c.Assert(err, IsNil)
	c.Assert(cli.Pending(), Equals, 1)
	_, err = cli.Query("user", 7).Get(context.Background())
	c.Assert(err, IsNil)
	c.Assert(cli.Pending(), Equals, 0)
	c.Assert(ch.calls, DeepEquals, []string{"modify", "query"})

	cmds, err := modify.Decode(ch.modifies[0])
	c.Assert(err, IsNil)
	c.Assert(cmds[0].Op, Equals, modify.OpSwitchNode)
	c.Assert(cmds[0].ID, Equals, uint32(7))
	c.Assert(cmds[0].Create, IsFalse)
}

func (s *testClientSuite) TestUnexpectedResponse(c *C) {
	ch := &mockChannel{onQuery: func(int, []byte) ([]byte, error) {
		return []byte{7}, nil
	}}
	cli := s.newClient(c, ch)
	defer cli.Close()

	_, err := cli.Query("user", nil).Get(context.Background())
	c.Assert(errors.Cause(err), Equals, ErrUnexpectedResponse)
}

func (s *testClientSuite) TestChannelErrorIsReturnedUnchanged(c *C) {
	ch := &mockChannel{onQuery: func(int, []byte) ([]byte, error) {
		return nil, errBoom
	}}
	cli := s.newClient(c, ch)
	defer cli.Close()

	_, err := cli.Query("user", nil).Get(context.Background())
	c.Assert(err, Equals, errBoom)
}

func (s *testClientSuite) TestValidationErrors(c *C) {
	ch := &mockChannel{}
	cli := s.newClient(c, ch)
	defer cli.Close()

	_, err := cli.Query("user", nil).Filter("nope", "=", 1).Range(-1, 10).Get(context.Background())
	qe, ok := errors.Cause(err).(*query.Error)
	c.Assert(ok, IsTrue)
	c.Assert(qe.Entries, HasLen, 2)
	c.Assert(qe.Has(query.FilterENOENT), IsTrue)
	c.Assert(qe.Has(query.RangeInvalidOffset), IsTrue)
	c.Assert(ch.numQueries(), Equals, 0)
}

func (s *testClientSuite) TestCollectErrors(c *C) {
	ch := &mockChannel{}
	cli := s.newClient(c, ch, func(cfg *config.Config) { cfg.Query.CollectErrors = true })
	defer cli.Close()

	resp, err := cli.Query("nope", nil).Get(context.Background())
	c.Assert(err, IsNil)
	c.Assert(resp.Data, IsNil)
	c.Assert(resp.Errors, HasLen, 1)
	c.Assert(resp.Errors[0].Code, Equals, query.TargetInvalType)
	c.Assert(ch.numQueries(), Equals, 0)
}

func (s *testClientSuite) TestDefaultLocale(c *C) {
	ch := &mockChannel{}
	cli := s.newClient(c, ch, func(cfg *config.Config) { cfg.Query.DefaultLocale = "nl" })
	defer cli.Close()

	def := cli.Query("user", nil).Def(s.snap)
	c.Assert(def.LangName, Equals, "nl")
	c.Assert(def.Lang, Equals, uint8(2))
}

func (s *testClientSuite) TestWaitsForFirstSchema(c *C) {
	ch := &mockChannel{}
	cfg := testutil.NewTestConfig(c)
	cli, err := NewClient(cfg, ch, nil)
	c.Assert(err, IsNil)
	defer cli.Close()

	begin := time.Now()
	go func() {
		time.Sleep(20 * time.Millisecond)
		cli.State().SetSchema(s.snap)
	}()
	resp, err := cli.Query("user", nil).Get(context.Background())
	c.Assert(err, IsNil)
	c.Assert(resp.SchemaChecksum, Equals, s.snap.Checksum)
	// The wait for the schema is not part of the query latency.
	c.Assert(time.Since(begin) >= 20*time.Millisecond, IsTrue)
	c.Assert(resp.Latency < 20*time.Millisecond, IsTrue)

	cli2, err := NewClient(cfg, ch, nil)
	c.Assert(err, IsNil)
	defer cli2.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = cli2.Query("user", nil).Get(ctx)
	c.Assert(errors.Cause(err), Equals, context.DeadlineExceeded)
}

func (s *testClientSuite) TestCreateResolvesTickets(c *C) {
	ch := &mockChannel{}
	cli := s.newClient(c, ch)
	defer cli.Close()
	ctx := context.Background()

	t1, err := cli.Create(ctx, "user", map[string]interface{}{"name": "a"})
	c.Assert(err, IsNil)
	_, ok := t1.ID()
	c.Assert(ok, IsFalse)

	// Referencing a pending node flushes it first.
	t2, err := cli.Create(ctx, "user", map[string]interface{}{"bestFriend": t1})
	c.Assert(err, IsNil)
	id1, err := t1.Wait(ctx)
	c.Assert(err, IsNil)
	c.Assert(id1, Equals, t1.TmpID()+1000)

	c.Assert(cli.Flush(ctx), IsNil)
	id2, err := t2.Wait(ctx)
	c.Assert(err, IsNil)
	c.Assert(id2, Equals, t2.TmpID()+1000)
	c.Assert(ch.numModifies(), Equals, 2)

	cmds, err := modify.Decode(ch.modifies[1])
	c.Assert(err, IsNil)
	c.Assert(cmds, HasLen, 2)
	c.Assert(cmds[1].Tag, Equals, modify.TagSingleRef)
	c.Assert(cmds[1].ID, Equals, id1)

	// A ticket works as a query target.
	_, err = cli.Query("user", t2).Get(ctx)
	c.Assert(err, IsNil)
	buf := ch.queries[0]
	c.Assert(query.Kind(buf[0]), Equals, query.KindID)
	c.Assert(binary.LittleEndian.Uint32(buf[query.HeaderSize:]), Equals, id2)
}

func (s *testClientSuite) TestPendingReferenceList(c *C) {
	ch := &mockChannel{}
	cli := s.newClient(c, ch)
	defer cli.Close()
	ctx := context.Background()

	t1, err := cli.Create(ctx, "user", map[string]interface{}{"name": "a"})
	c.Assert(err, IsNil)
	t2, err := cli.Create(ctx, "user", map[string]interface{}{"name": "b"})
	c.Assert(err, IsNil)

	friends := []modify.Ref{modify.PendingRef(t1), modify.Resolved(7), modify.PendingRef(t2)}
	t3, err := cli.Create(ctx, "user", map[string]interface{}{"friends": friends})
	c.Assert(err, IsNil)
	c.Assert(ch.numModifies(), Equals, 1)
	id1, _ := t1.ID()
	id2, _ := t2.ID()
	c.Assert(id1, Equals, t1.TmpID()+1000)
	c.Assert(id2, Equals, t2.TmpID()+1000)

	c.Assert(cli.Flush(ctx), IsNil)
	cmds, err := modify.Decode(ch.modifies[1])
	c.Assert(err, IsNil)
	c.Assert(cmds, HasLen, 2)
	c.Assert(cmds[1].Tag, Equals, modify.TagRefList)
	c.Assert(cmds[1].Payload, HasLen, 12)
	c.Assert(binary.LittleEndian.Uint32(cmds[1].Payload), Equals, id1)
	c.Assert(binary.LittleEndian.Uint32(cmds[1].Payload[4:]), Equals, uint32(7))
	c.Assert(binary.LittleEndian.Uint32(cmds[1].Payload[8:]), Equals, id2)

	// A list of references works as a query target.
	t4, err := cli.Create(ctx, "user", map[string]interface{}{"name": "d"})
	c.Assert(err, IsNil)
	_, err = cli.Query("user", []modify.Ref{modify.PendingRef(t3), modify.PendingRef(t4)}).Get(ctx)
	c.Assert(err, IsNil)
	id3, _ := t3.ID()
	id4, _ := t4.ID()
	buf := ch.queries[0]
	c.Assert(query.Kind(buf[0]), Equals, query.KindIDs)
	p := buf[query.HeaderSize:]
	c.Assert(binary.LittleEndian.Uint32(p), Equals, uint32(2))
	c.Assert(binary.LittleEndian.Uint32(p[4:]), Equals, id3)
	c.Assert(binary.LittleEndian.Uint32(p[8:]), Equals, id4)
}

func (s *testClientSuite) TestUpdateByTicket(c *C) {
	ch := &mockChannel{}
	cli := s.newClient(c, ch)
	defer cli.Close()
	ctx := context.Background()

	t, err := cli.Create(ctx, "counter", map[string]interface{}{"count": 1})
	c.Assert(err, IsNil)
	err = cli.Update(ctx, "counter", modify.PendingRef(t), map[string]interface{}{"count": modify.Increment{By: 2}})
	c.Assert(err, IsNil)
	c.Assert(cli.Flush(ctx), IsNil)

	cmds, err := modify.Decode(ch.modifies[1])
	c.Assert(err, IsNil)
	id, _ := t.ID()
	c.Assert(cmds[0].ID, Equals, id)
	c.Assert(cmds[1].Op, Equals, modify.OpIncrement)

	c.Assert(cli.Update(ctx, "counter", 0, map[string]interface{}{"count": 1}), NotNil)
}

func (s *testClientSuite) TestRangeErrorFlushesAndRetries(c *C) {
	ch := &mockChannel{}
	cli := s.newClient(c, ch, func(cfg *config.Config) { cfg.Modify.MaxBufferSize = 64 })
	defer cli.Close()
	ctx := context.Background()
	name := strings.Repeat("x", 30)

	_, err := cli.Create(ctx, "user", map[string]interface{}{"name": name})
	c.Assert(err, IsNil)
	c.Assert(ch.numModifies(), Equals, 0)
	_, err = cli.Create(ctx, "user", map[string]interface{}{"name": name})
	c.Assert(err, IsNil)
	c.Assert(cli.Flush(ctx), IsNil)
	c.Assert(ch.numModifies(), Equals, 2)

	// Too large even for an empty buffer.
	_, err = cli.Create(ctx, "user", map[string]interface{}{"name": strings.Repeat("x", 100)})
	c.Assert(err, Equals, modify.ErrRange)
	c.Assert(cli.Pending(), Equals, 0)
	c.Assert(cli.Flush(ctx), IsNil)
	c.Assert(ch.numModifies(), Equals, 2)
}

func (s *testClientSuite) TestModifyErrorDropsTheWrite(c *C) {
	ch := &mockChannel{}
	cli := s.newClient(c, ch)
	defer cli.Close()
	ctx := context.Background()

	_, err := cli.Create(ctx, "user", map[string]interface{}{"name": "a", "age": "old"})
	c.Assert(modify.IsModifyError(err), IsTrue)
	c.Assert(cli.Pending(), Equals, 0)

	_, err = cli.Create(ctx, "nope", map[string]interface{}{})
	c.Assert(err, NotNil)

	c.Assert(cli.Flush(ctx), IsNil)
	c.Assert(ch.numModifies(), Equals, 0)
}

func (s *testClientSuite) TestFlushFailure(c *C) {
	ch := &mockChannel{onModify: func(int, []byte) ([]byte, error) {
		return nil, errBoom
	}}
	cli := s.newClient(c, ch)
	defer cli.Close()
	ctx := context.Background()

	t, err := cli.Create(ctx, "user", map[string]interface{}{"name": "a"})
	c.Assert(err, IsNil)
	c.Assert(errors.Cause(cli.Flush(ctx)), Equals, errBoom)
	_, err = t.Wait(ctx)
	c.Assert(errors.Cause(err), Equals, errBoom)
	c.Assert(cli.Pending(), Equals, 0)
}

func (s *testClientSuite) TestBadModifyReply(c *C) {
	ch := &mockChannel{onModify: func(int, []byte) ([]byte, error) {
		return []byte{1, 2, 3}, nil
	}}
	cli := s.newClient(c, ch)
	defer cli.Close()
	ctx := context.Background()

	t, err := cli.Create(ctx, "user", map[string]interface{}{"name": "a"})
	c.Assert(err, IsNil)
	c.Assert(errors.Cause(cli.Flush(ctx)), Equals, ErrUnexpectedResponse)
	_, err = t.Wait(ctx)
	c.Assert(err, NotNil)
}

func (s *testClientSuite) TestAutoFlush(c *C) {
	ch := &mockChannel{}
	cli := s.newClient(c, ch, func(cfg *config.Config) {
		cfg.Modify.FlushDelay = config.NewDuration(5 * time.Millisecond)
	})
	defer cli.Close()

	t, err := cli.Create(context.Background(), "user", map[string]interface{}{"name": "a"})
	c.Assert(err, IsNil)
	testutil.WaitUntil(c, func(c *C) bool {
		_, ok := t.ID()
		return ok
	})
	c.Assert(ch.numModifies(), Equals, 1)
}

func (s *testClientSuite) TestClose(c *C) {
	ch := &mockChannel{}
	cli := s.newClient(c, ch)
	ctx := context.Background()

	t, err := cli.Create(ctx, "user", map[string]interface{}{"name": "a"})
	c.Assert(err, IsNil)
	cli.Close()
	cli.Close()
	c.Assert(ch.numModifies(), Equals, 1)
	_, ok := t.ID()
	c.Assert(ok, IsTrue)

	_, err = cli.Create(ctx, "user", map[string]interface{}{"name": "b"})
	c.Assert(errors.Cause(err), Equals, errClosing)
	_, err = cli.Query("user", nil).Get(ctx)
	c.Assert(errors.Cause(err), Equals, errClosing)
}
