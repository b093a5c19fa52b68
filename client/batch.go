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
	"time"

	"github.com/atelier-saulx/based-sub007/modify"
	"github.com/atelier-saulx/based-sub007/schema"
	"github.com/atelier-saulx/based-sub007/util/worker"
	"github.com/opentracing/opentracing-go"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// batch is the modify buffer writes are appended to until it is flushed.
type batch struct {
	ctx     *modify.Ctx
	seqs    []uint64
	creates []*modify.Ticket
}

type flushTask struct {
	buf     []byte
	seqs    []uint64
	creates []*modify.Ticket
	done    chan error
}

func (c *Client) newBatch() *batch {
	mctx := modify.NewCtx(int(c.cfg.Modify.MaxBufferSize), c.arena)
	mctx.SetCompressThreshold(int(c.cfg.Modify.CompressThreshold))
	return &batch{ctx: mctx}
}

// Create queues the creation of a node. The returned ticket resolves to the
// id of the node once the engine acknowledged the batch holding it; it can
// be used as a reference value or query target before that.
func (c *Client) Create(ctx context.Context, typeName string, values map[string]interface{}) (*modify.Ticket, error) {
	start := time.Now()
	t, err := c.write(ctx, typeName, 0, values)
	if err != nil {
		cmdFailedDurationCreate.Observe(time.Since(start).Seconds())
		return nil, err
	}
	cmdDurationCreate.Observe(time.Since(start).Seconds())
	return t, nil
}

// Update queues a write to an existing node. id is a node id, a ticket or a
// reference.
func (c *Client) Update(ctx context.Context, typeName string, id interface{}, values map[string]interface{}) error {
	start := time.Now()
	err := c.update(ctx, typeName, id, values)
	if err != nil {
		cmdFailedDurationUpdate.Observe(time.Since(start).Seconds())
		return err
	}
	cmdDurationUpdate.Observe(time.Since(start).Seconds())
	return nil
}

func (c *Client) update(ctx context.Context, typeName string, id interface{}, values map[string]interface{}) error {
	v, err := c.resolveID(ctx, id)
	if err != nil {
		return err
	}
	nodeID, ok := schema.ToUint32(v)
	if !ok || nodeID == 0 {
		return errors.Errorf("[client] invalid node id %v", id)
	}
	_, err = c.write(ctx, typeName, nodeID, values)
	return err
}

// write encodes one node write into the current batch. A zero id creates a
// node under a new ticket. When the write does not fit, the batch is flushed
// and the write is encoded once more into the empty buffer.
func (c *Client) write(ctx context.Context, typeName string, id uint32, values map[string]interface{}) (*modify.Ticket, error) {
	if err := c.awaitTickets(ctx, modify.Tickets(values)); err != nil {
		return nil, err
	}
	snap, err := c.state.Wait(ctx)
	if err != nil {
		return nil, err
	}
	typ, ok := snap.Type(typeName)
	if !ok {
		return nil, errors.Errorf("[client] unknown type %q", typeName)
	}

	c.batchMu.Lock()
	defer c.batchMu.Unlock()
	if c.closed.Load() {
		return nil, errClosing
	}
	var ticket *modify.Ticket
	if id == 0 {
		ticket = c.arena.New()
		id = ticket.TmpID()
	}
	seq := c.mutations.Begin()
	err = c.encodeLocked(snap, typ, id, ticket != nil, values)
	if err == modify.ErrRange && c.batch.ctx.Len() > 0 {
		c.flushLocked()
		err = c.encodeLocked(snap, typ, id, ticket != nil, values)
	}
	if err != nil {
		c.mutations.Done(seq)
		if ticket != nil {
			c.arena.Fail(ticket.TmpID(), err)
		}
		return nil, err
	}
	b := c.batch
	b.seqs = append(b.seqs, seq)
	if ticket != nil {
		b.creates = append(b.creates, ticket)
	}
	c.scheduleFlushLocked()
	return ticket, nil
}

// encodeLocked writes the node switch and the values. A failed write leaves
// nothing of the node in the buffer.
func (c *Client) encodeLocked(snap *schema.Snapshot, typ *schema.TypeDef, id uint32, create bool, values map[string]interface{}) error {
	mctx := c.batch.ctx
	mark := mctx.Len()
	mctx.SetSchema(snap)
	mctx.SetLang(c.defaultLang(snap))
	err := mctx.SwitchNode(typ.ID, id, create)
	if err == nil {
		err = modify.Encode(mctx, typ.FieldSet, values)
	}
	if err != nil {
		mctx.Truncate(mark)
	}
	return err
}

func (c *Client) defaultLang(snap *schema.Snapshot) uint8 {
	if c.cfg.Query.DefaultLocale == "" {
		return 0
	}
	code, _ := snap.LangCode(c.cfg.Query.DefaultLocale)
	return code
}

func (c *Client) scheduleFlushLocked() {
	if c.flushTimer != nil {
		return
	}
	c.flushTimer = time.AfterFunc(c.cfg.Modify.FlushDelay.Duration, func() {
		c.batchMu.Lock()
		defer c.batchMu.Unlock()
		c.flushLocked()
	})
}

// flushLocked hands the current batch to the flush worker and starts a new
// one. It returns nil when there is nothing to send.
func (c *Client) flushLocked() *flushTask {
	if c.flushTimer != nil {
		c.flushTimer.Stop()
		c.flushTimer = nil
	}
	b := c.batch
	if b.ctx.Len() == 0 {
		return nil
	}
	task := &flushTask{
		buf:     append([]byte(nil), b.ctx.Bytes()...),
		seqs:    b.seqs,
		creates: b.creates,
		done:    make(chan error, 1),
	}
	b.ctx.Reset()
	b.seqs, b.creates = nil, nil
	if !c.flusher.Submit(task) {
		c.finishFlush(task, errClosing)
	}
	return task
}

// Flush sends the current batch and waits until every write issued before
// the call is acknowledged.
func (c *Client) Flush(ctx context.Context) error {
	if span := opentracing.SpanFromContext(ctx); span != nil {
		span = opentracing.StartSpan("client.Flush", opentracing.ChildOf(span.Context()))
		defer span.Finish()
	}
	mark := c.mutations.Mark()
	c.batchMu.Lock()
	task := c.flushLocked()
	c.batchMu.Unlock()
	if task != nil {
		select {
		case err := <-task.done:
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		}
	}
	return c.mutations.Wait(ctx, mark)
}

// drain makes sure every write up to mark reached the engine. Writes still
// in the batch are flushed first.
func (c *Client) drain(ctx context.Context, mark uint64) error {
	if ok, _ := c.mutations.settled(mark); ok {
		return nil
	}
	c.batchMu.Lock()
	if seqs := c.batch.seqs; len(seqs) > 0 && seqs[0] <= mark {
		c.flushLocked()
	}
	c.batchMu.Unlock()
	return c.mutations.Wait(ctx, mark)
}

// awaitTickets flushes the batch when needed and waits for tickets to
// resolve.
func (c *Client) awaitTickets(ctx context.Context, tickets []*modify.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	c.batchMu.Lock()
	c.flushLocked()
	c.batchMu.Unlock()
	for _, t := range tickets {
		if _, err := t.Wait(ctx); err != nil {
			return errors.Annotatef(err, "[client] pending node %d", t.TmpID())
		}
	}
	return nil
}

// resolveID replaces tickets and references by node ids. Lists are resolved
// element-wise; other values are returned as they are.
func (c *Client) resolveID(ctx context.Context, v interface{}) (interface{}, error) {
	var tickets []*modify.Ticket
	collect := func(e interface{}) {
		switch x := e.(type) {
		case *modify.Ticket:
			tickets = append(tickets, x)
		case modify.Ref:
			if t := x.Ticket(); t != nil {
				tickets = append(tickets, t)
			}
		}
	}
	if refs, ok := v.([]modify.Ref); ok {
		l := make([]interface{}, len(refs))
		for i, r := range refs {
			l[i] = r
		}
		v = l
	}
	list, isList := v.([]interface{})
	if isList {
		for _, e := range list {
			collect(e)
		}
	} else {
		collect(v)
	}
	if len(tickets) == 0 {
		if r, ok := v.(modify.Ref); ok {
			id, _ := r.ID()
			return id, nil
		}
		if !isList {
			return v, nil
		}
	}
	if err := c.awaitTickets(ctx, tickets); err != nil {
		return nil, err
	}
	one := func(e interface{}) interface{} {
		switch x := e.(type) {
		case *modify.Ticket:
			id, _ := x.ID()
			return id
		case modify.Ref:
			id, _ := x.ID()
			return id
		}
		return e
	}
	if !isList {
		return one(v), nil
	}
	out := make([]interface{}, len(list))
	for i, e := range list {
		out[i] = one(e)
	}
	return out, nil
}

type flushHandler struct {
	c *Client
}

func (h *flushHandler) Handle(t worker.Task) {
	task := t.(*flushTask)
	c := h.c
	start := time.Now()
	flushBatchSize.Observe(float64(len(task.buf)))
	resp, err := c.ch.Modify(c.ctx, task.buf)
	if err == nil {
		err = c.resolveCreates(task, resp)
	}
	if err != nil {
		cmdFailedDurationFlush.Observe(time.Since(start).Seconds())
		log.Error("[client] flush failed",
			zap.Int("bytes", len(task.buf)),
			zap.Int("writes", len(task.seqs)),
			zap.Error(err))
	} else {
		cmdDurationFlush.Observe(time.Since(start).Seconds())
	}
	c.finishFlush(task, err)
}

// resolveCreates reads the (tmpId u32, id u32) pairs of a modify reply.
func (c *Client) resolveCreates(task *flushTask, resp []byte) error {
	if len(resp)%8 != 0 {
		return errors.WithStack(ErrUnexpectedResponse)
	}
	for i := 0; i < len(resp); i += 8 {
		tmpID := binary.LittleEndian.Uint32(resp[i:])
		id := binary.LittleEndian.Uint32(resp[i+4:])
		if id != 0 {
			c.arena.Resolve(tmpID, id)
		}
	}
	for _, t := range task.creates {
		if _, ok := t.ID(); !ok {
			c.arena.Fail(t.TmpID(), errors.Errorf("[client] no id for created node %d", t.TmpID()))
		}
	}
	return nil
}

func (c *Client) finishFlush(task *flushTask, err error) {
	if err != nil {
		for _, t := range task.creates {
			c.arena.Fail(t.TmpID(), err)
		}
	}
	c.mutations.Done(task.seqs...)
	task.done <- err
}
