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

// Package client builds query and modify buffers against the current schema
// and exchanges them with the engine. Queries that the engine rejects for a
// stale schema are rebuilt and resent transparently.
package client

import (
	"context"
	"sync"
	"time"

	"github.com/atelier-saulx/based-sub007/config"
	"github.com/atelier-saulx/based-sub007/modify"
	"github.com/atelier-saulx/based-sub007/util/worker"
	"github.com/juju/ratelimit"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Channel carries request buffers to the engine and returns its reply.
// Implementations must be safe for concurrent use.
type Channel interface {
	Query(ctx context.Context, buf []byte) ([]byte, error)
	Modify(ctx context.Context, buf []byte) ([]byte, error)
}

var (
	// ErrUnexpectedResponse is returned for a reply the client cannot
	// interpret.
	ErrUnexpectedResponse = errors.New("[client] unexpected response")

	errClosing = errors.New("[client] closing")
)

// staleSchema is the one byte reply to a query built against a schema the
// engine no longer serves.
const staleSchema = 0

// Client is safe for concurrent use. Every query owns its definition and
// buffer; the schema state, the write batch and the pending write set are
// shared.
type Client struct {
	cfg   *config.Config
	ch    Channel
	state *State

	arena     *modify.Arena
	mutations *mutations
	limiter   *ratelimit.Bucket

	batchMu    sync.Mutex
	batch      *batch
	flushTimer *time.Timer

	flusher *worker.Worker
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	closed  atomic.Bool
}

// NewClient creates a client that talks to the engine over ch. state may be
// shared with whatever delivers schema updates; nil creates a fresh one.
func NewClient(cfg *config.Config, ch Channel, state *State) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if state == nil {
		state = NewState()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:       cfg,
		ch:        ch,
		state:     state,
		arena:     modify.NewArena(),
		mutations: newMutations(),
		limiter:   ratelimit.NewBucketWithRate(cfg.Retry.Rate, cfg.Retry.Burst),
		ctx:       ctx,
		cancel:    cancel,
	}
	c.batch = c.newBatch()
	c.flusher = worker.NewWorker("modify-flush", 0, &c.wg)
	c.flusher.Start(&flushHandler{c: c})
	log.Info("[client] init",
		zap.Uint64("max-buffer-size", uint64(cfg.Modify.MaxBufferSize)),
		zap.Duration("flush-delay", cfg.Modify.FlushDelay.Duration))
	return c, nil
}

// State returns the schema state of the client.
func (c *Client) State() *State {
	return c.state
}

// Pending returns the number of writes not yet acknowledged by the engine.
func (c *Client) Pending() int {
	return c.mutations.Len()
}

// Close flushes the current batch, waits for the flush to finish and stops
// the client. Calls after Close fail.
func (c *Client) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.batchMu.Lock()
	c.flushLocked()
	c.batchMu.Unlock()
	c.flusher.Stop()
	c.wg.Wait()
	c.cancel()
	log.Info("[client] closed")
}
