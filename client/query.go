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

	"github.com/atelier-saulx/based-sub007/query"
	"github.com/atelier-saulx/based-sub007/schema"
	"github.com/opentracing/opentracing-go"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// Query records builder calls so that the definition can be rebuilt
// against whatever schema is current when it runs. A Query may be run more
// than once but must not be modified concurrently with Get.
type Query struct {
	c        *Client
	typeName string
	target   interface{}
	steps    []func(*query.Def)
}

// Response is the result of a query.
type Response struct {
	Data []byte
	// SchemaChecksum is the schema the query was finally built against.
	SchemaChecksum uint64
	// Latency runs from encoding the final attempt to its response.
	Latency time.Duration
	// Retries counts the rebuilds caused by schema changes.
	Retries int
	// Errors holds validation errors when the client collects them instead
	// of failing. Data is empty in that case.
	Errors []query.ErrorEntry
}

// Query starts a query on typeName. target is nil for all nodes, an id, a
// ticket, a list of those, or a map holding an alias value.
func (c *Client) Query(typeName string, target interface{}) *Query {
	return &Query{c: c, typeName: typeName, target: target}
}

func (q *Query) step(f func(*query.Def)) *Query {
	q.steps = append(q.steps, f)
	return q
}

func (q *Query) Filter(field string, op query.Operator, value interface{}, opts ...query.FilterOpts) *Query {
	return q.step(func(def *query.Def) { def.Filter(field, op, value, opts...) })
}

func (q *Query) Or(field string, op query.Operator, value interface{}, opts ...query.FilterOpts) *Query {
	return q.step(func(def *query.Def) { def.Or(field, op, value, opts...) })
}

func (q *Query) Sort(field string, order ...string) *Query {
	return q.step(func(def *query.Def) { def.Sort(field, order...) })
}

func (q *Query) Range(offset, limit int64) *Query {
	return q.step(func(def *query.Def) { def.Range(offset, limit) })
}

func (q *Query) Include(fields ...string) *Query {
	return q.step(func(def *query.Def) { def.Include(fields...) })
}

func (q *Query) Search(term string, fields ...string) *Query {
	return q.step(func(def *query.Def) { def.Search(term, fields...) })
}

func (q *Query) SearchVector(vec interface{}, field string, opts ...query.FilterOpts) *Query {
	return q.step(func(def *query.Def) { def.SearchVector(vec, field, opts...) })
}

func (q *Query) Locale(lang string) *Query {
	return q.step(func(def *query.Def) { def.Locale(lang) })
}

func (q *Query) Count() *Query {
	return q.step(func(def *query.Def) { def.Count() })
}

func (q *Query) Sum(fields ...string) *Query {
	return q.step(func(def *query.Def) { def.Sum(fields...) })
}

func (q *Query) Avg(fields ...string) *Query {
	return q.step(func(def *query.Def) { def.Avg(fields...) })
}

func (q *Query) Min(fields ...string) *Query {
	return q.step(func(def *query.Def) { def.Min(fields...) })
}

func (q *Query) Max(fields ...string) *Query {
	return q.step(func(def *query.Def) { def.Max(fields...) })
}

func (q *Query) GroupBy(field string, step ...interface{}) *Query {
	return q.step(func(def *query.Def) { def.GroupBy(field, step...) })
}

// Def builds the definition against snap without registering it.
func (q *Query) Def(snap *schema.Snapshot) *query.Def {
	return q.build(snap, q.target)
}

func (q *Query) build(snap *schema.Snapshot, target interface{}) *query.Def {
	def := query.New(snap, q.typeName, target, query.WithMaxIDs(q.c.cfg.Query.MaxIDs))
	if lang := q.c.cfg.Query.DefaultLocale; lang != "" {
		def.Locale(lang)
	}
	for _, f := range q.steps {
		f(def)
	}
	return def
}

// Get runs the query. Writes issued before Get are visible to it. When the
// schema changes while the query is built or in flight, the query is rebuilt
// against the new schema and sent again; that is not an error.
func (q *Query) Get(ctx context.Context) (*Response, error) {
	if span := opentracing.SpanFromContext(ctx); span != nil {
		span = opentracing.StartSpan("client.Query.Get", opentracing.ChildOf(span.Context()))
		defer span.Finish()
		ctx = opentracing.ContextWithSpan(ctx, span)
	}
	start := time.Now()
	resp, err := q.get(ctx)
	if err != nil {
		cmdFailedDurationGet.Observe(time.Since(start).Seconds())
		return nil, err
	}
	cmdDurationGet.Observe(time.Since(start).Seconds())
	return resp, nil
}

func (q *Query) get(ctx context.Context) (*Response, error) {
	c := q.c
	if c.closed.Load() {
		return nil, errClosing
	}
	mark := c.mutations.Mark()

	snap, err := c.state.Wait(ctx)
	if err != nil {
		return nil, err
	}
	target, err := c.resolveID(ctx, q.target)
	if err != nil {
		return nil, err
	}

	retries := 0
	for {
		start := time.Now()
		def := q.build(snap, target)
		buf, err := query.Register(def)
		if err != nil {
			if qe, ok := errors.Cause(err).(*query.Error); ok && c.cfg.Query.CollectErrors {
				return &Response{
					SchemaChecksum: snap.Checksum,
					Latency:        time.Since(start),
					Retries:        retries,
					Errors:         qe.Entries,
				}, nil
			}
			return nil, err
		}

		if err := c.drain(ctx, mark); err != nil {
			return nil, err
		}

		if cur := c.state.Snapshot(); cur.Checksum != def.SchemaChecksum {
			log.Debug("[client] schema changed while building query",
				zap.String("query", def.Name()),
				zap.Uint64("built", def.SchemaChecksum),
				zap.Uint64("current", cur.Checksum))
			queryRetriesChanged.Inc()
			retries++
			snap = cur
			continue
		}

		res, err := c.ch.Query(ctx, buf)
		if err != nil {
			return nil, err
		}
		if len(res) != 1 {
			return &Response{
				Data:           res,
				SchemaChecksum: def.SchemaChecksum,
				Latency:        time.Since(start),
				Retries:        retries,
			}, nil
		}
		if res[0] != staleSchema {
			return nil, errors.WithStack(ErrUnexpectedResponse)
		}

		log.Info("[client] query rejected for stale schema",
			zap.String("query", def.Name()),
			zap.Uint64("schema", def.SchemaChecksum),
			zap.Int("retries", retries))
		queryRetriesStale.Inc()
		retries++
		if err := c.pace(ctx); err != nil {
			return nil, err
		}
		// The engine is ahead of us; wait until we learn about the new
		// schema. If it already arrived this returns at once.
		if snap, err = c.state.WaitChange(ctx, def.SchemaChecksum); err != nil {
			return nil, err
		}
	}
}

// pace takes a token from the retry bucket, sleeping when it is empty.
func (c *Client) pace(ctx context.Context) error {
	d := c.limiter.Take(1)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}
}
