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

import "github.com/prometheus/client_golang/prometheus"

var (
	cmdDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "based_client",
			Subsystem: "cmd",
			Name:      "handle_cmds_duration_seconds",
			Help:      "Bucketed histogram of processing time (s) of handled success cmds.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 13),
		}, []string{"type"})

	cmdFailedDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "based_client",
			Subsystem: "cmd",
			Name:      "handle_failed_cmds_duration_seconds",
			Help:      "Bucketed histogram of processing time (s) of failed handled cmds.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 13),
		}, []string{"type"})

	queryRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "based_client",
			Subsystem: "query",
			Name:      "schema_retries_total",
			Help:      "Counter of queries rebuilt because their schema was outdated.",
		}, []string{"reason"})

	flushBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "based_client",
			Subsystem: "modify",
			Name:      "flush_batch_bytes",
			Help:      "Bucketed histogram of the size of flushed modify buffers.",
			Buckets:   prometheus.ExponentialBuckets(64, 2, 20),
		})
)

var (
	// WithLabelValues is a heavy operation, define variable to avoid call it every time.
	cmdDurationGet    = cmdDuration.WithLabelValues("get")
	cmdDurationFlush  = cmdDuration.WithLabelValues("flush")
	cmdDurationCreate = cmdDuration.WithLabelValues("create")
	cmdDurationUpdate = cmdDuration.WithLabelValues("update")

	cmdFailedDurationGet    = cmdFailedDuration.WithLabelValues("get")
	cmdFailedDurationFlush  = cmdFailedDuration.WithLabelValues("flush")
	cmdFailedDurationCreate = cmdFailedDuration.WithLabelValues("create")
	cmdFailedDurationUpdate = cmdFailedDuration.WithLabelValues("update")

	queryRetriesStale   = queryRetries.WithLabelValues("stale")
	queryRetriesChanged = queryRetries.WithLabelValues("changed")
)

func init() {
	prometheus.MustRegister(cmdDuration)
	prometheus.MustRegister(cmdFailedDuration)
	prometheus.MustRegister(queryRetries)
	prometheus.MustRegister(flushBatchSize)
}
