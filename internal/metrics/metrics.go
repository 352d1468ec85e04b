// Package metrics registers the Prometheus instruments shared by the cache
// engine and the order pipeline. Everything uses the default registry and is
// exposed via promhttp in cmd/server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheLookups counts cache-aside reads by outcome: hit, miss, tombstone,
	// stale (logical expiry served past its deadline).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache-aside lookups by outcome.",
	}, []string{"outcome"})

	// CacheRebuilds counts asynchronous logical-expiry rebuilds by result.
	CacheRebuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_rebuilds_total",
		Help: "Asynchronous cache rebuilds by result.",
	}, []string{"result"})

	// AdmissionVerdicts counts admission-gate outcomes.
	AdmissionVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seckill_admission_verdicts_total",
		Help: "Admission gate verdicts.",
	}, []string{"verdict"})

	// OrderCommits counts order pipeline commit results: committed,
	// rolled_back_duplicate, rolled_back_understock, lock_contended, error.
	OrderCommits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_commits_total",
		Help: "Order pipeline commit results.",
	}, []string{"result"})

	// QueueDepth tracks the number of tasks waiting in the order queue.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "order_queue_depth",
		Help: "Tasks currently queued for commit.",
	})

	// QueueRejections counts enqueue attempts refused because the bounded
	// queue was saturated. Any increase here is an operator-level event.
	QueueRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_queue_rejections_total",
		Help: "Enqueue attempts rejected due to a full queue.",
	})
)
