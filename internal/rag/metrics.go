package rag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docchat",
		Subsystem: "rag",
		Name:      "queries_total",
		Help:      "Total queries processed, by outcome.",
	}, []string{"status"})

	queryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "docchat",
		Subsystem: "rag",
		Name:      "query_duration_seconds",
		Help:      "End-to-end query latency.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	branchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docchat",
		Subsystem: "rag",
		Name:      "branch_failures_total",
		Help:      "Retrieval branches that failed and were degraded.",
	}, []string{"kind"})

	fusedNodes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "docchat",
		Subsystem: "rag",
		Name:      "fused_nodes",
		Help:      "Context nodes surviving rank fusion per query.",
		Buckets:   prometheus.LinearBuckets(0, 2, 11),
	})
)
