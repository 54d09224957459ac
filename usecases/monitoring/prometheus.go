//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2025 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "refstore"

// PrometheusMetrics is the set of collectors of a reference store. All
// collectors are registered on the Registerer passed to
// NewPrometheusMetrics.
type PrometheusMetrics struct {
	Registerer prometheus.Registerer

	BatchUpdates        *prometheus.CounterVec
	BatchUpdateDuration prometheus.Histogram
	BatchUpdateRefs     prometheus.Counter

	Segments           prometheus.Gauge
	SegmentsPruned     prometheus.Counter
	Compactions        *prometheus.CounterVec
	CompactionDuration *prometheus.HistogramVec
	BytesWritten       *prometheus.CounterVec
}

// NewPrometheusMetrics registers all collectors on reg. A nil reg disables
// registration, the collectors still work but are never exported.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = noop
	}

	f := promauto.With(reg)
	return &PrometheusMetrics{
		Registerer: reg,

		BatchUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_updates_total",
			Help:      "Number of applied reference batches by result",
		}, []string{"result"}),
		BatchUpdateDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_update_duration_seconds",
			Help:      "Duration of applying a reference batch including commit",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		BatchUpdateRefs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_update_refs_total",
			Help:      "Number of reference updates in successfully applied batches",
		}),

		Segments: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "segments",
			Help:      "Number of live segments on the reference stack",
		}),
		SegmentsPruned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_pruned_total",
			Help:      "Number of segments retired by compactions",
		}),
		Compactions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compactions_total",
			Help:      "Number of compactions by trigger",
		}, []string{"trigger"}),
		CompactionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compaction_duration_seconds",
			Help:      "Duration of writing a compacted segment",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"trigger"}),
		BytesWritten: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_bytes_written_total",
			Help:      "Bytes of segment data written by source",
		}, []string{"source"}),
	}
}
