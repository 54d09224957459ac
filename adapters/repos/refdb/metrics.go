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

package refdb

import (
	"time"

	"github.com/weaviate/refstore/usecases/monitoring"
)

const (
	resultOK          = "ok"
	resultLockFailure = "lock_failure"
	resultConflict    = "conflict"
	resultError       = "error"

	triggerCommit = "commit"
	triggerFull   = "full"
)

// Metrics wraps the prometheus collectors of a Database. A nil *Metrics or
// one created from nil collectors is valid and records nothing.
type Metrics struct {
	enabled bool
	prom    *monitoring.PrometheusMetrics
}

func NewMetrics(prom *monitoring.PrometheusMetrics) *Metrics {
	return &Metrics{enabled: prom != nil, prom: prom}
}

func (m *Metrics) on() bool {
	return m != nil && m.enabled
}

func (m *Metrics) BatchUpdate(result string, refs int, took time.Duration) {
	if !m.on() {
		return
	}

	m.prom.BatchUpdates.WithLabelValues(result).Inc()
	if result == resultOK {
		m.prom.BatchUpdateRefs.Add(float64(refs))
		m.prom.BatchUpdateDuration.Observe(took.Seconds())
	}
}

func (m *Metrics) Compaction(trigger string, pruned int, took time.Duration) {
	if !m.on() {
		return
	}

	m.prom.Compactions.WithLabelValues(trigger).Inc()
	m.prom.CompactionDuration.WithLabelValues(trigger).Observe(took.Seconds())
	m.prom.SegmentsPruned.Add(float64(pruned))
}

func (m *Metrics) BytesWritten(source string, n int64) {
	if !m.on() {
		return
	}

	m.prom.BytesWritten.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) SegmentCount(n int) {
	if !m.on() {
		return
	}

	m.prom.Segments.Set(float64(n))
}
