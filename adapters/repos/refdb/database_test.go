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
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/refstore/adapters/repos/packstore"
	"github.com/weaviate/refstore/entities/refs"
	"github.com/weaviate/refstore/entities/storagestate"
	"github.com/weaviate/refstore/usecases/monitoring"
)

func TestNew_InvalidConfig(t *testing.T) {
	logger, _ := test.NewNullLogger()

	cfg := DefaultConfig()
	cfg.Reftable.RefBlockSize = 10
	_, err := New(packstore.NewMemory(), cfg, logger, nil)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.MaxSegments = 0
	_, err = New(packstore.NewMemory(), cfg, logger, nil)
	assert.Error(t, err)
}

func TestDatabase_StackCache(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.CompactOnCommit = false
	db := testDatabase(t, packstore.NewMemory(), cfg)

	empty, err := db.Stack(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
	assert.Equal(t, uint64(0), empty.MaxUpdateIndex())

	_, err = db.Apply(ctx, refs.Set("refs/heads/a", refs.Object(oid(1))))
	require.NoError(t, err)

	first, err := db.Stack(ctx)
	require.NoError(t, err)
	again, err := db.Stack(ctx)
	require.NoError(t, err)
	assert.Same(t, first, again, "stack is cached until the next change")
	assert.Equal(t, 0, empty.Len(), "snapshots are never modified")

	_, err = db.Apply(ctx, refs.Set("refs/heads/b", refs.Object(oid(2))))
	require.NoError(t, err)

	second, err := db.Stack(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, second.Len())
	assert.Equal(t, 1, first.Len())
	assert.Same(t, first.Segments()[0].Reader, second.Segments()[0].Reader,
		"readers of unchanged segments are reused")

	db.ClearCache()
	third, err := db.Stack(ctx)
	require.NoError(t, err)
	assert.NotSame(t, second, third)
	assert.Equal(t, second.Segments(), third.Segments())
}

func TestDatabase_Status(t *testing.T) {
	db := testDatabase(t, packstore.NewMemory(), DefaultConfig())
	assert.Equal(t, storagestate.StatusReady, db.Status())

	db.UpdateStatus(storagestate.StatusReadOnly)
	assert.Equal(t, storagestate.StatusReadOnly, db.Status())
}

func TestDatabase_Metrics(t *testing.T) {
	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	prom := monitoring.NewPrometheusMetrics(prometheus.NewRegistry())

	cfg := DefaultConfig()
	db, err := New(packstore.NewMemory(), cfg, logger, NewMetrics(prom))
	require.NoError(t, err)
	defer db.Shutdown(ctx)

	_, err = db.Apply(ctx,
		refs.Create("refs/heads/a", oid(1)),
		refs.Create("refs/heads/b", oid(1)),
	)
	require.NoError(t, err)
	_, err = db.Apply(ctx, refs.Create("refs/heads/a", oid(2)))
	require.ErrorIs(t, err, ErrLockFailure)

	// same shape as the first batch, merged with it
	res, err := db.Apply(ctx,
		refs.Create("refs/heads/c", oid(1)),
		refs.Create("refs/heads/d", oid(1)),
	)
	require.NoError(t, err)
	require.True(t, res.Compacted)

	_, err = db.Segments(ctx)
	require.NoError(t, err)

	assert.Equal(t, float64(2), testutil.ToFloat64(prom.BatchUpdates.WithLabelValues(resultOK)))
	assert.Equal(t, float64(1), testutil.ToFloat64(prom.BatchUpdates.WithLabelValues(resultLockFailure)))
	assert.Equal(t, float64(4), testutil.ToFloat64(prom.BatchUpdateRefs))
	assert.Equal(t, float64(1), testutil.ToFloat64(prom.Compactions.WithLabelValues(triggerCommit)))
	assert.Equal(t, float64(1), testutil.ToFloat64(prom.SegmentsPruned))
	assert.Equal(t, float64(1), testutil.ToFloat64(prom.Segments))
	assert.Greater(t, testutil.ToFloat64(prom.BytesWritten.WithLabelValues("INSERT")), float64(0))
}

func TestDatabase_NilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.BatchUpdate(resultOK, 1, 0)
		m.Compaction(triggerFull, 1, 0)
		m.BytesWritten("INSERT", 1)
		m.SegmentCount(1)
	})

	m = NewMetrics(nil)
	assert.NotPanics(t, func() {
		m.BatchUpdate(resultOK, 1, 0)
		m.SegmentCount(1)
	})
}

func TestDatabase_BoltReopen(t *testing.T) {
	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	path := filepath.Join(t.TempDir(), "refs.db")

	open := func() *Database {
		store, err := packstore.OpenBolt(path, logger)
		require.NoError(t, err)
		db, err := New(store, DefaultConfig(), logger, nil)
		require.NoError(t, err)
		return db
	}

	db := open()
	for i := 0; i < 10; i++ {
		_, err := db.Apply(ctx,
			refs.Set(batchName(i, 0), refs.Object(oid(byte(i)))),
			refs.Set(batchName(i, 1), refs.Object(oid(byte(i)))),
		)
		require.NoError(t, err)
	}
	_, err := db.Apply(ctx, refs.Delete(batchName(3, 1)))
	require.NoError(t, err)

	expected, err := db.Refs(ctx, "")
	require.NoError(t, err)
	expectedSegments := segmentNames(t, db)
	require.NoError(t, db.Shutdown(ctx))

	_, err = db.Refs(ctx, "")
	assert.ErrorIs(t, err, packstore.ErrClosed)

	db = open()
	defer db.Shutdown(ctx)

	got, err := db.Refs(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, expected, got)
	assert.Len(t, got, 19)
	assert.Equal(t, expectedSegments, segmentNames(t, db))

	idx, err := db.MaxUpdateIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), idx)
}
