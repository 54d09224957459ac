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

package reftable

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/refstore/entities/refs"
)

func TestCompactor(t *testing.T) {
	oldData, _ := writeSegment(t, DefaultConfig(), 1, 1,
		refs.Ref{Name: "refs/heads/a", Value: refs.Object(oid(1)), UpdateIndex: 1},
		refs.Ref{Name: "refs/heads/b", Value: refs.Object(oid(1)), UpdateIndex: 1},
		refs.Ref{Name: "refs/heads/c", Value: refs.Object(oid(1)), UpdateIndex: 1},
	)
	midData, _ := writeSegment(t, DefaultConfig(), 2, 2,
		refs.Ref{Name: "refs/heads/b", Value: refs.Deleted(), UpdateIndex: 2},
		refs.Ref{Name: "refs/heads/d", Value: refs.Object(oid(2)), UpdateIndex: 2},
	)
	newData, _ := writeSegment(t, DefaultConfig(), 3, 3,
		refs.Ref{Name: "refs/heads/a", Value: refs.Object(oid(3)), UpdateIndex: 3},
		refs.Ref{Name: "refs/heads/d", Value: refs.Deleted(), UpdateIndex: 3},
	)
	tables := []*Reader{openSegment(t, oldData), openSegment(t, midData), openSegment(t, newData)}

	t.Run("newest table wins, deletes dropped", func(t *testing.T) {
		var out bytes.Buffer
		c := NewCompactor(&out).AddAll(tables)
		require.NoError(t, c.Compact())

		merged := openSegment(t, out.Bytes())
		assert.Equal(t, []refs.Ref{
			{Name: "refs/heads/a", Value: refs.Object(oid(3)), UpdateIndex: 3},
			{Name: "refs/heads/c", Value: refs.Object(oid(1)), UpdateIndex: 1},
		}, collect(t, merged.Iterator()))

		stats := c.Stats()
		assert.Equal(t, uint64(2), stats.RefCount)
		assert.Equal(t, int64(out.Len()), stats.Size)
		assert.Equal(t, uint64(1), stats.MinUpdateIndex)
		assert.Equal(t, uint64(3), stats.MaxUpdateIndex)
	})

	t.Run("deletes included", func(t *testing.T) {
		var out bytes.Buffer
		c := NewCompactor(&out).SetIncludeDeletes(true).AddAll(tables[1:])
		require.NoError(t, c.Compact())

		merged := openSegment(t, out.Bytes())
		assert.Equal(t, []refs.Ref{
			{Name: "refs/heads/a", Value: refs.Object(oid(3)), UpdateIndex: 3},
			{Name: "refs/heads/b", Value: refs.Deleted(), UpdateIndex: 2},
			{Name: "refs/heads/d", Value: refs.Deleted(), UpdateIndex: 3},
		}, collect(t, merged.Iterator()))
		assert.Equal(t, uint64(2), merged.MinUpdateIndex())
		assert.Equal(t, uint64(3), merged.MaxUpdateIndex())
	})

	t.Run("order of tables decides", func(t *testing.T) {
		var out bytes.Buffer
		c := NewCompactor(&out).
			Add(tables[2]).
			Add(tables[0])
		require.NoError(t, c.Compact())

		a, ok, err := openSegment(t, out.Bytes()).Get("refs/heads/a")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, refs.Object(oid(1)), a.Value)
	})

	t.Run("update index range override", func(t *testing.T) {
		var out bytes.Buffer
		c := NewCompactor(&out).
			SetMinUpdateIndex(0).
			SetMaxUpdateIndex(10).
			AddAll(tables)
		require.NoError(t, c.Compact())

		merged := openSegment(t, out.Bytes())
		assert.Equal(t, uint64(0), merged.MinUpdateIndex())
		assert.Equal(t, uint64(10), merged.MaxUpdateIndex())
	})

	t.Run("config is applied", func(t *testing.T) {
		var out bytes.Buffer
		c := NewCompactor(&out).
			SetConfig(Config{RefBlockSize: MinRefBlockSize}).
			AddAll(tables)
		require.NoError(t, c.Compact())
		assert.Equal(t, MinRefBlockSize, openSegment(t, out.Bytes()).BlockSize())
	})

	t.Run("no tables", func(t *testing.T) {
		assert.Error(t, NewCompactor(&bytes.Buffer{}).Compact())
	})
}

func TestCompactor_LargeMerge(t *testing.T) {
	cfg := Config{RefBlockSize: MinRefBlockSize, AlignBlocks: true}

	var tables []*Reader
	var expected []refs.Ref
	for i := uint64(1); i <= 4; i++ {
		records := manyRefs(50, i)
		data, _ := writeSegment(t, cfg, i, i, records...)
		tables = append(tables, openSegment(t, data))
		expected = records
	}

	var out bytes.Buffer
	c := NewCompactor(&out).SetConfig(cfg).AddAll(tables)
	require.NoError(t, c.Compact())

	merged := openSegment(t, out.Bytes())
	assert.Equal(t, expected, collect(t, merged.Iterator()))
	assert.True(t, c.Stats().HasIndex())
}
