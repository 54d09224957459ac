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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/weaviate/refstore/adapters/repos/packstore"
)

func TestLog2(t *testing.T) {
	tests := []struct {
		in       int64
		expected int
	}{
		{in: -10, expected: 0},
		{in: 0, expected: 0},
		{in: 1, expected: 1},
		{in: 2, expected: 2},
		{in: 3, expected: 2},
		{in: 4, expected: 3},
		{in: 1000, expected: 10},
		{in: 1024, expected: 11},
		{in: 2000, expected: 11},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, log2(test.in), "log2(%d)", test.in)
	}
}

func TestAdjustedSize(t *testing.T) {
	assert.Equal(t, int64(0), adjustedSize(segmentOverhead))
	assert.Equal(t, int64(1000), adjustedSize(1000+segmentOverhead))
	assert.Equal(t, int64(-2), adjustedSize(segmentOverhead-2))
}

// sized returns a stack entry whose adjusted size is n
func sized(n int64, compactable bool) segmentSize {
	return segmentSize{size: n + segmentOverhead, compactable: compactable}
}

func TestCompactionStart(t *testing.T) {
	buffer := int64(1000 + segmentOverhead)

	tests := []struct {
		name     string
		stack    []segmentSize
		disabled bool
		expected int
	}{
		{
			name:     "empty stack",
			expected: 0,
		},
		{
			name:     "compaction disabled",
			stack:    []segmentSize{sized(1000, true)},
			disabled: true,
			expected: 1,
		},
		{
			name:     "equally sized top is merged",
			stack:    []segmentSize{sized(1000, true)},
			expected: 0,
		},
		{
			name:     "much larger top is left alone",
			stack:    []segmentSize{sized(100000, true)},
			expected: 1,
		},
		{
			name:     "incompatible top prevents any merge",
			stack:    []segmentSize{sized(1000, true), sized(1000, false)},
			expected: 2,
		},
		{
			name:     "walk stops at incompatible segment",
			stack:    []segmentSize{sized(1000, false), sized(1000, true)},
			expected: 1,
		},
		{
			name: "last extension is kept when larger segments follow",
			stack: []segmentSize{
				sized(800000, true), sized(100000, true), sized(1000, true),
			},
			expected: 2,
		},
		{
			name: "range extends past a segment that did not extend it",
			stack: []segmentSize{
				sized(20000, true), sized(20000, true), sized(1000, true),
			},
			expected: 0,
		},
		{
			name: "geometric run is merged completely",
			stack: []segmentSize{
				sized(4000, true), sized(2000, true), sized(1000, true),
			},
			expected: 0,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := compactionStart(buffer, test.stack, !test.disabled)
			assert.Equal(t, test.expected, got)
		})
	}
}

func TestCompactionTail(t *testing.T) {
	assert.Equal(t, 0, compactionTail(nil))
	assert.Equal(t, 0, compactionTail([]segmentSize{sized(1, true), sized(1, true)}))
	assert.Equal(t, 1, compactionTail([]segmentSize{sized(1, false), sized(1, true)}))
	assert.Equal(t, 2, compactionTail([]segmentSize{sized(1, true), sized(1, false)}))
}

func TestCompactable(t *testing.T) {
	desc := func(source packstore.Source, exts ...packstore.Ext) *packstore.Description {
		d := &packstore.Description{Name: "pack", Source: source}
		for _, ext := range exts {
			d.AddFileExt(ext)
		}
		return d
	}

	tests := []struct {
		name     string
		desc     *packstore.Description
		expected bool
	}{
		{
			name:     "insert with reftable only",
			desc:     desc(packstore.SourceInsert, packstore.ExtReftable),
			expected: true,
		},
		{
			name:     "compaction with reftable only",
			desc:     desc(packstore.SourceCompact, packstore.ExtReftable),
			expected: true,
		},
		{
			name:     "gc pack with objects",
			desc:     desc(packstore.SourceGC, packstore.ExtPack, packstore.ExtIndex, packstore.ExtReftable),
			expected: false,
		},
		{
			name:     "insert that also carries objects",
			desc:     desc(packstore.SourceInsert, packstore.ExtPack, packstore.ExtReftable),
			expected: false,
		},
		{
			name:     "received reftable",
			desc:     desc(packstore.SourceReceive, packstore.ExtReftable),
			expected: false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, compactable(test.desc))
		})
	}
}
