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
	"math/bits"

	"github.com/weaviate/refstore/adapters/repos/packstore"
	"github.com/weaviate/refstore/adapters/repos/reftable"
)

// segmentOverhead is the fixed size of an empty segment. It is subtracted
// from every size so that the log2 levels reflect the records only.
const segmentOverhead = reftable.Overhead

func adjustedSize(size int64) int64 {
	return size - segmentOverhead
}

// log2 is the number of significant bits of sz, 0 for sz <= 0
func log2(sz int64) int {
	if sz <= 0 {
		return 0
	}
	return bits.Len64(uint64(sz))
}

// compactable reports whether a segment may be rewritten by a merge. Only
// segments that hold nothing but references and were produced by an insert
// or an earlier compaction qualify, shared packs are never rewritten.
func compactable(desc *packstore.Description) bool {
	if !desc.OnlyContains(packstore.ExtReftable) {
		return false
	}

	switch desc.Source {
	case packstore.SourceInsert, packstore.SourceCompact:
		return true
	default:
		return false
	}
}

type segmentSize struct {
	size        int64
	compactable bool
}

// compactionStart returns the index of the oldest segment that has to be
// merged together with a new segment of bufferSize bytes. Walking down from
// the new segment, the range is extended whenever the cumulative size of the
// walked run reaches a higher log2 level than its largest single member.
// The start only ever moves down. A result of len(stack) means the new
// segment is written on its own.
func compactionStart(bufferSize int64, stack []segmentSize, enabled bool) int {
	start := len(stack)

	var cumulative int64
	maxLog2 := 0
	for i := len(stack); i >= 0; i-- {
		if !enabled {
			break
		}

		var sz int64
		if i == len(stack) {
			sz = adjustedSize(bufferSize)
		} else if !stack[i].compactable {
			break
		} else {
			sz = adjustedSize(stack[i].size)
		}

		cumulative += sz
		if l := log2(sz); l > maxLog2 {
			maxLog2 = l
		}

		if log2(cumulative) > maxLog2 {
			start = i
		}
	}

	return start
}

// compactionTail returns the start of the longest compactable run at the
// top of the stack
func compactionTail(stack []segmentSize) int {
	start := len(stack)
	for start > 0 && stack[start-1].compactable {
		start--
	}
	return start
}
