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
	"encoding/binary"

	"github.com/pkg/errors"
)

// On-disk layout of a segment:
//
//	header | ref block 0 | ref block 1 | ... | index block | footer
//
// The header lives inside the frame of the first ref block. With aligned
// blocks every ref block but the last is padded with zeros to the block
// size. The index block is only present if there is more than one ref
// block.
const (
	Magic   = "RSEG"
	Version = 1

	HeaderSize = 24
	FooterSize = 28

	// Overhead is the fixed number of bytes every segment carries
	// independently of its records
	Overhead = HeaderSize + FooterSize

	blockTypeRef   byte = 'r'
	blockTypeIndex byte = 'i'

	refBlockHeaderSize   = 4
	indexBlockHeaderSize = 5

	maxUint24 = 1<<24 - 1
)

var (
	ErrCorrupt            = errors.New("corrupt segment")
	ErrBlockSizeTooSmall  = errors.New("record does not fit into block size")
	ErrUnsortedRecords    = errors.New("records must be added in ascending name order")
	ErrUpdateIndexOutside = errors.New("update index outside of segment range")
)

type header struct {
	version        uint8
	blockSize      int
	minUpdateIndex uint64
	maxUpdateIndex uint64
}

func (h header) marshal() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], Magic)
	buf[4] = h.version
	putUint24(buf[5:8], h.blockSize)
	binary.BigEndian.PutUint64(buf[8:16], h.minUpdateIndex)
	binary.BigEndian.PutUint64(buf[16:24], h.maxUpdateIndex)
	return buf
}

func parseHeader(in []byte) (header, error) {
	var h header
	if len(in) < HeaderSize {
		return h, errors.Wrap(ErrCorrupt, "header too short")
	}

	if string(in[0:4]) != Magic {
		return h, errors.Wrapf(ErrCorrupt, "unexpected header magic %q", in[0:4])
	}

	h.version = in[4]
	if h.version != Version {
		return h, errors.Wrapf(ErrCorrupt, "unsupported version %d", h.version)
	}

	h.blockSize = getUint24(in[5:8])
	h.minUpdateIndex = binary.BigEndian.Uint64(in[8:16])
	h.maxUpdateIndex = binary.BigEndian.Uint64(in[16:24])
	return h, nil
}

type footer struct {
	indexOffset uint64
	refCount    uint64
	blockCount  uint32
	checksum    uint32
}

// checksummedFooterBytes is the part of the footer covered by the checksum
const checksummedFooterBytes = 20

func (f footer) marshalUnchecked() []byte {
	buf := make([]byte, checksummedFooterBytes)
	binary.BigEndian.PutUint64(buf[0:8], f.indexOffset)
	binary.BigEndian.PutUint64(buf[8:16], f.refCount)
	binary.BigEndian.PutUint32(buf[16:20], f.blockCount)
	return buf
}

func (f footer) marshalTrailer() []byte {
	buf := make([]byte, FooterSize-checksummedFooterBytes)
	binary.BigEndian.PutUint32(buf[0:4], f.checksum)
	copy(buf[4:8], Magic)
	return buf
}

func parseFooter(in []byte) (footer, error) {
	var f footer
	if len(in) != FooterSize {
		return f, errors.Wrap(ErrCorrupt, "footer has wrong size")
	}

	if string(in[24:28]) != Magic {
		return f, errors.Wrapf(ErrCorrupt, "unexpected footer magic %q", in[24:28])
	}

	f.indexOffset = binary.BigEndian.Uint64(in[0:8])
	f.refCount = binary.BigEndian.Uint64(in[8:16])
	f.blockCount = binary.BigEndian.Uint32(in[16:20])
	f.checksum = binary.BigEndian.Uint32(in[20:24])
	return f, nil
}

func putUint24(buf []byte, v int) {
	buf[0] = byte(v >> 16)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v)
}

func getUint24(buf []byte) int {
	return int(buf[0])<<16 | int(buf[1])<<8 | int(buf[2])
}
