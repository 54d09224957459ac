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
	"encoding/binary"
	"hash"
	"io"
	"sort"

	"github.com/pkg/errors"
	"github.com/spaolacci/murmur3"
	"github.com/weaviate/refstore/entities/refs"
)

// Stats describes a finished segment
type Stats struct {
	RefCount       uint64
	BlockCount     int
	IndexSize      int64
	Size           int64
	MinUpdateIndex uint64
	MaxUpdateIndex uint64
}

func (s Stats) HasIndex() bool {
	return s.IndexSize > 0
}

type indexEntry struct {
	lastKey string
	offset  uint64
}

// Writer serializes reference records into a single immutable segment.
// Records are streamed, only the current block is held in memory.
type Writer struct {
	cfg Config
	out *countingWriter

	minUpdateIndex uint64
	maxUpdateIndex uint64

	begun    bool
	finished bool

	block      bytes.Buffer
	blockStart uint64
	lastKey    string
	hasLast    bool
	index      []indexEntry
	stats      Stats
	scratch    [binary.MaxVarintLen64]byte
}

func NewWriter(cfg Config, w io.Writer) *Writer {
	return &Writer{
		cfg: cfg,
		out: newCountingWriter(w),
	}
}

func (w *Writer) SetMinUpdateIndex(idx uint64) *Writer {
	w.minUpdateIndex = idx
	return w
}

func (w *Writer) SetMaxUpdateIndex(idx uint64) *Writer {
	w.maxUpdateIndex = idx
	return w
}

func (w *Writer) begin() error {
	if w.begun {
		return nil
	}

	if err := w.cfg.Validate(); err != nil {
		return err
	}

	if w.minUpdateIndex > w.maxUpdateIndex {
		return errors.Errorf("min update index %d above max update index %d",
			w.minUpdateIndex, w.maxUpdateIndex)
	}

	h := header{
		version:        Version,
		blockSize:      w.cfg.RefBlockSize,
		minUpdateIndex: w.minUpdateIndex,
		maxUpdateIndex: w.maxUpdateIndex,
	}
	if _, err := w.out.Write(h.marshal()); err != nil {
		return errors.Wrap(err, "write header")
	}

	w.blockStart = HeaderSize
	w.begun = true
	return nil
}

// Add writes a batch of records. The batch is sorted by name first, it
// must not contain duplicate names nor names lower than anything written
// before.
func (w *Writer) Add(records []refs.Ref) error {
	sorted := make([]refs.Ref, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(a, b int) bool {
		return refs.Less(sorted[a].Name, sorted[b].Name)
	})

	for i := range sorted {
		if err := w.WriteRef(sorted[i]); err != nil {
			return err
		}
	}

	return nil
}

// WriteRef appends a single record, names must be strictly ascending
func (w *Writer) WriteRef(ref refs.Ref) error {
	if w.finished {
		return errors.New("writer already finished")
	}

	if err := w.begin(); err != nil {
		return err
	}

	if w.hasLast && !refs.Less(w.lastKey, ref.Name) {
		return errors.Wrapf(ErrUnsortedRecords, "%q after %q", ref.Name, w.lastKey)
	}

	if ref.UpdateIndex < w.minUpdateIndex || ref.UpdateIndex > w.maxUpdateIndex {
		return errors.Wrapf(ErrUpdateIndexOutside, "%q has %d, segment has [%d, %d]",
			ref.Name, ref.UpdateIndex, w.minUpdateIndex, w.maxUpdateIndex)
	}

	rec, err := w.encodeRecord(ref)
	if err != nil {
		return err
	}

	if w.block.Len()+len(rec) > w.blockCapacity() {
		if w.block.Len() == 0 {
			return errors.Wrapf(ErrBlockSizeTooSmall, "%q needs %d bytes, block size is %d",
				ref.Name, len(rec), w.cfg.RefBlockSize)
		}

		if err := w.flushBlock(true); err != nil {
			return err
		}

		if len(rec) > w.blockCapacity() {
			return errors.Wrapf(ErrBlockSizeTooSmall, "%q needs %d bytes, block size is %d",
				ref.Name, len(rec), w.cfg.RefBlockSize)
		}
	}

	w.block.Write(rec)
	w.lastKey = ref.Name
	w.hasLast = true
	w.stats.RefCount++
	return nil
}

// blockCapacity is the number of record bytes that fit into the current
// block. The first block shares its frame with the header.
func (w *Writer) blockCapacity() int {
	capacity := w.cfg.RefBlockSize - refBlockHeaderSize
	if len(w.index) == 0 {
		capacity -= HeaderSize
	}
	return capacity
}

// CheckRecord returns ErrBlockSizeTooSmall if ref does not fit into a block
// of a segment written with cfg. Records are checked against the first
// block at the largest update index delta, a record that passes fits
// anywhere in any segment it is merged into.
func CheckRecord(cfg Config, ref refs.Ref) error {
	size := uvarintLen(uint64(len(ref.Name))) + len(ref.Name) + binary.MaxVarintLen64 + 1
	switch ref.Value.Kind {
	case refs.KindObject:
		size += refs.ObjectIDLength
	case refs.KindPeeled:
		size += 2 * refs.ObjectIDLength
	case refs.KindSymbolic:
		size += uvarintLen(uint64(len(ref.Value.Target))) + len(ref.Value.Target)
	}

	if capacity := cfg.RefBlockSize - refBlockHeaderSize - HeaderSize; size > capacity {
		return errors.Wrapf(ErrBlockSizeTooSmall, "%q needs up to %d bytes, block size is %d",
			ref.Name, size, cfg.RefBlockSize)
	}
	return nil
}

func uvarintLen(v uint64) int {
	var buf [binary.MaxVarintLen64]byte
	return binary.PutUvarint(buf[:], v)
}

func (w *Writer) encodeRecord(ref refs.Ref) ([]byte, error) {
	var buf bytes.Buffer

	n := binary.PutUvarint(w.scratch[:], uint64(len(ref.Name)))
	buf.Write(w.scratch[:n])
	buf.WriteString(ref.Name)

	n = binary.PutUvarint(w.scratch[:], ref.UpdateIndex-w.minUpdateIndex)
	buf.Write(w.scratch[:n])

	buf.WriteByte(byte(ref.Value.Kind))
	switch ref.Value.Kind {
	case refs.KindDeleted:
	case refs.KindObject:
		buf.Write(ref.Value.ObjectID[:])
	case refs.KindPeeled:
		buf.Write(ref.Value.ObjectID[:])
		buf.Write(ref.Value.Peeled[:])
	case refs.KindSymbolic:
		n = binary.PutUvarint(w.scratch[:], uint64(len(ref.Value.Target)))
		buf.Write(w.scratch[:n])
		buf.WriteString(ref.Value.Target)
	default:
		return nil, errors.Errorf("unknown value kind %d for %q", ref.Value.Kind, ref.Name)
	}

	return buf.Bytes(), nil
}

func (w *Writer) flushBlock(pad bool) error {
	if w.block.Len() == 0 {
		return nil
	}

	hdr := make([]byte, refBlockHeaderSize)
	hdr[0] = blockTypeRef
	putUint24(hdr[1:4], w.block.Len())
	if _, err := w.out.Write(hdr); err != nil {
		return errors.Wrap(err, "write block header")
	}

	if _, err := w.out.Write(w.block.Bytes()); err != nil {
		return errors.Wrap(err, "write block")
	}

	w.index = append(w.index, indexEntry{lastKey: w.lastKey, offset: w.blockStart})
	w.block.Reset()

	if pad && w.cfg.AlignBlocks {
		blockSize := uint64(w.cfg.RefBlockSize)
		if rem := w.out.written % blockSize; rem != 0 {
			if _, err := w.out.Write(make([]byte, blockSize-rem)); err != nil {
				return errors.Wrap(err, "write block padding")
			}
		}
	}

	w.blockStart = w.out.written
	return nil
}

func (w *Writer) writeIndex() error {
	var payload bytes.Buffer
	for _, entry := range w.index {
		n := binary.PutUvarint(w.scratch[:], uint64(len(entry.lastKey)))
		payload.Write(w.scratch[:n])
		payload.WriteString(entry.lastKey)
		n = binary.PutUvarint(w.scratch[:], entry.offset)
		payload.Write(w.scratch[:n])
	}

	hdr := make([]byte, indexBlockHeaderSize)
	hdr[0] = blockTypeIndex
	binary.BigEndian.PutUint32(hdr[1:5], uint32(payload.Len()))
	if _, err := w.out.Write(hdr); err != nil {
		return errors.Wrap(err, "write index header")
	}

	if _, err := w.out.Write(payload.Bytes()); err != nil {
		return errors.Wrap(err, "write index")
	}

	return nil
}

// Finish flushes the last block, the index and the footer. The writer must
// not be used afterwards.
func (w *Writer) Finish() (Stats, error) {
	if w.finished {
		return w.stats, errors.New("writer already finished")
	}

	if err := w.begin(); err != nil {
		return w.stats, err
	}

	if err := w.flushBlock(false); err != nil {
		return w.stats, err
	}

	f := footer{
		refCount:   w.stats.RefCount,
		blockCount: uint32(len(w.index)),
	}

	if len(w.index) > 1 {
		f.indexOffset = w.out.written
		if err := w.writeIndex(); err != nil {
			return w.stats, err
		}
		w.stats.IndexSize = int64(w.out.written - f.indexOffset)
	}

	if _, err := w.out.Write(f.marshalUnchecked()); err != nil {
		return w.stats, errors.Wrap(err, "write footer")
	}

	f.checksum = w.out.hash.Sum32()
	if _, err := w.out.Write(f.marshalTrailer()); err != nil {
		return w.stats, errors.Wrap(err, "write footer checksum")
	}

	w.finished = true
	w.stats.BlockCount = len(w.index)
	w.stats.Size = int64(w.out.written)
	w.stats.MinUpdateIndex = w.minUpdateIndex
	w.stats.MaxUpdateIndex = w.maxUpdateIndex
	return w.stats, nil
}

type countingWriter struct {
	w       io.Writer
	hash    hash.Hash32
	written uint64
}

func newCountingWriter(w io.Writer) *countingWriter {
	return &countingWriter{w: w, hash: murmur3.New32()}
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.hash.Write(p[:n])
	c.written += uint64(n)
	return n, err
}
