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
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spaolacci/murmur3"
	"github.com/weaviate/refstore/entities/refs"
	"github.com/willf/bloom"
)

const bloomFalsePositiveRate = 0.01

// Reader is a read-only view of a single segment. It is safe for concurrent
// use, the underlying bytes must never be modified.
type Reader struct {
	data   []byte
	header header
	footer footer
	blocks []indexEntry
	bloom  *bloom.BloomFilter
}

func NewReader(data []byte) (*Reader, error) {
	if len(data) < Overhead {
		return nil, errors.Wrapf(ErrCorrupt, "segment of %d bytes is too short", len(data))
	}

	h, err := parseHeader(data[:HeaderSize])
	if err != nil {
		return nil, err
	}

	f, err := parseFooter(data[len(data)-FooterSize:])
	if err != nil {
		return nil, err
	}

	checksummed := data[:len(data)-FooterSize+checksummedFooterBytes]
	if sum := murmur3.Sum32(checksummed); sum != f.checksum {
		return nil, errors.Wrapf(ErrCorrupt, "checksum mismatch: stored %x, computed %x",
			f.checksum, sum)
	}

	r := &Reader{data: data, header: h, footer: f}
	if err := r.loadBlocks(); err != nil {
		return nil, err
	}

	if err := r.initBloomFilter(); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Reader) loadBlocks() error {
	switch {
	case r.footer.blockCount == 0:
		return nil
	case r.footer.blockCount == 1:
		r.blocks = []indexEntry{{offset: HeaderSize}}
		return nil
	case r.footer.indexOffset == 0:
		return errors.Wrapf(ErrCorrupt, "%d blocks without an index", r.footer.blockCount)
	}

	pos := int(r.footer.indexOffset)
	if pos+indexBlockHeaderSize > len(r.data)-FooterSize || r.data[pos] != blockTypeIndex {
		return errors.Wrapf(ErrCorrupt, "no index block at offset %d", pos)
	}

	length := int(binary.BigEndian.Uint32(r.data[pos+1 : pos+5]))
	pos += indexBlockHeaderSize
	end := pos + length
	if end > len(r.data)-FooterSize {
		return errors.Wrap(ErrCorrupt, "index exceeds segment")
	}

	r.blocks = make([]indexEntry, 0, r.footer.blockCount)
	for pos < end {
		key, n, err := readString(r.data[:end], pos)
		if err != nil {
			return errors.Wrap(err, "read index key")
		}
		pos = n

		offset, n := binary.Uvarint(r.data[pos:end])
		if n <= 0 {
			return errors.Wrap(ErrCorrupt, "read index offset")
		}
		pos += n

		r.blocks = append(r.blocks, indexEntry{lastKey: key, offset: offset})
	}

	if len(r.blocks) != int(r.footer.blockCount) {
		return errors.Wrapf(ErrCorrupt, "index has %d entries, footer announces %d",
			len(r.blocks), r.footer.blockCount)
	}

	return nil
}

// initBloomFilter builds a filter over all names so lookups that miss can
// skip the segment without decoding a block
func (r *Reader) initBloomFilter() error {
	estimate := r.footer.refCount
	if estimate == 0 {
		estimate = 1
	}

	r.bloom = bloom.NewWithEstimates(uint(estimate), bloomFalsePositiveRate)

	it := r.Iterator()
	for it.Next() {
		r.bloom.AddString(it.Ref().Name)
	}

	return errors.Wrap(it.Err(), "build bloom filter")
}

func (r *Reader) Size() int64 {
	return int64(len(r.data))
}

func (r *Reader) RefCount() uint64 {
	return r.footer.refCount
}

func (r *Reader) BlockCount() int {
	return int(r.footer.blockCount)
}

func (r *Reader) BlockSize() int {
	return r.header.blockSize
}

func (r *Reader) MinUpdateIndex() uint64 {
	return r.header.minUpdateIndex
}

func (r *Reader) MaxUpdateIndex() uint64 {
	return r.header.maxUpdateIndex
}

// MayContain is false if name is definitely not part of the segment
func (r *Reader) MayContain(name string) bool {
	return r.bloom.TestString(name)
}

// Get returns the record for name, including tombstones. The second return
// value is false if the segment has no record for name.
func (r *Reader) Get(name string) (refs.Ref, bool, error) {
	if !r.MayContain(name) {
		return refs.Ref{}, false, nil
	}

	it := r.Seek(name)
	if !it.Next() {
		return refs.Ref{}, false, it.Err()
	}

	ref := it.Ref()
	if ref.Name != name {
		return refs.Ref{}, false, nil
	}

	return ref, true, nil
}

// Iterator returns all records in name order
func (r *Reader) Iterator() *Iterator {
	return &Iterator{r: r}
}

// Seek returns an iterator positioned before the first record whose name
// is greater or equal to name
func (r *Reader) Seek(name string) *Iterator {
	block := sort.Search(len(r.blocks), func(i int) bool {
		return !refs.Less(r.blocks[i].lastKey, name)
	})

	if len(r.blocks) == 1 {
		block = 0
	}

	return &Iterator{r: r, block: block, seek: name, seeking: true}
}

// SeekPrefix iterates over all records whose name starts with prefix
func (r *Reader) SeekPrefix(prefix string) *Iterator {
	it := r.Seek(prefix)
	it.prefix = prefix
	it.hasPrefix = true
	return it
}

// Iterator walks the records of a segment in name order
type Iterator struct {
	r     *Reader
	block int

	records []byte
	pos     int
	loaded  bool

	seek      string
	seeking   bool
	prefix    string
	hasPrefix bool

	current refs.Ref
	err     error
	done    bool
}

func (it *Iterator) Next() bool {
	for {
		if it.done || it.err != nil {
			return false
		}

		if !it.loaded || it.pos >= len(it.records) {
			if it.loaded {
				it.block++
			}

			if it.block >= len(it.r.blocks) {
				it.done = true
				return false
			}

			if err := it.loadBlock(); err != nil {
				it.err = err
				return false
			}
			continue
		}

		ref, next, err := it.r.decodeRecord(it.records, it.pos)
		if err != nil {
			it.err = err
			return false
		}
		it.pos = next

		if it.seeking {
			if refs.Less(ref.Name, it.seek) {
				continue
			}
			it.seeking = false
		}

		if it.hasPrefix && !strings.HasPrefix(ref.Name, it.prefix) {
			it.done = true
			return false
		}

		it.current = ref
		return true
	}
}

func (it *Iterator) loadBlock() error {
	offset := int(it.r.blocks[it.block].offset)
	limit := len(it.r.data) - FooterSize
	if offset+refBlockHeaderSize > limit || it.r.data[offset] != blockTypeRef {
		return errors.Wrapf(ErrCorrupt, "no ref block at offset %d", offset)
	}

	length := getUint24(it.r.data[offset+1 : offset+4])
	start := offset + refBlockHeaderSize
	if start+length > limit {
		return errors.Wrapf(ErrCorrupt, "ref block at offset %d exceeds segment", offset)
	}

	it.records = it.r.data[start : start+length]
	it.pos = 0
	it.loaded = true
	return nil
}

func (it *Iterator) Ref() refs.Ref {
	return it.current
}

func (it *Iterator) Err() error {
	return it.err
}

func (r *Reader) decodeRecord(in []byte, pos int) (refs.Ref, int, error) {
	var ref refs.Ref

	name, pos, err := readString(in, pos)
	if err != nil {
		return ref, 0, errors.Wrap(err, "read name")
	}
	ref.Name = name

	delta, n := binary.Uvarint(in[pos:])
	if n <= 0 {
		return ref, 0, errors.Wrapf(ErrCorrupt, "read update index of %q", name)
	}
	pos += n
	ref.UpdateIndex = r.header.minUpdateIndex + delta

	if pos >= len(in) {
		return ref, 0, errors.Wrapf(ErrCorrupt, "missing value kind of %q", name)
	}
	ref.Value.Kind = refs.Kind(in[pos])
	pos++

	switch ref.Value.Kind {
	case refs.KindDeleted:
	case refs.KindObject:
		if pos+refs.ObjectIDLength > len(in) {
			return ref, 0, errors.Wrapf(ErrCorrupt, "truncated object id of %q", name)
		}
		copy(ref.Value.ObjectID[:], in[pos:])
		pos += refs.ObjectIDLength
	case refs.KindPeeled:
		if pos+2*refs.ObjectIDLength > len(in) {
			return ref, 0, errors.Wrapf(ErrCorrupt, "truncated peeled ids of %q", name)
		}
		copy(ref.Value.ObjectID[:], in[pos:])
		copy(ref.Value.Peeled[:], in[pos+refs.ObjectIDLength:])
		pos += 2 * refs.ObjectIDLength
	case refs.KindSymbolic:
		target, next, err := readString(in, pos)
		if err != nil {
			return ref, 0, errors.Wrapf(err, "read symbolic target of %q", name)
		}
		ref.Value.Target = target
		pos = next
	default:
		return ref, 0, errors.Wrapf(ErrCorrupt, "unknown value kind %d of %q",
			ref.Value.Kind, name)
	}

	return ref, pos, nil
}

func readString(in []byte, pos int) (string, int, error) {
	length, n := binary.Uvarint(in[pos:])
	if n <= 0 {
		return "", 0, errors.Wrap(ErrCorrupt, "read length")
	}
	pos += n

	end := pos + int(length)
	if end > len(in) || end < pos {
		return "", 0, errors.Wrap(ErrCorrupt, "length exceeds block")
	}

	return string(in[pos:end]), end, nil
}
