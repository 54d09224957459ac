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

package packstore

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	// ErrConflict is returned by Commit if the live set of packs changed in a
	// way that makes the commit unsafe. Nothing was changed, the caller may
	// retry.
	ErrConflict   = errors.New("concurrent pack commit conflict")
	ErrNotFound   = errors.New("pack file not found")
	ErrNotWritten = errors.New("pack file was not written")
	ErrClosed     = errors.New("pack store closed")
)

// Store is a durable store of immutable pack files. Files are written
// against an allocated description and only become visible through an
// atomic Commit, which can retire older packs in the same step.
type Store interface {
	NewPack(ctx context.Context, source Source) (*Description, error)
	WriteFile(ctx context.Context, desc *Description, ext Ext) (Output, error)
	ReadFile(ctx context.Context, desc *Description, ext Ext) ([]byte, error)
	// Commit makes added visible and removes prune from visibility in one
	// atomic step. On error the visible state is unchanged.
	Commit(ctx context.Context, added, prune []*Description) error
	// Abandon drops everything written for an uncommitted pack
	Abandon(ctx context.Context, desc *Description) error
	// ListPacks returns the committed packs in commit order, oldest first
	ListPacks(ctx context.Context) ([]*Description, error)
	Close() error
}

// Output receives the bytes of a single pack file
type Output interface {
	io.WriteCloser
	// BlockSize is the preferred write granularity of the store, 0 if it
	// has no preference
	BlockSize() int
}

type Option func(*options)

type options struct {
	blockSize int
	now       func() time.Time
}

func WithBlockSize(size int) Option {
	return func(o *options) {
		o.blockSize = size
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func makeOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newDescription(source Source, now time.Time) *Description {
	return &Description{
		Name:      "pack-" + uuid.NewString() + "-" + source.String(),
		Source:    source,
		CreatedAt: now,
	}
}

// staging holds the files of packs that were written but not yet committed
type staging struct {
	sync.Mutex
	files map[string]map[Ext][]byte
}

func newStaging() *staging {
	return &staging{files: map[string]map[Ext][]byte{}}
}

func (s *staging) put(name string, ext Ext, data []byte) {
	s.Lock()
	defer s.Unlock()

	if s.files[name] == nil {
		s.files[name] = map[Ext][]byte{}
	}
	s.files[name][ext] = data
}

// take returns the staged files of desc, it fails if any extension the
// description announces was never written
func (s *staging) take(desc *Description) (map[Ext][]byte, error) {
	s.Lock()
	defer s.Unlock()

	staged := s.files[desc.Name]
	for _, ext := range AllExts {
		if !desc.HasFileExt(ext) {
			continue
		}
		if _, ok := staged[ext]; !ok {
			return nil, errors.Wrapf(ErrNotWritten, "%s", desc.FileName(ext))
		}
	}

	return staged, nil
}

func (s *staging) drop(name string) {
	s.Lock()
	defer s.Unlock()

	delete(s.files, name)
}

type bufferedOutput struct {
	buf       bytes.Buffer
	blockSize int
	closed    bool
	onClose   func(data []byte)
}

func (o *bufferedOutput) Write(p []byte) (int, error) {
	if o.closed {
		return 0, errors.New("write to closed pack output")
	}
	return o.buf.Write(p)
}

func (o *bufferedOutput) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true
	o.onClose(o.buf.Bytes())
	return nil
}

func (o *bufferedOutput) BlockSize() int {
	return o.blockSize
}

// validateCommit checks added and prune against the live packs and returns
// the live packs after the commit. Packs holding references must be added
// in update index order, a pack that does not supersede every surviving
// reference pack lost a race against another writer.
func validateCommit(live, added, prune []*Description) ([]*Description, error) {
	if len(added) == 0 && len(prune) == 0 {
		return live, nil
	}

	pruned := make(map[string]struct{}, len(prune))
	for _, p := range prune {
		pruned[p.Name] = struct{}{}
	}

	found := 0
	next := make([]*Description, 0, len(live)+len(added))
	var maxUpdateIndex uint64
	liveNames := make(map[string]struct{}, len(live))
	for _, d := range live {
		liveNames[d.Name] = struct{}{}
		if _, ok := pruned[d.Name]; ok {
			found++
			continue
		}

		if d.HasFileExt(ExtReftable) && d.MaxUpdateIndex > maxUpdateIndex {
			maxUpdateIndex = d.MaxUpdateIndex
		}
		next = append(next, d)
	}

	if found != len(pruned) {
		return nil, errors.Wrapf(ErrConflict, "%d of %d packs to prune are no longer live",
			len(pruned)-found, len(pruned))
	}

	for _, d := range added {
		if _, ok := liveNames[d.Name]; ok {
			return nil, errors.Wrapf(ErrConflict, "pack %s is already committed", d.Name)
		}

		if d.HasFileExt(ExtReftable) {
			if d.MaxUpdateIndex <= maxUpdateIndex {
				return nil, errors.Wrapf(ErrConflict,
					"pack %s has update index %d, live packs reached %d",
					d.Name, d.MaxUpdateIndex, maxUpdateIndex)
			}
			maxUpdateIndex = d.MaxUpdateIndex
		}

		next = append(next, d)
	}

	return next, nil
}
