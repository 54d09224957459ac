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

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/weaviate/refstore/adapters/repos/packstore"
	"github.com/weaviate/refstore/adapters/repos/reftable"
	enterrors "github.com/weaviate/refstore/entities/errors"
	"github.com/weaviate/refstore/entities/refs"
)

// Segment is a committed pack holding references together with a reader
// over its reftable file
type Segment struct {
	Desc   *packstore.Description
	Reader *reftable.Reader
}

// Stack is an immutable snapshot of the reference segments, oldest first.
// A change never modifies a Stack, it produces a new one.
type Stack struct {
	segments []Segment
}

func (s *Stack) Len() int {
	return len(s.segments)
}

// Segments returns a copy of the segment list, oldest first
func (s *Stack) Segments() []Segment {
	out := make([]Segment, len(s.segments))
	copy(out, s.segments)
	return out
}

func (s *Stack) MaxUpdateIndex() uint64 {
	var out uint64
	for _, seg := range s.segments {
		if idx := seg.Reader.MaxUpdateIndex(); idx > out {
			out = idx
		}
	}
	return out
}

// get returns the newest record for name, which may be a tombstone
func (s *Stack) get(name string) (refs.Ref, bool, error) {
	for i := len(s.segments) - 1; i >= 0; i-- {
		ref, ok, err := s.segments[i].Reader.Get(name)
		if err != nil {
			return refs.Ref{}, false, errors.Wrapf(err, "segment %s", s.segments[i].Desc.Name)
		}
		if ok {
			return ref, true, nil
		}
	}

	return refs.Ref{}, false, nil
}

// exactRef is get without tombstones
func (s *Stack) exactRef(name string) (refs.Ref, bool, error) {
	ref, ok, err := s.get(name)
	if err != nil || !ok || ref.Value.IsDeleted() {
		return refs.Ref{}, false, err
	}
	return ref, true, nil
}

func (s *Stack) sizes() []segmentSize {
	out := make([]segmentSize, len(s.segments))
	for i, seg := range s.segments {
		out[i] = segmentSize{
			size:        seg.Reader.Size(),
			compactable: compactable(seg.Desc),
		}
	}
	return out
}

func (s *Stack) readers(from int) []*reftable.Reader {
	out := make([]*reftable.Reader, 0, len(s.segments)-from)
	for _, seg := range s.segments[from:] {
		out = append(out, seg.Reader)
	}
	return out
}

func (s *Stack) descriptions(from int) []*packstore.Description {
	out := make([]*packstore.Description, 0, len(s.segments)-from)
	for _, seg := range s.segments[from:] {
		out = append(out, seg.Desc)
	}
	return out
}

// buildStack lists the committed packs and opens a reader for every pack
// with a reftable file. Readers found in cached are reused, the others are
// loaded concurrently.
func buildStack(ctx context.Context, store packstore.Store,
	cached map[string]*reftable.Reader, logger logrus.FieldLogger,
) (*Stack, error) {
	packs, err := store.ListPacks(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list packs")
	}

	segments := make([]Segment, 0, len(packs))
	for _, desc := range packs {
		if !desc.HasFileExt(packstore.ExtReftable) {
			continue
		}
		segments = append(segments, Segment{Desc: desc, Reader: cached[desc.Name]})
	}

	eg := enterrors.NewErrorGroupWrapper(logger)
	for i := range segments {
		if segments[i].Reader != nil {
			continue
		}

		i := i
		desc := segments[i].Desc
		eg.Go(func() error {
			data, err := store.ReadFile(ctx, desc, packstore.ExtReftable)
			if err != nil {
				return errors.Wrapf(err, "read %s", desc.FileName(packstore.ExtReftable))
			}

			r, err := reftable.NewReader(data)
			if err != nil {
				return errors.Wrapf(err, "open %s", desc.FileName(packstore.ExtReftable))
			}

			segments[i].Reader = r
			return nil
		}, desc.Name)
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return &Stack{segments: segments}, nil
}
