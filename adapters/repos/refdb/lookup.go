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
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/weaviate/refstore/adapters/repos/packstore"
	"github.com/weaviate/refstore/entities/refs"
)

var ErrSymbolicDepth = errors.New("symbolic reference chain too deep")

// Peeler resolves annotated tags of the object database
type Peeler interface {
	// Peel returns the object an annotated tag points to. isTag is false
	// if id is not an annotated tag.
	Peel(ctx context.Context, id refs.ObjectID) (peeled refs.ObjectID, isTag bool, err error)
}

// ExactRef returns the reference with exactly this name. A deleted or
// unknown reference is reported as not found.
func (d *Database) ExactRef(ctx context.Context, name string) (refs.Ref, bool, error) {
	stack, err := d.Stack(ctx)
	if err != nil {
		return refs.Ref{}, false, err
	}

	return stack.exactRef(name)
}

// Refs returns all live references starting with prefix, sorted by name
func (d *Database) Refs(ctx context.Context, prefix string) ([]refs.Ref, error) {
	stack, err := d.Stack(ctx)
	if err != nil {
		return nil, err
	}

	// oldest first, newer records overwrite older ones
	byName := map[string]refs.Ref{}
	for _, seg := range stack.segments {
		it := seg.Reader.SeekPrefix(prefix)
		for it.Next() {
			ref := it.Ref()
			byName[ref.Name] = ref
		}
		if err := it.Err(); err != nil {
			return nil, errors.Wrapf(err, "scan %s", seg.Desc.Name)
		}
	}

	out := make([]refs.Ref, 0, len(byName))
	for _, ref := range byName {
		if ref.Value.IsDeleted() {
			continue
		}
		out = append(out, ref)
	}

	sort.Slice(out, func(a, b int) bool {
		return refs.Less(out[a].Name, out[b].Name)
	})

	return out, nil
}

// Resolve follows symbolic references starting at name and returns the
// reference the chain ends at
func (d *Database) Resolve(ctx context.Context, name string) (refs.Ref, bool, error) {
	stack, err := d.Stack(ctx)
	if err != nil {
		return refs.Ref{}, false, err
	}

	current := name
	for depth := 0; depth <= refs.MaxSymbolicDepth; depth++ {
		ref, ok, err := stack.exactRef(current)
		if err != nil || !ok {
			return refs.Ref{}, false, err
		}

		if !ref.IsSymbolic() {
			return ref, true, nil
		}
		current = ref.Value.Target
	}

	return refs.Ref{}, false, errors.Wrapf(ErrSymbolicDepth, "more than %d levels below %q",
		refs.MaxSymbolicDepth, name)
}

// TipsWithObjectID returns all references pointing at id, either directly
// or through a peeled tag
func (d *Database) TipsWithObjectID(ctx context.Context, id refs.ObjectID) ([]refs.Ref, error) {
	all, err := d.Refs(ctx, "")
	if err != nil {
		return nil, err
	}

	var out []refs.Ref
	for _, ref := range all {
		switch ref.Value.Kind {
		case refs.KindObject:
			if ref.Value.ObjectID == id {
				out = append(out, ref)
			}
		case refs.KindPeeled:
			if ref.Value.ObjectID == id || ref.Value.Peeled == id {
				out = append(out, ref)
			}
		}
	}

	return out, nil
}

// Peel returns a copy of ref with the target of an annotated tag filled in.
// The update index of ref is kept, so callers can tell whether a cached
// peeled value is still current.
func (d *Database) Peel(ctx context.Context, ref refs.Ref, peeler Peeler) (refs.Ref, error) {
	if ref.Value.Kind != refs.KindObject {
		return ref, nil
	}

	peeled, isTag, err := peeler.Peel(ctx, ref.Value.ObjectID)
	if err != nil {
		return refs.Ref{}, errors.Wrapf(err, "peel %q", ref.Name)
	}

	if !isTag {
		return ref, nil
	}

	out := ref
	out.Value = refs.PeeledTag(ref.Value.ObjectID, peeled)
	return out, nil
}

func (d *Database) MaxUpdateIndex(ctx context.Context) (uint64, error) {
	stack, err := d.Stack(ctx)
	if err != nil {
		return 0, err
	}

	return stack.MaxUpdateIndex(), nil
}

// SegmentInfo describes one segment of the stack
type SegmentInfo struct {
	Name           string
	Source         packstore.Source
	Exts           string
	Size           int64
	RefCount       uint64
	MinUpdateIndex uint64
	MaxUpdateIndex uint64
	Compactable    bool
}

// Segments describes the stack, oldest segment first
func (d *Database) Segments(ctx context.Context) ([]SegmentInfo, error) {
	stack, err := d.Stack(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]SegmentInfo, stack.Len())
	for i, seg := range stack.segments {
		exts := make([]string, 0, len(packstore.AllExts))
		for _, ext := range packstore.AllExts {
			if seg.Desc.HasFileExt(ext) {
				exts = append(exts, ext.Extension())
			}
		}

		out[i] = SegmentInfo{
			Name:           seg.Desc.Name,
			Source:         seg.Desc.Source,
			Exts:           strings.Join(exts, ","),
			Size:           seg.Reader.Size(),
			RefCount:       seg.Reader.RefCount(),
			MinUpdateIndex: seg.Reader.MinUpdateIndex(),
			MaxUpdateIndex: seg.Reader.MaxUpdateIndex(),
			Compactable:    compactable(seg.Desc),
		}
	}

	return out, nil
}
