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
	"bytes"
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/weaviate/refstore/adapters/repos/packstore"
	"github.com/weaviate/refstore/adapters/repos/reftable"
	"github.com/weaviate/refstore/entities/refs"
)

// ErrLockFailure is returned if the current value of a reference does not
// match the expectation of an update. No update of the batch was applied.
var ErrLockFailure = errors.New("reference does not match expected value")

// Result describes a committed segment
type Result struct {
	UpdateIndex uint64
	Pack        *packstore.Description
	Stats       reftable.Stats
	// Compacted is set if the new segment replaced segments of the stack
	Compacted bool
	Pruned    []*packstore.Description
}

// BatchUpdate applies a set of reference updates atomically as one new
// update index
type BatchUpdate struct {
	db      *Database
	updates []refs.Update
}

func (d *Database) NewBatchUpdate(updates ...refs.Update) *BatchUpdate {
	return &BatchUpdate{db: d, updates: updates}
}

// Apply is a shortcut for NewBatchUpdate(updates...).Execute(ctx)
func (d *Database) Apply(ctx context.Context, updates ...refs.Update) (*Result, error) {
	return d.NewBatchUpdate(updates...).Execute(ctx)
}

// Execute writes all updates into a single new segment and commits it.
// Either every update becomes visible or none does. Depending on the sizes
// at the top of the stack, the new segment may replace some of the newest
// segments by merging them with the batch.
//
// A packstore.ErrConflict means another writer committed concurrently, the
// batch may be retried as is.
func (b *BatchUpdate) Execute(ctx context.Context) (res *Result, err error) {
	started := time.Now()
	defer func() {
		b.db.metrics.BatchUpdate(resultLabel(err), len(b.updates), time.Since(started))
	}()

	if err := refs.ValidateBatch(b.updates); err != nil {
		return nil, err
	}

	// rejected before any pack is allocated, a write can not fix it
	for _, ref := range refs.Records(b.updates, 0) {
		if err := reftable.CheckRecord(b.db.cfg.Reftable, ref); err != nil {
			return nil, err
		}
	}

	if err := b.db.checkWritable(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	store := b.db.store
	pack, err := store.NewPack(ctx, packstore.SourceInsert)
	if err != nil {
		return nil, errors.Wrap(err, "allocate pack")
	}

	res, err = b.writeSegment(ctx, pack)
	if err != nil {
		b.db.abandon(ctx, pack)
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		b.db.abandon(ctx, pack)
		return nil, err
	}

	pack.AddFileExt(packstore.ExtReftable)
	pack.SetReftableStats(res.Stats)
	if err := store.Commit(ctx, []*packstore.Description{pack}, res.Pruned); err != nil {
		b.db.abandon(ctx, pack)
		if errors.Is(err, packstore.ErrConflict) {
			// the snapshot was outdated, retries have to list the store again
			b.db.ClearCache()
		}
		return nil, errors.Wrapf(err, "commit %s", pack.Name)
	}
	b.db.ClearCache()

	res.Pack = pack
	b.db.metrics.BytesWritten(packstore.SourceInsert.String(), res.Stats.Size)
	if res.Compacted {
		b.db.metrics.Compaction(triggerCommit, len(res.Pruned), time.Since(started))
	}

	b.db.logger.WithField("action", "refdb_apply").
		WithField("pack", pack.Name).
		WithField("update_index", res.UpdateIndex).
		WithField("updates", len(b.updates)).
		WithField("pruned", len(res.Pruned)).
		WithField("took", time.Since(started)).
		Debug("applied reference batch")

	return res, nil
}

// writeSegment streams the new segment into the reftable file of pack. The
// output is closed on every path.
func (b *BatchUpdate) writeSegment(ctx context.Context, pack *packstore.Description) (*Result, error) {
	out, err := b.db.store.WriteFile(ctx, pack, packstore.ExtReftable)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", pack.FileName(packstore.ExtReftable))
	}

	res, err := b.write(ctx, out)
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = errors.Wrapf(closeErr, "close %s", pack.FileName(packstore.ExtReftable))
	}
	if err != nil {
		return nil, err
	}

	return res, nil
}

func (b *BatchUpdate) write(ctx context.Context, out packstore.Output) (*Result, error) {
	b.db.lock.Lock()
	defer b.db.lock.Unlock()

	stack, err := b.db.Stack(ctx)
	if err != nil {
		return nil, err
	}

	if err := b.checkExpectations(stack); err != nil {
		return nil, err
	}

	updateIndex := stack.MaxUpdateIndex() + 1
	cfg := configureSegment(b.db.cfg.Reftable, out)

	var buf bytes.Buffer
	w := reftable.NewWriter(cfg, &buf).
		SetMinUpdateIndex(updateIndex).
		SetMaxUpdateIndex(updateIndex)
	if err := w.Add(refs.Records(b.updates, updateIndex)); err != nil {
		return nil, errors.Wrap(err, "write batch")
	}

	stats, err := w.Finish()
	if err != nil {
		return nil, errors.Wrap(err, "finish batch")
	}

	start := compactionStart(int64(buf.Len()), stack.sizes(), b.db.cfg.CompactOnCommit)
	if start == stack.Len() {
		if _, err := out.Write(buf.Bytes()); err != nil {
			return nil, errors.Wrap(err, "write segment")
		}
		return &Result{UpdateIndex: updateIndex, Stats: stats}, nil
	}

	stats, err = mergeTopOfStack(out, cfg, stack, start, buf.Bytes())
	if err != nil {
		return nil, err
	}

	return &Result{
		UpdateIndex: updateIndex,
		Stats:       stats,
		Compacted:   true,
		Pruned:      stack.descriptions(start),
	}, nil
}

func (b *BatchUpdate) checkExpectations(stack *Stack) error {
	for _, u := range b.updates {
		if u.Old == nil {
			continue
		}

		ref, ok, err := stack.exactRef(u.Name)
		if err != nil {
			return errors.Wrapf(err, "read %q", u.Name)
		}

		var current *refs.Ref
		if ok {
			current = &ref
		}

		if !u.Matches(current) {
			return errors.Wrapf(ErrLockFailure, "%q", u.Name)
		}
	}

	return nil
}

// mergeTopOfStack merges the segments from start upwards together with the
// new segment in buffer. Tombstones are kept, they may still shadow values
// in segments below start.
func mergeTopOfStack(out packstore.Output, cfg reftable.Config, stack *Stack,
	start int, buffer []byte,
) (reftable.Stats, error) {
	top, err := reftable.NewReader(buffer)
	if err != nil {
		return reftable.Stats{}, errors.Wrap(err, "open new segment")
	}

	c := reftable.NewCompactor(out).
		SetConfig(cfg).
		SetIncludeDeletes(true).
		AddAll(stack.readers(start)).
		Add(top)
	if err := c.Compact(); err != nil {
		return reftable.Stats{}, errors.Wrap(err, "merge top of stack")
	}

	return c.Stats(), nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return resultOK
	case errors.Is(err, ErrLockFailure):
		return resultLockFailure
	case errors.Is(err, packstore.ErrConflict):
		return resultConflict
	default:
		return resultError
	}
}
