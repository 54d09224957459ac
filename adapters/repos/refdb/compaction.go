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
	"time"

	"github.com/pkg/errors"
	"github.com/weaviate/refstore/adapters/repos/packstore"
	"github.com/weaviate/refstore/adapters/repos/reftable"
	"github.com/weaviate/refstore/entities/cyclemanager"
)

// Compact merges the longest run of compactable segments at the top of the
// stack into a single segment. Tombstones are dropped if the run reaches the
// bottom of the stack, nothing older is left that they could shadow. A nil
// Result means there was nothing to compact.
func (d *Database) Compact(ctx context.Context) (*Result, error) {
	if err := d.checkWritable(); err != nil {
		return nil, err
	}

	started := time.Now()
	pack, err := d.store.NewPack(ctx, packstore.SourceCompact)
	if err != nil {
		return nil, errors.Wrap(err, "allocate pack")
	}

	res, err := d.writeCompaction(ctx, pack)
	if err != nil || res == nil {
		d.abandon(ctx, pack)
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		d.abandon(ctx, pack)
		return nil, err
	}

	pack.AddFileExt(packstore.ExtReftable)
	pack.SetReftableStats(res.Stats)
	if err := d.store.Commit(ctx, []*packstore.Description{pack}, res.Pruned); err != nil {
		d.abandon(ctx, pack)
		if errors.Is(err, packstore.ErrConflict) {
			d.ClearCache()
		}
		return nil, errors.Wrapf(err, "commit %s", pack.Name)
	}
	d.ClearCache()

	res.Pack = pack
	took := time.Since(started)
	d.metrics.BytesWritten(packstore.SourceCompact.String(), res.Stats.Size)
	d.metrics.Compaction(triggerFull, len(res.Pruned), took)

	d.logger.WithField("action", "refdb_compaction").
		WithField("pack", pack.Name).
		WithField("pruned", len(res.Pruned)).
		WithField("refs", res.Stats.RefCount).
		WithField("size", res.Stats.Size).
		WithField("took", took).
		Info("compacted reference stack")

	return res, nil
}

func (d *Database) writeCompaction(ctx context.Context, pack *packstore.Description) (*Result, error) {
	out, err := d.store.WriteFile(ctx, pack, packstore.ExtReftable)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", pack.FileName(packstore.ExtReftable))
	}

	res, err := d.compactTail(ctx, out)
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = errors.Wrapf(closeErr, "close %s", pack.FileName(packstore.ExtReftable))
	}
	if err != nil {
		return nil, err
	}

	return res, nil
}

func (d *Database) compactTail(ctx context.Context, out packstore.Output) (*Result, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	stack, err := d.Stack(ctx)
	if err != nil {
		return nil, err
	}

	start := compactionTail(stack.sizes())
	if stack.Len()-start < 2 {
		return nil, nil
	}

	c := reftable.NewCompactor(out).
		SetConfig(configureSegment(d.cfg.Reftable, out)).
		SetIncludeDeletes(start > 0).
		AddAll(stack.readers(start))
	if err := c.Compact(); err != nil {
		return nil, errors.Wrap(err, "compact stack")
	}

	return &Result{
		UpdateIndex: stack.MaxUpdateIndex(),
		Stats:       c.Stats(),
		Compacted:   true,
		Pruned:      stack.descriptions(start),
	}, nil
}

// compactIfNeeded is the background compaction cycle. It only compacts
// once the stack grew beyond the configured number of segments.
func (d *Database) compactIfNeeded(shouldAbort cyclemanager.ShouldBreakFunc) bool {
	if shouldAbort() || !d.Status().AllowsWrites() {
		return false
	}

	ctx := context.Background()
	stack, err := d.Stack(ctx)
	if err != nil {
		d.logger.WithField("action", "refdb_compaction").
			WithError(err).
			Error("load reference stack")
		return false
	}

	if stack.Len() <= d.cfg.MaxSegments {
		return false
	}

	res, err := d.Compact(ctx)
	if err != nil {
		d.logger.WithField("action", "refdb_compaction").
			WithField("segments", stack.Len()).
			WithError(err).
			Warn("background compaction failed")
		return false
	}

	return res != nil
}
