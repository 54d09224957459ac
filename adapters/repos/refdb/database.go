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
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/weaviate/refstore/adapters/repos/packstore"
	"github.com/weaviate/refstore/adapters/repos/reftable"
	"github.com/weaviate/refstore/entities/cyclemanager"
	"github.com/weaviate/refstore/entities/storagestate"
)

const maxStackLoadAttempts = 16

// Database stores references as a stack of reftable segments on top of a
// pack store. Updates are applied as atomic batches, lookups read an
// immutable snapshot of the stack and never wait for writers.
type Database struct {
	store   packstore.Store
	cfg     Config
	logger  logrus.FieldLogger
	metrics *Metrics

	// lock serializes taking a stack snapshot, deciding what to merge and
	// writing the new segment. It is never held during a commit.
	lock sync.Mutex

	cacheLock  sync.RWMutex
	stack      *Stack
	generation uint64
	readers    map[string]*reftable.Reader

	statusLock sync.RWMutex
	status     storagestate.Status

	compactionCycle cyclemanager.CycleManager
}

// New opens a database over store. The database owns the store from now on
// and closes it on Shutdown.
func New(store packstore.Store, cfg Config, logger logrus.FieldLogger,
	metrics *Metrics,
) (*Database, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	d := &Database{
		store:   store,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		readers: map[string]*reftable.Reader{},
		status:  storagestate.StatusReady,
	}

	d.compactionCycle = cyclemanager.NewNoop()
	if cfg.CompactionInterval > 0 {
		d.compactionCycle = cyclemanager.New(
			cyclemanager.NewFixedTicker(cfg.CompactionInterval),
			d.compactIfNeeded, logger)
	}
	d.compactionCycle.Start()

	return d, nil
}

// Stack returns the current snapshot of the reference segments
func (d *Database) Stack(ctx context.Context) (*Stack, error) {
	d.cacheLock.RLock()
	stack, generation := d.stack, d.generation
	d.cacheLock.RUnlock()

	if stack != nil {
		return stack, nil
	}

	d.cacheLock.RLock()
	cached := make(map[string]*reftable.Reader, len(d.readers))
	for name, r := range d.readers {
		cached[name] = r
	}
	d.cacheLock.RUnlock()

	stack, err := d.loadStack(ctx, cached)
	if err != nil {
		return nil, err
	}

	d.cacheLock.Lock()
	defer d.cacheLock.Unlock()

	// a commit that happened while building may not be covered by the
	// listing, such a stack is used once but never cached
	if d.generation == generation {
		d.stack = stack
		d.readers = make(map[string]*reftable.Reader, stack.Len())
		for _, seg := range stack.segments {
			d.readers[seg.Desc.Name] = seg.Reader
		}
	}

	d.metrics.SegmentCount(stack.Len())
	return stack, nil
}

// loadStack builds a stack from the live packs. A pack pruned by a
// concurrent commit between listing and reading is gone from the store, the
// listing is repeated in that case.
func (d *Database) loadStack(ctx context.Context, cached map[string]*reftable.Reader) (*Stack, error) {
	var err error
	for attempt := 1; attempt <= maxStackLoadAttempts; attempt++ {
		var stack *Stack
		stack, err = buildStack(ctx, d.store, cached, d.logger)
		if err == nil {
			return stack, nil
		}
		if !errors.Is(err, packstore.ErrNotFound) || ctx.Err() != nil {
			return nil, err
		}

		d.logger.WithField("action", "refdb_load_stack").
			WithField("attempt", attempt).
			WithError(err).
			Debug("pack pruned while loading the stack, listing again")
	}

	// the stack kept changing underneath, a retry of the caller is safe
	return nil, errors.Wrapf(packstore.ErrConflict,
		"stack changed during %d loads: %v", maxStackLoadAttempts, err)
}

// ClearCache drops the cached stack, the next reader lists the pack store
// again. Readers of unchanged segments are reused.
func (d *Database) ClearCache() {
	d.cacheLock.Lock()
	defer d.cacheLock.Unlock()

	d.stack = nil
	d.generation++
}

func (d *Database) UpdateStatus(status storagestate.Status) {
	d.statusLock.Lock()
	defer d.statusLock.Unlock()

	d.logger.WithField("action", "refdb_update_status").
		WithField("status", status).
		Debug("update store status")
	d.status = status
}

func (d *Database) Status() storagestate.Status {
	d.statusLock.RLock()
	defer d.statusLock.RUnlock()

	return d.status
}

func (d *Database) checkWritable() error {
	if !d.Status().AllowsWrites() {
		return storagestate.ErrStatusReadOnly
	}
	return nil
}

func (d *Database) abandon(ctx context.Context, pack *packstore.Description) {
	if err := d.store.Abandon(ctx, pack); err != nil {
		d.logger.WithField("action", "refdb_abandon").
			WithField("pack", pack.Name).
			WithError(err).
			Warn("abandon uncommitted pack")
	}
}

// Shutdown stops background compaction and closes the pack store
func (d *Database) Shutdown(ctx context.Context) error {
	var result *multierror.Error

	if err := d.compactionCycle.StopAndWait(ctx); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "stop compaction cycle"))
	}

	if err := d.store.Close(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "close pack store"))
	}

	d.cacheLock.Lock()
	d.stack = nil
	d.generation++
	d.readers = map[string]*reftable.Reader{}
	d.cacheLock.Unlock()

	return result.ErrorOrNil()
}
