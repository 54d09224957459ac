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
	"io"

	"github.com/pkg/errors"
	"github.com/weaviate/refstore/entities/refs"
)

// Compactor merges several segments into a single one. Tables are added
// oldest first; when a name appears in more than one table, the record of
// the table added last wins.
type Compactor struct {
	out            io.Writer
	cfg            Config
	tables         []*Reader
	includeDeletes bool

	minUpdateIndex *uint64
	maxUpdateIndex *uint64

	stats Stats
}

func NewCompactor(out io.Writer) *Compactor {
	return &Compactor{
		out: out,
		cfg: DefaultConfig(),
	}
}

func (c *Compactor) SetConfig(cfg Config) *Compactor {
	c.cfg = cfg
	return c
}

// SetIncludeDeletes controls whether tombstones are carried into the
// output. They must be kept whenever an older segment, which is not part of
// this compaction, may still hold a live value for the same name.
func (c *Compactor) SetIncludeDeletes(include bool) *Compactor {
	c.includeDeletes = include
	return c
}

func (c *Compactor) SetMinUpdateIndex(idx uint64) *Compactor {
	c.minUpdateIndex = &idx
	return c
}

func (c *Compactor) SetMaxUpdateIndex(idx uint64) *Compactor {
	c.maxUpdateIndex = &idx
	return c
}

func (c *Compactor) Add(table *Reader) *Compactor {
	c.tables = append(c.tables, table)
	return c
}

func (c *Compactor) AddAll(tables []*Reader) *Compactor {
	c.tables = append(c.tables, tables...)
	return c
}

func (c *Compactor) Stats() Stats {
	return c.stats
}

func (c *Compactor) updateIndexRange() (uint64, uint64) {
	lo, hi := c.tables[0].MinUpdateIndex(), c.tables[0].MaxUpdateIndex()
	for _, t := range c.tables[1:] {
		if t.MinUpdateIndex() < lo {
			lo = t.MinUpdateIndex()
		}
		if t.MaxUpdateIndex() > hi {
			hi = t.MaxUpdateIndex()
		}
	}

	if c.minUpdateIndex != nil {
		lo = *c.minUpdateIndex
	}
	if c.maxUpdateIndex != nil {
		hi = *c.maxUpdateIndex
	}

	return lo, hi
}

// Compact streams the k-way merge of all tables into the output
func (c *Compactor) Compact() error {
	if len(c.tables) == 0 {
		return errors.New("no tables to compact")
	}

	lo, hi := c.updateIndexRange()
	w := NewWriter(c.cfg, c.out).SetMinUpdateIndex(lo).SetMaxUpdateIndex(hi)

	cursors := make([]*cursor, len(c.tables))
	for i, t := range c.tables {
		cur, err := newCursor(t)
		if err != nil {
			return errors.Wrapf(err, "open table %d", i)
		}
		cursors[i] = cur
	}

	for {
		winner := -1
		for i, cur := range cursors {
			if cur.exhausted {
				continue
			}

			// ties go to the newer table, which comes later in the list
			if winner == -1 || !refs.Less(cursors[winner].ref.Name, cur.ref.Name) {
				winner = i
			}
		}

		if winner == -1 {
			break
		}

		ref := cursors[winner].ref
		for _, cur := range cursors {
			if cur.exhausted || cur.ref.Name != ref.Name {
				continue
			}
			if err := cur.advance(); err != nil {
				return err
			}
		}

		if ref.Value.IsDeleted() && !c.includeDeletes {
			continue
		}

		if err := w.WriteRef(ref); err != nil {
			return errors.Wrapf(err, "write %q", ref.Name)
		}
	}

	stats, err := w.Finish()
	if err != nil {
		return errors.Wrap(err, "finish compacted table")
	}

	c.stats = stats
	return nil
}

type cursor struct {
	it        *Iterator
	ref       refs.Ref
	exhausted bool
}

func newCursor(r *Reader) (*cursor, error) {
	c := &cursor{it: r.Iterator()}
	return c, c.advance()
}

func (c *cursor) advance() error {
	if c.it.Next() {
		c.ref = c.it.Ref()
		return nil
	}

	c.exhausted = true
	return c.it.Err()
}
