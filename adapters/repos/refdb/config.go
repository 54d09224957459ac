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
	"time"

	"github.com/pkg/errors"
	"github.com/weaviate/refstore/adapters/repos/packstore"
	"github.com/weaviate/refstore/adapters/repos/reftable"
)

type Config struct {
	Reftable reftable.Config

	// CompactOnCommit merges the top of the stack into new segments while
	// applying batches. Without it every batch adds a segment.
	CompactOnCommit bool

	// CompactionInterval paces the background full compaction, zero
	// disables it
	CompactionInterval time.Duration
	// MaxSegments is the number of segments above which the background
	// cycle compacts the stack
	MaxSegments int
}

func DefaultConfig() Config {
	return Config{
		Reftable:        reftable.DefaultConfig(),
		CompactOnCommit: true,
		MaxSegments:     8,
	}
}

func (c Config) Validate() error {
	if err := c.Reftable.Validate(); err != nil {
		return errors.Wrap(err, "reftable")
	}

	if c.CompactionInterval < 0 {
		return errors.Errorf("negative compaction interval %s", c.CompactionInterval)
	}

	if c.MaxSegments < 1 {
		return errors.Errorf("max segments must be at least 1, got %d", c.MaxSegments)
	}

	return nil
}

// configureSegment adapts cfg to the output a segment is written to. An
// output with a preferred block size gets aligned blocks of that size.
func configureSegment(cfg reftable.Config, out packstore.Output) reftable.Config {
	if bs := out.BlockSize(); bs > 0 {
		cfg.RefBlockSize = bs
		cfg.AlignBlocks = true
	}
	return cfg
}
