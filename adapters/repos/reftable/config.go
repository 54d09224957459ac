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

import "github.com/pkg/errors"

const (
	DefaultRefBlockSize = 4 * 1024
	MinRefBlockSize     = 256
	MaxRefBlockSize     = maxUint24
)

// Config controls the shape of written segments. Readers do not need it,
// everything they require is stored in the segment itself.
type Config struct {
	RefBlockSize int
	AlignBlocks  bool
}

func DefaultConfig() Config {
	return Config{
		RefBlockSize: DefaultRefBlockSize,
		AlignBlocks:  true,
	}
}

func (c Config) Validate() error {
	if c.RefBlockSize < MinRefBlockSize || c.RefBlockSize > MaxRefBlockSize {
		return errors.Errorf("ref block size %d outside of [%d, %d]",
			c.RefBlockSize, MinRefBlockSize, MaxRefBlockSize)
	}

	return nil
}
