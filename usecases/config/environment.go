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

package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	entcfg "github.com/weaviate/refstore/entities/config"
)

// FromEnv takes a *Config as it will respect initial config that has been
// provided by other means (e.g. a config file) and will only extend those that
// are set
func FromEnv(config *Config) error {
	if v := os.Getenv("REFSTORE_DATA_PATH"); v != "" {
		config.Persistence.DataPath = v
	}

	if v := os.Getenv("REFSTORE_STATUS"); v != "" {
		config.Persistence.Status = v
	}

	if err := parsePositiveInt("REFSTORE_STORE_BLOCK_SIZE", func(val int) {
		config.Persistence.StoreBlockSize = val
	}); err != nil {
		return err
	}

	if err := parsePositiveInt("REFSTORE_REFTABLE_BLOCK_SIZE", func(val int) {
		config.Reftable.BlockSize = val
	}); err != nil {
		return err
	}

	if v := os.Getenv("REFSTORE_REFTABLE_ALIGN_BLOCKS"); v != "" {
		config.Reftable.AlignBlocks = entcfg.Enabled(v)
	}

	if v := os.Getenv("REFSTORE_COMPACT_ON_COMMIT"); v != "" {
		config.Compaction.OnCommit = entcfg.Enabled(v)
	}

	if v := os.Getenv("REFSTORE_COMPACTION_INTERVAL"); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(err, "parse REFSTORE_COMPACTION_INTERVAL as duration")
		}
		if interval < 0 {
			return errors.Errorf("REFSTORE_COMPACTION_INTERVAL must not be negative, got %s", v)
		}
		config.Compaction.Interval = interval
	}

	if err := parsePositiveInt("REFSTORE_COMPACTION_MAX_SEGMENTS", func(val int) {
		config.Compaction.MaxSegments = val
	}); err != nil {
		return err
	}

	if v := os.Getenv("REFSTORE_RETRY_MAX_ELAPSED"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(err, "parse REFSTORE_RETRY_MAX_ELAPSED as duration")
		}
		config.Retry.MaxElapsed = d
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		config.Logging.Format = v
	}

	return nil
}

func parsePositiveInt(envName string, cb func(val int)) error {
	v := os.Getenv(envName)
	if v == "" {
		return nil
	}

	asInt, err := strconv.Atoi(v)
	if err != nil {
		return errors.Wrapf(err, "parse %s as int", envName)
	}
	if asInt <= 0 {
		return errors.Errorf("%s must be an integer greater than 0. Got: %v", envName, asInt)
	}

	cb(asInt)
	return nil
}
