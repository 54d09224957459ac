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
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/weaviate/refstore/adapters/repos/refdb"
	"github.com/weaviate/refstore/adapters/repos/reftable"
	"github.com/weaviate/refstore/entities/storagestate"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDataPath          = "./data"
	DefaultDatabaseFile      = "refs.db"
	DefaultMaxSegments       = 8
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	DefaultRetryMaxElapsed   = 10 * time.Second
	DefaultStoreBlockSize    = 0
	DefaultCompactOnCommit  = true
)

// Config is the complete configuration of a refstore process. Values are
// taken from an optional config file, then the environment, then flags,
// each overriding the previous.
type Config struct {
	Persistence Persistence `json:"persistence" yaml:"persistence"`
	Reftable    Reftable    `json:"reftable" yaml:"reftable"`
	Compaction  Compaction  `json:"compaction" yaml:"compaction"`
	Logging     Logging     `json:"logging" yaml:"logging"`
	Retry       Retry       `json:"retry" yaml:"retry"`
}

type Persistence struct {
	DataPath string `json:"data_path" yaml:"data_path"`
	// Status is the initial status of the store, READONLY refuses updates
	Status string `json:"status" yaml:"status"`
	// StoreBlockSize is the block size the pack store reports to segment
	// writers, zero keeps the reftable block size
	StoreBlockSize int `json:"store_block_size" yaml:"store_block_size"`
}

func (p Persistence) DatabasePath() string {
	return filepath.Join(p.DataPath, DefaultDatabaseFile)
}

func (p Persistence) Validate() error {
	if p.DataPath == "" {
		return fmt.Errorf("persistence.data_path must be set")
	}
	if p.StoreBlockSize < 0 {
		return fmt.Errorf("persistence.store_block_size must not be negative, got %d", p.StoreBlockSize)
	}
	if _, err := storagestate.ValidateStatus(p.Status); err != nil {
		return fmt.Errorf("persistence.status: %w", err)
	}
	return nil
}

type Reftable struct {
	BlockSize   int  `json:"block_size" yaml:"block_size"`
	AlignBlocks bool `json:"align_blocks" yaml:"align_blocks"`
}

type Compaction struct {
	OnCommit    bool          `json:"on_commit" yaml:"on_commit"`
	Interval    time.Duration `json:"interval" yaml:"interval"`
	MaxSegments int           `json:"max_segments" yaml:"max_segments"`
}

type Logging struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Retry bounds how long conflicting batch updates are retried
type Retry struct {
	MaxElapsed time.Duration `json:"max_elapsed" yaml:"max_elapsed"`
}

func Defaults() Config {
	return Config{
		Persistence: Persistence{
			DataPath:       DefaultDataPath,
			Status:         storagestate.StatusReady.String(),
			StoreBlockSize: DefaultStoreBlockSize,
		},
		Reftable: Reftable{
			BlockSize:   reftable.DefaultRefBlockSize,
			AlignBlocks: true,
		},
		Compaction: Compaction{
			OnCommit:    DefaultCompactOnCommit,
			MaxSegments: DefaultMaxSegments,
		},
		Logging: Logging{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Retry: Retry{
			MaxElapsed: DefaultRetryMaxElapsed,
		},
	}
}

// RefDB translates the config into the options of the reference database
func (c Config) RefDB() refdb.Config {
	return refdb.Config{
		Reftable: reftable.Config{
			RefBlockSize: c.Reftable.BlockSize,
			AlignBlocks:  c.Reftable.AlignBlocks,
		},
		CompactOnCommit:    c.Compaction.OnCommit,
		CompactionInterval: c.Compaction.Interval,
		MaxSegments:        c.Compaction.MaxSegments,
	}
}

func (c Config) Validate() error {
	if err := c.Persistence.Validate(); err != nil {
		return configErr(err)
	}
	if err := c.RefDB().Validate(); err != nil {
		return configErr(err)
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return configErr(err)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return configErr(fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}
	if c.Retry.MaxElapsed < 0 {
		return configErr(fmt.Errorf("retry.max_elapsed must not be negative"))
	}
	return nil
}

// Logger builds a logger with the configured level and format
func (c Config) Logger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, configErr(err)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	if c.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger, nil
}

// LoadFile overlays the yaml config file at path onto c. A missing file is
// not an error.
func (c *Config) LoadFile(path string) error {
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return configErr(err)
	}

	m := regexp.MustCompile(`.*\.(\w+)$`).FindStringSubmatch(path)
	if len(m) < 2 || (m[1] != "yaml" && m[1] != "yml") {
		return configErr(fmt.Errorf("unsupported config file %q, use .yaml", path))
	}

	if err := yaml.Unmarshal(file, c); err != nil {
		return configErr(fmt.Errorf("error unmarshalling the yaml config file: %w", err))
	}
	return nil
}

func configErr(err error) error {
	return fmt.Errorf("invalid config: %w", err)
}
