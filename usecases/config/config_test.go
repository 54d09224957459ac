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
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/refstore/adapters/repos/reftable"
)

func TestDefaults(t *testing.T) {
	c := Defaults()
	require.NoError(t, c.Validate())

	db := c.RefDB()
	assert.Equal(t, reftable.DefaultRefBlockSize, db.Reftable.RefBlockSize)
	assert.True(t, db.Reftable.AlignBlocks)
	assert.True(t, db.CompactOnCommit)
	assert.Equal(t, time.Duration(0), db.CompactionInterval)
	assert.Equal(t, DefaultMaxSegments, db.MaxSegments)
	assert.Equal(t, filepath.Join(DefaultDataPath, DefaultDatabaseFile), c.Persistence.DatabasePath())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "no data path", mutate: func(c *Config) { c.Persistence.DataPath = "" }},
		{name: "unknown status", mutate: func(c *Config) { c.Persistence.Status = "paused" }},
		{name: "negative store block size", mutate: func(c *Config) { c.Persistence.StoreBlockSize = -1 }},
		{name: "block size too small", mutate: func(c *Config) { c.Reftable.BlockSize = 1 }},
		{name: "no segments", mutate: func(c *Config) { c.Compaction.MaxSegments = 0 }},
		{name: "log level", mutate: func(c *Config) { c.Logging.Level = "loud" }},
		{name: "log format", mutate: func(c *Config) { c.Logging.Format = "xml" }},
		{name: "negative retry", mutate: func(c *Config) { c.Retry.MaxElapsed = -time.Second }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := Defaults()
			test.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLogger(t *testing.T) {
	c := Defaults()
	c.Logging.Level = "debug"
	c.Logging.Format = "json"

	logger, err := c.Logger()
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("yaml overlays defaults", func(t *testing.T) {
		path := filepath.Join(dir, "refstore.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
persistence:
  data_path: /var/lib/refstore
compaction:
  interval: 30s
  max_segments: 4
`), 0o600))

		c := Defaults()
		require.NoError(t, c.LoadFile(path))
		assert.Equal(t, "/var/lib/refstore", c.Persistence.DataPath)
		assert.Equal(t, 30*time.Second, c.Compaction.Interval)
		assert.Equal(t, 4, c.Compaction.MaxSegments)
		assert.True(t, c.Compaction.OnCommit, "unset values keep their defaults")
		assert.Equal(t, reftable.DefaultRefBlockSize, c.Reftable.BlockSize)
	})

	t.Run("missing file", func(t *testing.T) {
		c := Defaults()
		require.NoError(t, c.LoadFile(filepath.Join(dir, "absent.yaml")))
		assert.Equal(t, Defaults(), c)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := filepath.Join(dir, "refstore.toml")
		require.NoError(t, os.WriteFile(path, []byte("a = 1"), 0o600))

		c := Defaults()
		assert.Error(t, c.LoadFile(path))
	})

	t.Run("malformed", func(t *testing.T) {
		path := filepath.Join(dir, "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("compaction: ["), 0o600))

		c := Defaults()
		assert.Error(t, c.LoadFile(path))
	})
}
