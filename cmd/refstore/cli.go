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

package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/sirupsen/logrus"
	"github.com/weaviate/refstore/adapters/repos/packstore"
	"github.com/weaviate/refstore/adapters/repos/refdb"
	"github.com/weaviate/refstore/entities/refs"
	"github.com/weaviate/refstore/entities/storagestate"
	"github.com/weaviate/refstore/usecases/config"
	"github.com/weaviate/refstore/usecases/monitoring"
)

type cli struct {
	opts   Options
	stdout io.Writer
	stderr io.Writer

	// openStore is replaced in tests
	openStore func(cfg config.Config, logger logrus.FieldLogger) (packstore.Store, error)
}

func newCLI(stdout, stderr io.Writer) *cli {
	return &cli{
		stdout:    stdout,
		stderr:    stderr,
		openStore: openBolt,
	}
}

func openBolt(cfg config.Config, logger logrus.FieldLogger) (packstore.Store, error) {
	if err := os.MkdirAll(cfg.Persistence.DataPath, 0o755); err != nil {
		return nil, errors.Wrap(err, "create data path")
	}

	var opts []packstore.Option
	if cfg.Persistence.StoreBlockSize > 0 {
		opts = append(opts, packstore.WithBlockSize(cfg.Persistence.StoreBlockSize))
	}
	return packstore.OpenBolt(cfg.Persistence.DatabasePath(), logger, opts...)
}

func (c *cli) register(parser *flags.Parser) {
	parser.AddCommand("update", "Apply reference updates",
		"Applies all given updates as one atomic batch. Every update is a name "+
			"followed by a value: a hex object id, ref:<target> for a symbolic "+
			"reference or delete.",
		&updateCommand{cli: c})
	parser.AddCommand("show", "Show references", "Shows the given references.",
		&showCommand{cli: c})
	parser.AddCommand("list", "List references",
		"Lists all references, optionally limited to a name prefix.",
		&listCommand{cli: c})
	parser.AddCommand("compact", "Compact the reference stack",
		"Merges the compactable tail of the reference stack into one segment.",
		&compactCommand{cli: c})
	parser.AddCommand("segments", "Describe the reference stack",
		"Lists the live segments, oldest first.",
		&segmentsCommand{cli: c})
}

// config resolves the configuration from defaults, the config file, the
// environment and flags, in that order
func (c *cli) config() (config.Config, error) {
	cfg := config.Defaults()

	if err := cfg.LoadFile(c.opts.ConfigFile); err != nil {
		return cfg, err
	}

	if err := config.FromEnv(&cfg); err != nil {
		return cfg, errors.Wrap(err, "invalid environment")
	}

	if c.opts.DataPath != "" {
		cfg.Persistence.DataPath = c.opts.DataPath
	}
	if c.opts.LogLevel != "" {
		cfg.Logging.Level = c.opts.LogLevel
	}

	return cfg, cfg.Validate()
}

// withDatabase opens the reference database for the duration of fn
func (c *cli) withDatabase(fn func(ctx context.Context, db *refdb.Database, cfg config.Config) error) (err error) {
	cfg, err := c.config()
	if err != nil {
		return err
	}

	logger, err := cfg.Logger()
	if err != nil {
		return err
	}
	logger.SetOutput(c.stderr)

	store, err := c.openStore(cfg, logger)
	if err != nil {
		return errors.Wrap(err, "open pack store")
	}

	registry := prometheus.NewRegistry()
	metrics := refdb.NewMetrics(monitoring.NewPrometheusMetrics(registry))

	db, err := refdb.New(store, cfg.RefDB(), logger, metrics)
	if err != nil {
		store.Close()
		return err
	}

	// validated with the config
	status, _ := storagestate.ValidateStatus(cfg.Persistence.Status)
	db.UpdateStatus(status)

	ctx := context.Background()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		if shutdownErr := db.Shutdown(shutdownCtx); shutdownErr != nil {
			err = multierror.Append(err, shutdownErr)
		}
		if c.opts.PrintMetrics {
			if printErr := c.printMetrics(registry); printErr != nil {
				err = multierror.Append(err, printErr)
			}
		}
	}()

	return fn(ctx, db, cfg)
}

// apply retries batches that lost a race against a concurrent writer
func apply(ctx context.Context, db *refdb.Database, maxElapsed time.Duration,
	updates []refs.Update,
) (*refdb.Result, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxElapsedTime = maxElapsed

	var res *refdb.Result
	err := backoff.Retry(func() error {
		var err error
		res, err = db.Apply(ctx, updates...)
		if err != nil && !errors.Is(err, packstore.ErrConflict) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(policy, ctx))

	return res, err
}

func (c *cli) printMetrics(gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return errors.Wrap(err, "gather metrics")
	}

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(c.stderr, mf); err != nil {
			return errors.Wrap(err, "print metrics")
		}
	}
	return nil
}
