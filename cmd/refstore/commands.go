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
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/weaviate/refstore/adapters/repos/refdb"
	"github.com/weaviate/refstore/entities/refs"
	"github.com/weaviate/refstore/usecases/config"
)

const (
	symbolicPrefix = "ref:"
	deleteValue    = "delete"
)

// parseUpdates turns name/value pairs into a batch
func parseUpdates(args []string) ([]refs.Update, error) {
	if len(args) == 0 || len(args)%2 != 0 {
		return nil, errors.Errorf("expected name/value pairs, got %d arguments", len(args))
	}

	updates := make([]refs.Update, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		value, err := parseValue(args[i+1])
		if err != nil {
			return nil, errors.Wrapf(err, "value of %s", args[i])
		}
		updates = append(updates, refs.Set(args[i], value))
	}

	return updates, refs.ValidateBatch(updates)
}

func parseValue(in string) (refs.Value, error) {
	switch {
	case in == deleteValue:
		return refs.Deleted(), nil
	case strings.HasPrefix(in, symbolicPrefix):
		return refs.Symbolic(strings.TrimSpace(strings.TrimPrefix(in, symbolicPrefix))), nil
	default:
		id, err := refs.ParseObjectID(in)
		if err != nil {
			return refs.Value{}, err
		}
		return refs.Object(id), nil
	}
}

type updateCommand struct {
	cli *cli
}

func (cmd *updateCommand) Execute(args []string) error {
	updates, err := parseUpdates(args)
	if err != nil {
		return err
	}

	return cmd.cli.withDatabase(func(ctx context.Context, db *refdb.Database, cfg config.Config) error {
		res, err := apply(ctx, db, cfg.Retry.MaxElapsed, updates)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.cli.stdout, "update index %d, segment %s, %d segments pruned\n",
			res.UpdateIndex, res.Pack.Name, len(res.Pruned))
		return nil
	})
}

type showCommand struct {
	cli *cli

	Resolve bool `long:"resolve" description:"follow symbolic references"`
}

func (cmd *showCommand) Execute(args []string) error {
	if len(args) == 0 {
		return errors.New("no reference names given")
	}

	return cmd.cli.withDatabase(func(ctx context.Context, db *refdb.Database, cfg config.Config) error {
		lookup := db.ExactRef
		if cmd.Resolve {
			lookup = db.Resolve
		}

		var found []refs.Ref
		for _, name := range args {
			ref, ok, err := lookup(ctx, name)
			if err != nil {
				return err
			}
			if !ok {
				return errors.Errorf("reference %s not found", name)
			}
			found = append(found, ref)
		}

		return printRefs(cmd.cli, found)
	})
}

type listCommand struct {
	cli *cli
}

func (cmd *listCommand) Execute(args []string) error {
	if len(args) > 1 {
		return errors.New("at most one prefix expected")
	}

	prefix := ""
	if len(args) == 1 {
		prefix = args[0]
	}

	return cmd.cli.withDatabase(func(ctx context.Context, db *refdb.Database, cfg config.Config) error {
		all, err := db.Refs(ctx, prefix)
		if err != nil {
			return err
		}
		return printRefs(cmd.cli, all)
	})
}

type compactCommand struct {
	cli *cli
}

func (cmd *compactCommand) Execute(args []string) error {
	return cmd.cli.withDatabase(func(ctx context.Context, db *refdb.Database, cfg config.Config) error {
		res, err := db.Compact(ctx)
		if err != nil {
			return err
		}
		if res == nil {
			fmt.Fprintln(cmd.cli.stdout, "nothing to compact")
			return nil
		}

		fmt.Fprintf(cmd.cli.stdout, "compacted %d segments into %s (%d refs, %d bytes)\n",
			len(res.Pruned), res.Pack.Name, res.Stats.RefCount, res.Stats.Size)
		return nil
	})
}

type segmentsCommand struct {
	cli *cli
}

func (cmd *segmentsCommand) Execute(args []string) error {
	return cmd.cli.withDatabase(func(ctx context.Context, db *refdb.Database, cfg config.Config) error {
		segments, err := db.Segments(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.cli.stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSOURCE\tFILES\tSIZE\tREFS\tUPDATE INDEX\tCOMPACTABLE")
		for _, s := range segments {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d-%d\t%t\n", s.Name, s.Source, s.Exts,
				s.Size, s.RefCount, s.MinUpdateIndex, s.MaxUpdateIndex, s.Compactable)
		}
		return w.Flush()
	})
}

func printRefs(c *cli, all []refs.Ref) error {
	w := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	for _, ref := range all {
		fmt.Fprintf(w, "%s\t%s\t%d\n", ref.Name, ref.Value, ref.UpdateIndex)
	}
	return w.Flush()
}
