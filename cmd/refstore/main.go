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
	"fmt"
	"io"
	"os"

	"github.com/jessevdk/go-flags"
)

// Options are shared by all commands
type Options struct {
	ConfigFile   string `long:"config-file" description:"path to a yaml config file" env:"REFSTORE_CONFIG_FILE"`
	DataPath     string `long:"data-path" description:"directory holding the reference database"`
	LogLevel     string `long:"log-level" description:"panic, fatal, error, warn, info, debug or trace"`
	PrintMetrics bool   `long:"print-metrics" description:"print the collected metrics to stderr on exit"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	c := newCLI(stdout, stderr)

	parser := flags.NewParser(&c.opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "refstore"
	c.register(parser)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(stdout, err)
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 1
	}

	return 0
}
