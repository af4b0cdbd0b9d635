// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

package cmd

// wmiq reads management data from the local or a remote windows machine,
// by default the operating system name.

import (
	"context"
	"flag"
	"strings"

	"github.com/peterbourgon/ff/v2"
	"github.com/peterbourgon/ff/v2/ffcli"
)

// every flag can also be set from WMIQ_<FLAG>, e.g. WMIQ_HOST
var envOptions = []ff.Option{ff.WithEnvVarPrefix("WMIQ")}

func Run(args []string) error {
	if len(args) == 1 && (args[0] == "-V" || args[0] == "--version" || args[0] == "-v") {
		args = []string{"version"}
	}

	fs := flag.NewFlagSet("wmiq", flag.ExitOnError)
	cmd := &ffcli.Command{
		Name:       "wmiq",
		ShortUsage: "wmiq <subcommands> [command flags]",
		ShortHelp:  "query windows management instrumentation.",
		LongHelp: strings.TrimSpace(`
All flags can use a single or double hyphen.

Flags can also be set with WMIQ_ prefixed environment variables.

For help on subcommands, prefix with -help.
`),
		Subcommands: []*ffcli.Command{
			queryCmd,
			serveCmd,
			remoteCmd,
			configCmd,
			versionCmd,
		},
		FlagSet: fs,
		Exec:    func(context.Context, []string) error { return flag.ErrHelp },
	}

	if err := cmd.Parse(args); err != nil {
		return err
	}

	if err := cmd.Run(context.Background()); err != nil {
		if err == flag.ErrHelp {
			return nil
		}
		return err
	}

	return nil
}
