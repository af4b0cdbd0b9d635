// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/peterbourgon/ff/v2/ffcli"
	"github.com/runetale/wmiq/conf"
	"github.com/runetale/wmiq/wmirpc"
)

var remoteArgs struct {
	addr    string
	all     bool
	timeout time.Duration
}

var remoteCmd = &ffcli.Command{
	Name:       "remote",
	ShortUsage: "remote [flags]",
	ShortHelp:  "ask a running wmiq serve for the query result",
	FlagSet: (func() *flag.FlagSet {
		fs := flag.NewFlagSet("remote", flag.ExitOnError)
		fs.StringVar(&remoteArgs.addr, "addr", conf.DefaultListen, "address of wmiq serve")
		fs.BoolVar(&remoteArgs.all, "all", false, "print every record instead of the latest one")
		fs.DurationVar(&remoteArgs.timeout, "timeout", 30*time.Second, "deadline of the call")
		return fs
	})(),
	Options: envOptions,
	Exec:    execRemote,
}

func execRemote(ctx context.Context, args []string) error {
	ctx, cancel := context.WithTimeout(ctx, remoteArgs.timeout)
	defer cancel()

	c, err := wmirpc.Dial(ctx, remoteArgs.addr)
	if err != nil {
		return err
	}
	defer c.Close()

	var out any
	if remoteArgs.all {
		out, err = c.Records(ctx)
	} else {
		out, err = c.Exec(ctx)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
