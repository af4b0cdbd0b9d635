// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/peterbourgon/ff/v2/ffcli"
	"github.com/runetale/wmiq/wmi"
	"github.com/runetale/wmiq/wmirpc"
)

var serveArgs struct {
	sessionArgs
	listen   string
	parallel int
}

var serveCmd = &ffcli.Command{
	Name:       "serve",
	ShortUsage: "serve [flags]",
	ShortHelp:  "serve the configured query to local processes over grpc",
	FlagSet: (func() *flag.FlagSet {
		fs := flag.NewFlagSet("serve", flag.ExitOnError)
		serveArgs.register(fs)
		fs.StringVar(&serveArgs.listen, "listen", "", "listen address, the config value when empty")
		fs.IntVar(&serveArgs.parallel, "parallel", 4, "queries running at the same time")
		return fs
	})(),
	Options: envOptions,
	Exec:    execServe,
}

func execServe(ctx context.Context, args []string) error {
	wmilog, err := serveArgs.logger("wmiq serve")
	if err != nil {
		fmt.Printf("failed to initialize logger. because %v\n", err)
		return nil
	}

	c, s, err := serveArgs.client(wmi.NewSystemBackend(), wmilog)
	if err != nil {
		return err
	}

	listen := s.Listen
	if serveArgs.listen != "" {
		listen = serveArgs.listen
	}

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return wmirpc.NewServer(c, serveArgs.parallel, wmilog).Serve(ctx, ln)
}
