// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/peterbourgon/ff/v2/ffcli"
	"github.com/runetale/wmiq/backoff"
	"github.com/runetale/wmiq/wmi"
	"github.com/runetale/wmiq/wmilog"
)

var queryArgs struct {
	sessionArgs
	all     bool
	retries uint64
}

var queryCmd = &ffcli.Command{
	Name:       "query",
	ShortUsage: "query [flags]",
	ShortHelp:  "run the configured query and print the result as json",
	FlagSet: (func() *flag.FlagSet {
		fs := flag.NewFlagSet("query", flag.ExitOnError)
		queryArgs.register(fs)
		fs.BoolVar(&queryArgs.all, "all", false, "print every record instead of the latest one")
		fs.Uint64Var(&queryArgs.retries, "retries", 0, "retry a failed query this many times")
		return fs
	})(),
	Options: envOptions,
	Exec:    execQuery,
}

func execQuery(ctx context.Context, args []string) error {
	wmilog, err := queryArgs.logger("wmiq query")
	if err != nil {
		fmt.Printf("failed to initialize logger. because %v\n", err)
		return nil
	}
	defer wmilog.Logger.Sync()

	backend := wmi.NewSystemBackend()
	c, _, err := queryArgs.client(backend, wmilog)
	if err != nil {
		return err
	}

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), queryArgs.retries)
	res, err := retryQuery(ctx, backend, c, b, wmilog)
	if err != nil {
		return err
	}

	var out any = res.Fields
	if queryArgs.all {
		out = res.Records
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// retryQuery runs c until it succeeds or b gives up. Every attempt runs
// on the calling goroutine, so the channel initialized by the first one
// is kept and shared by the rest instead of being set up again.
func retryQuery(ctx context.Context, backend wmi.Backend, c *wmi.Client, b backoff.BackOff, wmilog *wmilog.Wmilog) (*wmi.Result, error) {
	shared := wmi.NewSharedChannel(backend)
	c.WithSharedChannel(shared)

	var held wmi.Channel
	defer func() {
		if held != nil {
			held.Release()
		}
	}()

	return backoff.Retry(ctx, func() (*wmi.Result, error) {
		if held == nil {
			ch, err := shared.Acquire()
			if err != nil {
				return nil, retryOrStop(err)
			}
			held = ch
		}

		res, err := c.Run()
		if err != nil {
			return nil, retryOrStop(err)
		}
		return res, nil
	}, b, func(err error, next time.Duration) {
		wmilog.Logger.Warnf("query failed, retrying in %v. because %v", next, err)
	})
}

func retryOrStop(err error) error {
	if retryable(err) {
		return err
	}
	return backoff.Permanent(err)
}

// retryable reports whether running the whole query again can help.
// Missing platform support and rejected credentials never change.
func retryable(err error) bool {
	if errors.Is(err, wmi.ErrNotSupported) {
		return false
	}
	return wmi.StatusCode(err) != uint32(wmi.StatusAccessDeny)
}
