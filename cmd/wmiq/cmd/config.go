// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/peterbourgon/ff/v2/ffcli"
	"github.com/runetale/wmiq/conf"
	"github.com/runetale/wmiq/credstore"
	"github.com/runetale/wmiq/paths"
	"github.com/runetale/wmiq/wmi"
)

var configCmd = &ffcli.Command{
	Name:       "config",
	ShortUsage: "config <subcommand> [command flags]",
	ShortHelp:  "write the config file and store credentials",
	Exec:       func(context.Context, []string) error { return flag.ErrHelp },
	Subcommands: []*ffcli.Command{
		configInitCmd,
		configCredentialCmd,
	},
}

var configInitArgs struct {
	configPath string
	force      bool
}

var configInitCmd = &ffcli.Command{
	Name:       "init",
	ShortUsage: "init [flags]",
	ShortHelp:  "write the default config file",
	FlagSet: (func() *flag.FlagSet {
		fs := flag.NewFlagSet("init", flag.ExitOnError)
		fs.StringVar(&configInitArgs.configPath, "config", paths.DefaultConfigFile(), "config file")
		fs.BoolVar(&configInitArgs.force, "force", false, "overwrite an existing file")
		return fs
	})(),
	Options: envOptions,
	Exec:    execConfigInit,
}

func execConfigInit(ctx context.Context, args []string) error {
	if _, err := os.Stat(configInitArgs.configPath); err == nil && !configInitArgs.force {
		return fmt.Errorf("%s already exists, use -force to overwrite", configInitArgs.configPath)
	}

	if err := conf.Default().Write(configInitArgs.configPath); err != nil {
		return err
	}

	fmt.Printf("wrote %s\n", configInitArgs.configPath)
	return nil
}

var configCredentialArgs struct {
	target   string
	user     string
	password string
}

var configCredentialCmd = &ffcli.Command{
	Name:       "credential",
	ShortUsage: "credential -target <name> -user <user> -password <password>",
	ShortHelp:  "store remote credentials in the credential manager",
	FlagSet: (func() *flag.FlagSet {
		fs := flag.NewFlagSet("credential", flag.ExitOnError)
		fs.StringVar(&configCredentialArgs.target, "target", "", "credential manager target, referenced by credential_target")
		fs.StringVar(&configCredentialArgs.user, "user", "", `user, e.g. DOMAIN\user`)
		fs.StringVar(&configCredentialArgs.password, "password", "", "password")
		return fs
	})(),
	Options: envOptions,
	Exec:    execConfigCredential,
}

func execConfigCredential(ctx context.Context, args []string) error {
	if configCredentialArgs.target == "" || configCredentialArgs.user == "" {
		return errors.New("-target and -user are required")
	}

	err := credstore.Store(configCredentialArgs.target, &wmi.Credentials{
		User:     configCredentialArgs.user,
		Password: configCredentialArgs.password,
	})
	if err != nil {
		return err
	}

	fmt.Printf("stored %s\n", configCredentialArgs.target)
	return nil
}
