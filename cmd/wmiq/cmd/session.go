// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

package cmd

import (
	"flag"

	"github.com/runetale/wmiq/conf"
	"github.com/runetale/wmiq/credstore"
	"github.com/runetale/wmiq/paths"
	"github.com/runetale/wmiq/wmi"
	"github.com/runetale/wmiq/wmilog"
)

// sessionArgs are the flags shared by every command that opens wmi
// sessions itself. Non-empty flags override the config file.
type sessionArgs struct {
	configPath string
	host       string
	user       string
	password   string
	credential string
	identify   bool
	timeout    string
	logFile    string
	logLevel   string
	debug      bool
}

func (a *sessionArgs) register(fs *flag.FlagSet) {
	fs.StringVar(&a.configPath, "config", paths.DefaultConfigFile(), "config file")
	fs.StringVar(&a.host, "host", "", "remote host, local machine when empty")
	fs.StringVar(&a.user, "user", "", `user for the remote host, e.g. DOMAIN\user`)
	fs.StringVar(&a.password, "password", "", "password for -user")
	fs.StringVar(&a.credential, "credential", "", "credential manager target holding the remote credentials")
	fs.BoolVar(&a.identify, "identify", false, "use the identify impersonation level")
	fs.StringVar(&a.timeout, "timeout", "", "wait per record, e.g. 5s. waits indefinitely when empty")
	fs.StringVar(&a.logFile, "logfile", paths.DefaultLogFile(), "set logfile path")
	fs.StringVar(&a.logLevel, "loglevel", wmilog.InfoLevelStr, "set log level")
	fs.BoolVar(&a.debug, "debug", false, "for debug logging")
}

func (a *sessionArgs) logger(name string) (*wmilog.Wmilog, error) {
	return wmilog.NewWmilog(name, a.logLevel, a.logFile, a.debug)
}

func (a *sessionArgs) spec(wmilog *wmilog.Wmilog) (*conf.Spec, error) {
	s, err := conf.Load(a.configPath, wmilog)
	if err != nil {
		return nil, err
	}

	if a.host != "" {
		s.Host = a.host
	}
	if a.user != "" {
		s.User = a.user
		s.Password = a.password
	}
	if a.credential != "" {
		s.CredentialTarget = a.credential
	}
	if a.identify {
		s.Impersonation = wmi.ImpersonationIdentify.String()
	}
	if a.timeout != "" {
		s.NextTimeout = a.timeout
	}

	return s, s.Validate()
}

func (a *sessionArgs) client(backend wmi.Backend, wmilog *wmilog.Wmilog) (*wmi.Client, *conf.Spec, error) {
	s, err := a.spec(wmilog)
	if err != nil {
		return nil, nil, err
	}

	opts, err := s.WmiOptions(credstore.Find)
	if err != nil {
		return nil, nil, err
	}

	return wmi.NewClient(backend, s.WmiQuery(), opts, wmilog), s, nil
}
