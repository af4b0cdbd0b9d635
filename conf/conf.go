// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

package conf

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/runetale/wmiq/paths"
	"github.com/runetale/wmiq/utils"
	"github.com/runetale/wmiq/wmi"
	"github.com/runetale/wmiq/wmilog"
)

const DefaultListen = "127.0.0.1:50151"

// Spec is the wmiq config json
// path's here => paths.DefaultConfigFile()
type Spec struct {
	Host          string   `json:"host,omitempty"`
	Namespace     string   `json:"namespace"`
	QueryLanguage string   `json:"query_language"`
	Query         string   `json:"query"`
	Fields        []string `json:"fields"`

	User             string `json:"user,omitempty"`
	Password         string `json:"password,omitempty"`
	Authority        string `json:"authority,omitempty"`
	CredentialTarget string `json:"credential_target,omitempty"`
	// Impersonation is impersonate or identify; empty picks identify for
	// remote hosts with explicit credentials and impersonate otherwise.
	Impersonation    string `json:"impersonation,omitempty"`

	// NextTimeout is a Go duration; empty waits indefinitely.
	NextTimeout string `json:"next_timeout,omitempty"`
	MaxTimeouts int    `json:"max_timeouts,omitempty"`

	Listen string `json:"listen,omitempty"`
}

// Default returns the operating system name query against the local
// machine.
func Default() *Spec {
	q := wmi.DefaultQuery()
	return &Spec{
		Namespace:     q.Namespace,
		QueryLanguage: q.Language,
		Query:         q.Text,
		Fields:        q.Fields,
		Listen:        DefaultListen,
	}
}

// Load reads path. A missing file yields the defaults; empty fields in
// the file keep their default values.
func Load(path string, wmilog *wmilog.Wmilog) (*Spec, error) {
	s := Default()

	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		wmilog.Logger.Debugf("%s not found, using defaults", path)
		return s, nil
	case err != nil:
		return nil, err
	}

	var file Spec
	if err := json.Unmarshal(b, &file); err != nil {
		wmilog.Logger.Warnf("can not read config file %s, because %v", path, err)
		return nil, err
	}
	s.merge(&file)

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func (s *Spec) merge(o *Spec) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&s.Host, o.Host)
	set(&s.Namespace, o.Namespace)
	set(&s.QueryLanguage, o.QueryLanguage)
	set(&s.Query, o.Query)
	set(&s.User, o.User)
	set(&s.Password, o.Password)
	set(&s.Authority, o.Authority)
	set(&s.CredentialTarget, o.CredentialTarget)
	set(&s.Impersonation, o.Impersonation)
	set(&s.NextTimeout, o.NextTimeout)
	set(&s.Listen, o.Listen)
	if len(o.Fields) > 0 {
		s.Fields = o.Fields
	}
	if o.MaxTimeouts > 0 {
		s.MaxTimeouts = o.MaxTimeouts
	}
}

func (s *Spec) Validate() error {
	if _, ok := wmi.ParseImpersonation(s.Impersonation); !ok {
		return fmt.Errorf("unknown impersonation %q, want impersonate or identify", s.Impersonation)
	}
	if _, err := s.nextTimeout(); err != nil {
		return err
	}
	if s.MaxTimeouts < 0 {
		return fmt.Errorf("max_timeouts must not be negative")
	}
	if s.Query == "" {
		return fmt.Errorf("query is empty")
	}
	return nil
}

func (s *Spec) nextTimeout() (time.Duration, error) {
	if s.NextTimeout == "" {
		return wmi.WaitInfinite, nil
	}
	d, err := time.ParseDuration(s.NextTimeout)
	if err != nil {
		return 0, fmt.Errorf("next_timeout: %w", err)
	}
	if d < 0 {
		return wmi.WaitInfinite, nil
	}
	return d, nil
}

// Write stores the spec at path atomically.
func (s *Spec) Write(path string) error {
	if err := paths.MkConfigDir(filepath.Dir(path)); err != nil {
		return err
	}
	b, err := json.MarshalIndent(s, "", "\t")
	if err != nil {
		return err
	}
	return utils.AtomicWriteFile(path, b, 0600)
}

func (s *Spec) WmiQuery() wmi.Query {
	q := wmi.DefaultQuery()
	q.Namespace = s.Namespace
	q.Language = s.QueryLanguage
	q.Text = s.Query
	if len(s.Fields) > 0 {
		q.Fields = s.Fields
	}
	return q
}

// CredentialFinder looks up stored credentials by target name.
type CredentialFinder func(target string) (*wmi.Credentials, error)

// WmiOptions resolves the session options. Inline user/password win over
// a stored credential target.
func (s *Spec) WmiOptions(find CredentialFinder) (wmi.Options, error) {
	if err := s.Validate(); err != nil {
		return wmi.Options{}, err
	}

	opts := wmi.DefaultOptions()
	opts.Host = s.Host
	opts.MaxTimeouts = s.MaxTimeouts
	opts.NextTimeout, _ = s.nextTimeout()

	opts.Impersonation = wmi.ImpersonationDefault
	if s.Impersonation != "" {
		opts.Impersonation, _ = wmi.ParseImpersonation(s.Impersonation)
	}

	switch {
	case s.User != "":
		opts.Credentials = &wmi.Credentials{User: s.User, Password: s.Password, Authority: s.Authority}
	case s.CredentialTarget != "":
		if find == nil {
			return wmi.Options{}, fmt.Errorf("no credential store for %q", s.CredentialTarget)
		}
		creds, err := find(s.CredentialTarget)
		if err != nil {
			return wmi.Options{}, fmt.Errorf("credential %q: %w", s.CredentialTarget, err)
		}
		if creds.Authority == "" {
			creds.Authority = s.Authority
		}
		opts.Credentials = creds
	}

	return opts, nil
}
