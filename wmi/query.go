// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

package wmi

import (
	"errors"
	"sync"
	"time"

	"github.com/runetale/wmiq/wmilog"
)

const (
	DefaultNamespace = `ROOT\CIMV2`
	DefaultLanguage  = "WQL"
	DefaultQueryText = "SELECT * FROM Win32_OperatingSystem"
	DefaultField     = "Name"
)

// Query describes what to run against the service.
type Query struct {
	Namespace string
	Language  string
	Text      string
	Fields    []string
	Flags     QueryFlag
}

// DefaultQuery selects the operating system name from the local
// ROOT\CIMV2 namespace.
func DefaultQuery() Query {
	return Query{
		Namespace: DefaultNamespace,
		Language:  DefaultLanguage,
		Text:      DefaultQueryText,
		Fields:    []string{DefaultField},
		Flags:     FlagForwardOnly | FlagReturnImmediately,
	}
}

// Options controls how the session is opened.
type Options struct {
	// Host is the remote machine; empty means the local machine.
	Host string
	// Credentials are only honored for remote hosts.
	Credentials *Credentials

	AuthLevel     AuthLevel
	Impersonation ImpersonationLevel

	// NextTimeout bounds each cursor pull; WaitInfinite blocks.
	NextTimeout time.Duration
	// MaxTimeouts turns the n-th consecutive pull timeout into a fatal
	// QueryFailed. Zero retries timeouts forever.
	MaxTimeouts int
}

func DefaultOptions() Options {
	return Options{
		AuthLevel:     AuthLevelCall,
		Impersonation: ImpersonationImpersonate,
		NextTimeout:   WaitInfinite,
	}
}

// Client runs one query per invocation. Each call to Run performs a full
// connect, query and teardown cycle; nothing is cached between calls.
type Client struct {
	backend Backend
	query   Query
	opts    Options
	shared  *SharedChannel

	wmilog *wmilog.Wmilog
}

func NewClient(backend Backend, query Query, opts Options, wmilog *wmilog.Wmilog) *Client {
	if len(query.Fields) == 0 {
		query.Fields = []string{DefaultField}
	}
	if opts.AuthLevel == AuthLevelDefault {
		opts.AuthLevel = AuthLevelCall
	}
	if opts.Impersonation == ImpersonationDefault {
		opts.Impersonation = ImpersonationImpersonate
		if opts.Host != "" && opts.Credentials != nil {
			opts.Impersonation = ImpersonationIdentify
		}
	}
	if opts.NextTimeout == 0 {
		opts.NextTimeout = WaitInfinite
	}

	return &Client{
		backend: backend,
		query:   query,
		opts:    opts,
		wmilog:  wmilog,
	}
}

// WithSharedChannel makes the client acquire its channel from s instead
// of initializing a private one.
func (c *Client) WithSharedChannel(s *SharedChannel) *Client {
	c.shared = s
	return c
}

// NamespacePath returns the object path passed to ConnectServer.
func (c *Client) NamespacePath() string {
	if c.opts.Host == "" {
		return c.query.Namespace
	}
	return `\\` + c.opts.Host + `\` + c.query.Namespace
}

func (c *Client) credentials() *Credentials {
	if c.opts.Credentials == nil {
		return nil
	}
	if c.opts.Host == "" {
		c.wmilog.Logger.Warnf("explicit credentials are ignored for local connections")
		return nil
	}
	return c.opts.Credentials
}

func (c *Client) acquireChannel() (Channel, error) {
	if c.shared != nil {
		return c.shared.Acquire()
	}
	return initChannel(c.backend)
}

// Run executes the query and returns every record. Handles are released
// in reverse order on every return path.
func (c *Client) Run() (*Result, error) {
	sess := newConnectionContext(c.wmilog)
	defer sess.teardown()

	ch, err := c.acquireChannel()
	if err != nil {
		c.wmilog.Logger.Errorf("%v", err)
		return nil, err
	}
	sess.setChannel(ch)

	if err := sess.createLocator(c.backend); err != nil {
		c.wmilog.Logger.Errorf("%v", err)
		return nil, err
	}

	ns := c.NamespacePath()
	if err := sess.connect(ns, c.credentials()); err != nil {
		c.wmilog.Logger.Errorf("%v", err)
		return nil, err
	}
	c.wmilog.Logger.Infof("Connected to %s WMI namespace", ns)

	if err := sess.configureSecurity(c.opts.AuthLevel, c.opts.Impersonation); err != nil {
		c.wmilog.Logger.Errorf("%v", err)
		return nil, err
	}

	if err := sess.query(c.query.Language, c.query.Text, c.query.Flags); err != nil {
		c.wmilog.Logger.Errorf("%v", err)
		return nil, err
	}

	res := newResult(ns, c.query.Text)
	if err := c.drain(sess.enum, res); err != nil {
		c.wmilog.Logger.Errorf("%v", err)
		return nil, err
	}

	return res, nil
}

// ExecQuery runs the query and returns the fields of the latest record.
// A query with no records yields an empty mapping.
func (c *Client) ExecQuery() (map[string]any, error) {
	res, err := c.Run()
	if err != nil {
		return nil, err
	}
	return res.Fields, nil
}

func (c *Client) drain(enum Enumerator, res *Result) error {
	timeouts := 0
	for {
		rec, ok, err := enum.Next(c.opts.NextTimeout)
		if errors.Is(err, ErrTimedOut) {
			timeouts++
			if c.opts.MaxTimeouts > 0 && timeouts >= c.opts.MaxTimeouts {
				return newStageError(QueryFailed, StatusTimedOut)
			}
			c.wmilog.Logger.Debugf("no record within %v, waiting again", c.opts.NextTimeout)
			continue
		}
		if err != nil {
			return newStageError(QueryFailed, err)
		}
		if !ok {
			return nil
		}
		timeouts = 0

		c.extract(rec, res)
	}
}

// extract copies the configured fields out of rec and releases it.
func (c *Client) extract(rec Record, res *Result) {
	defer rec.Release()

	row := make(map[string]any, len(c.query.Fields))
	for _, name := range c.query.Fields {
		v, err := rec.Get(name)
		if err != nil {
			xerr := &ExtractError{Field: name, Code: StatusCode(err), Err: err}
			c.wmilog.Logger.Warnf("%v", xerr)
			res.Skipped++
			continue
		}
		v = normalize(v)
		c.wmilog.Logger.Infof(" %s : %v", name, v)
		row[name] = v
	}

	res.add(row)
}

// defaultWmilog backs the package-level ExecQuery. It is built once and
// writes to stderr only, which is unbuffered, so it is never synced.
var defaultWmilog = sync.OnceValue(func() *wmilog.Wmilog {
	l, err := wmilog.NewWmilog("wmi", wmilog.InfoLevelStr, "", false)
	if err != nil {
		return wmilog.NewNop()
	}
	return l
})

// ExecQuery runs the default operating system query against the local
// service with default options.
func ExecQuery() (map[string]any, error) {
	return NewClient(NewSystemBackend(), DefaultQuery(), DefaultOptions(), defaultWmilog()).ExecQuery()
}
