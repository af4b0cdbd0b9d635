// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

package wmi

import (
	"github.com/runetale/wmiq/wmilog"
)

type progress int

const (
	progressNone progress = iota
	progressChannel
	progressLocator
	progressServices
	progressEnumerator
)

func (p progress) String() string {
	switch p {
	case progressChannel:
		return "channel"
	case progressLocator:
		return "locator"
	case progressServices:
		return "services"
	case progressEnumerator:
		return "enumerator"
	default:
		return "none"
	}
}

// ConnectionContext holds the handles acquired by one invocation. It is
// never shared between invocations; teardown releases whatever it holds.
type ConnectionContext struct {
	channel  Channel
	locator  Locator
	services Services
	enum     Enumerator

	// progress is the last stage whose handle was acquired.
	progress progress

	wmilog *wmilog.Wmilog
}

func newConnectionContext(wmilog *wmilog.Wmilog) *ConnectionContext {
	return &ConnectionContext{wmilog: wmilog}
}

// initChannel runs both channel steps. When the security step fails the
// channel from the first step is released before returning.
func initChannel(b Backend) (Channel, error) {
	ch, err := b.Initialize()
	if err != nil {
		return nil, newStageError(InitComFailed, err)
	}

	err = ch.InitializeSecurity(AuthLevelDefault, ImpersonationImpersonate)
	if err != nil && StatusCode(err) != uint32(StatusTooLate) {
		ch.Release()
		return nil, newStageError(InitSecurityFailed, err)
	}

	return ch, nil
}

func (c *ConnectionContext) setChannel(ch Channel) {
	c.channel = ch
	c.progress = progressChannel
}

func (c *ConnectionContext) createLocator(b Backend) error {
	loc, err := b.CreateLocator(underlying(c.channel))
	if err != nil {
		return newStageError(InitLocatorFailed, err)
	}
	c.locator = loc
	c.progress = progressLocator
	return nil
}

func (c *ConnectionContext) connect(namespace string, creds *Credentials) error {
	svc, err := c.locator.ConnectServer(namespace, creds)
	if err != nil {
		return newStageError(ConnectFailed, err)
	}
	c.services = svc
	c.progress = progressServices
	return nil
}

func (c *ConnectionContext) configureSecurity(auth AuthLevel, imp ImpersonationLevel) error {
	if err := c.services.SetProxyBlanket(auth, imp); err != nil {
		return newStageError(ConfigFailed, err)
	}
	return nil
}

func (c *ConnectionContext) query(language, text string, flags QueryFlag) error {
	enum, err := c.services.ExecQuery(language, text, flags)
	if err != nil {
		return newStageError(QueryFailed, err)
	}
	c.enum = enum
	c.progress = progressEnumerator
	return nil
}

// teardown releases held handles in reverse acquisition order. Released
// handles are cleared so a second call is a no-op.
func (c *ConnectionContext) teardown() {
	if c.progress != progressNone {
		c.wmilog.Logger.Debugf("teardown from %s", c.progress)
	}

	if c.enum != nil {
		c.enum.Release()
		c.enum = nil
	}
	if c.services != nil {
		c.services.Release()
		c.services = nil
	}
	if c.locator != nil {
		c.locator.Release()
		c.locator = nil
	}
	if c.channel != nil {
		c.channel.Release()
		c.channel = nil
	}

	c.progress = progressNone
}
