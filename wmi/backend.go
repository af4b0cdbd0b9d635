// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

package wmi

import (
	"math"
	"time"
)

// Backend is the capability surface the session pipeline drives. The
// Windows implementation talks to the WMI service over COM; wmitest
// provides an in-memory fake.
type Backend interface {
	// Initialize brings the calling thread into the RPC subsystem.
	Initialize() (Channel, error)
	// CreateLocator obtains the factory used to open service connections.
	CreateLocator(ch Channel) (Locator, error)
}

// Channel is the initialized state of the RPC subsystem for one caller.
type Channel interface {
	// InitializeSecurity applies the default process security policy.
	InitializeSecurity(auth AuthLevel, imp ImpersonationLevel) error
	Release()
}

type Locator interface {
	ConnectServer(namespace string, creds *Credentials) (Services, error)
	Release()
}

// Services is a live, authenticated session bound to one namespace.
type Services interface {
	SetProxyBlanket(auth AuthLevel, imp ImpersonationLevel) error
	ExecQuery(language, query string, flags QueryFlag) (Enumerator, error)
	Release()
}

// Enumerator is a forward-only pull cursor over query results.
//
// Next returns (record, true, nil) when a record is available and
// (nil, false, nil) once the cursor is exhausted. A timeout without a
// record returns ErrTimedOut and leaves the cursor open.
type Enumerator interface {
	Next(timeout time.Duration) (Record, bool, error)
	Release()
}

// Record is one result item. Get returns a copy of the named field.
type Record interface {
	Get(name string) (any, error)
	Release()
}

// Credentials are explicit credentials for ConnectServer. A nil
// *Credentials means the current caller identity.
type Credentials struct {
	User      string
	Password  string
	Authority string
}

type AuthLevel uint32

// RPC_C_AUTHN_LEVEL_* values.
const (
	AuthLevelDefault   AuthLevel = 0
	AuthLevelNone      AuthLevel = 1
	AuthLevelConnect   AuthLevel = 2
	AuthLevelCall      AuthLevel = 3
	AuthLevelPkt       AuthLevel = 4
	AuthLevelIntegrity AuthLevel = 5
	AuthLevelPrivacy   AuthLevel = 6
)

type ImpersonationLevel uint32

// RPC_C_IMP_LEVEL_* values.
const (
	ImpersonationDefault     ImpersonationLevel = 0
	ImpersonationAnonymous   ImpersonationLevel = 1
	ImpersonationIdentify    ImpersonationLevel = 2
	ImpersonationImpersonate ImpersonationLevel = 3
	ImpersonationDelegate    ImpersonationLevel = 4
)

func (l ImpersonationLevel) String() string {
	switch l {
	case ImpersonationIdentify:
		return "identify"
	case ImpersonationImpersonate:
		return "impersonate"
	case ImpersonationDelegate:
		return "delegate"
	case ImpersonationAnonymous:
		return "anonymous"
	default:
		return "default"
	}
}

// ParseImpersonation accepts "impersonate" and "identify"; the empty
// string selects impersonate.
func ParseImpersonation(s string) (ImpersonationLevel, bool) {
	switch s {
	case "", "impersonate":
		return ImpersonationImpersonate, true
	case "identify":
		return ImpersonationIdentify, true
	default:
		return ImpersonationDefault, false
	}
}

type QueryFlag uint32

// WBEM_FLAG_* values accepted by ExecQuery.
const (
	FlagReturnImmediately QueryFlag = 0x10
	FlagForwardOnly       QueryFlag = 0x20
)

// WaitInfinite makes Enumerator.Next block until a record or exhaustion.
const WaitInfinite time.Duration = -1

// waitMillis converts a pull timeout to the millisecond count the service
// takes. Negative durations wait forever; anything longer than the
// largest finite wait is clamped to it.
func waitMillis(timeout time.Duration) int32 {
	if timeout < 0 {
		return -1
	}
	ms := timeout / time.Millisecond
	if ms > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(ms)
}
