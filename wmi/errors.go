// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

package wmi

import (
	"errors"
	"fmt"
)

// Kind names the stage of the session lifecycle that failed.
type Kind int

const (
	InitComFailed Kind = iota + 1
	InitSecurityFailed
	InitLocatorFailed
	ConnectFailed
	ConfigFailed
	QueryFailed
)

var kindNames = map[Kind]string{
	InitComFailed:      "InitComFailed",
	InitSecurityFailed: "InitSecurityFailed",
	InitLocatorFailed:  "InitLocatorFailed",
	ConnectFailed:      "ConnectFailed",
	ConfigFailed:       "ConfigFailed",
	QueryFailed:        "QueryFailed",
}

var kindDescriptions = map[Kind]string{
	InitComFailed:      "failed to initialize the channel",
	InitSecurityFailed: "failed to initialize security",
	InitLocatorFailed:  "failed to create the locator",
	ConnectFailed:      "could not connect",
	ConfigFailed:       "could not set proxy security",
	QueryFailed:        "query failed",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Sentinels for errors.Is matching on a StageError's kind.
var (
	ErrInitCom      = &StageError{Kind: InitComFailed}
	ErrInitSecurity = &StageError{Kind: InitSecurityFailed}
	ErrInitLocator  = &StageError{Kind: InitLocatorFailed}
	ErrConnect      = &StageError{Kind: ConnectFailed}
	ErrConfig       = &StageError{Kind: ConfigFailed}
	ErrQuery        = &StageError{Kind: QueryFailed}
)

var (
	// ErrTimedOut is returned by Enumerator.Next when the timeout elapsed
	// before a record was available. It is not exhaustion.
	ErrTimedOut = errors.New("wmi: timed out waiting for the next record")

	ErrNotSupported = errors.New("wmi: not supported on this platform")
)

// StageError is a fatal failure of one lifecycle stage. Code carries the
// raw status code reported by the backend.
type StageError struct {
	Kind Kind
	Code uint32
	Err  error
}

func newStageError(kind Kind, err error) *StageError {
	return &StageError{Kind: kind, Code: StatusCode(err), Err: err}
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s. Error code = 0x%08x", e.Kind, kindDescriptions[e.Kind], e.Code)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a StageError of the same kind.
func (e *StageError) Is(target error) bool {
	t, ok := target.(*StageError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// ExtractError reports a field that could not be read from one record.
// It never aborts enumeration.
type ExtractError struct {
	Field string
	Code  uint32
	Err   error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("ExtractFailed: could not read field %q. Error code = 0x%08x", e.Field, e.Code)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// Status is a raw HRESULT-style status code usable as an error.
type Status uint32

// Well known status codes.
const (
	StatusOK         Status = 0x00000000
	StatusFalse      Status = 0x00000001
	StatusTimedOut   Status = 0x00040004
	StatusNotImpl    Status = 0x80004001
	StatusFail       Status = 0x80004005
	StatusNotFound   Status = 0x80041002
	StatusAccessDeny Status = 0x80041003
	StatusTooLate    Status = 0x80010119
)

func (s Status) Error() string {
	return fmt.Sprintf("status 0x%08x", uint32(s))
}

func (s Status) Code() uintptr {
	return uintptr(s)
}

// StatusCode extracts the numeric status carried by err. Errors exposing
// Code() uintptr (go-ole's OleError, Status) report that code; any other
// non-nil error reports StatusFail.
func StatusCode(err error) uint32 {
	if err == nil {
		return uint32(StatusOK)
	}
	var se *StageError
	if errors.As(err, &se) {
		return se.Code
	}
	var coder interface{ Code() uintptr }
	if errors.As(err, &coder) {
		return uint32(coder.Code())
	}
	return uint32(StatusFail)
}
