// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

//go:build !windows

package wmi

import "runtime"

type unsupportedBackend struct{}

// NewSystemBackend returns a backend whose channel initialization always
// fails: the WMI service only exists on Windows.
func NewSystemBackend() Backend {
	return unsupportedBackend{}
}

func (unsupportedBackend) Initialize() (Channel, error) {
	return nil, notSupportedError{}
}

func (unsupportedBackend) CreateLocator(Channel) (Locator, error) {
	return nil, notSupportedError{}
}

type notSupportedError struct{}

func (notSupportedError) Error() string {
	return ErrNotSupported.Error() + ": " + runtime.GOOS
}

func (notSupportedError) Code() uintptr {
	return uintptr(StatusNotImpl)
}

func (notSupportedError) Unwrap() error {
	return ErrNotSupported
}
