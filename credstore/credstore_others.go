// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

//go:build !windows

package credstore

import "github.com/runetale/wmiq/wmi"

func find(string) (*wmi.Credentials, error) {
	return nil, ErrNotSupported
}

func store(string, string, []byte) error {
	return ErrNotSupported
}
