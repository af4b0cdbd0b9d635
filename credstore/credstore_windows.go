// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

//go:build windows

package credstore

import (
	"errors"
	"syscall"

	"github.com/danieljoos/wincred"
	"github.com/runetale/wmiq/wmi"
)

func find(target string) (*wmi.Credentials, error) {
	cred, err := wincred.GetGenericCredential(target)
	if err != nil {
		if errors.Is(err, syscall.ERROR_NOT_FOUND) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	password, err := decodePassword(cred.CredentialBlob)
	if err != nil {
		return nil, err
	}
	return &wmi.Credentials{User: cred.UserName, Password: password}, nil
}

func store(target, user string, blob []byte) error {
	cred := wincred.NewGenericCredential(target)
	cred.UserName = user
	cred.CredentialBlob = blob
	cred.Persist = wincred.PersistLocalMachine
	return cred.Write()
}
