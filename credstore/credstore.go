// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

// Package credstore reads and writes the explicit credentials used for
// remote connections from the Windows Credential Manager.
package credstore

import (
	"errors"

	"github.com/runetale/wmiq/wmi"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	ErrNotFound      = errors.New("credential not found")
	ErrNotSupported  = errors.New("credential store is not supported on this platform")
	ErrSetDataTooBig = errors.New("credential is too big")
)

// https://learn.microsoft.com/en-us/windows/win32/api/wincred/ns-wincred-credentiala
const (
	maxTargetNameLength = 32767
	maxUserNameLength   = 513
	maxBlobSize         = 5 * 512
)

// Find returns the credential stored under target. The authority is
// left empty; DOMAIN\user names carry the domain.
func Find(target string) (*wmi.Credentials, error) {
	return find(target)
}

// Store saves creds under target, replacing any existing entry.
func Store(target string, creds *wmi.Credentials) error {
	if len(target) > maxTargetNameLength || len(creds.User) > maxUserNameLength {
		return ErrSetDataTooBig
	}
	blob, err := encodePassword(creds.Password)
	if err != nil {
		return err
	}
	if len(blob) > maxBlobSize {
		return ErrSetDataTooBig
	}
	return store(target, creds.User, blob)
}

// Passwords are stored as UTF-16LE so other Windows tools can read them.
func encodePassword(password string) ([]byte, error) {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	b, _, err := transform.Bytes(enc, []byte(password))
	return b, err
}

func decodePassword(blob []byte) (string, error) {
	dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	b, _, err := transform.Bytes(dec, blob)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
