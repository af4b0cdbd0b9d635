// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

//go:build windows

package wmi

import (
	"unsafe"

	ole "github.com/go-ole/go-ole"
	"golang.org/x/sys/windows"
)

var (
	clsidWbemLocator = ole.NewGUID("{4590F811-1D3A-11D0-891F-00AA004B2E24}")
	iidIWbemLocator  = ole.NewGUID("{DC12A687-737F-11CF-884D-00AA004B2E24}")
)

var (
	ole32                    = windows.NewLazySystemDLL("ole32.dll")
	procCoInitializeSecurity = ole32.NewProc("CoInitializeSecurity")
	procCoSetProxyBlanket    = ole32.NewProc("CoSetProxyBlanket")
)

const (
	rpcCAuthnWinNT = 10
	rpcCAuthzNone  = 0
	eoacNone       = 0

	secWinNTAuthIdentityUnicode = 0x2
)

// Vtables list methods in declaration order up to the last one called.

type iWbemLocatorVtbl struct {
	ole.IUnknownVtbl
	ConnectServer uintptr
}

type iWbemLocator struct {
	vtbl *iWbemLocatorVtbl
}

type iWbemServicesVtbl struct {
	ole.IUnknownVtbl
	OpenNamespace              uintptr
	CancelAsyncCall            uintptr
	QueryObjectSink            uintptr
	GetObject                  uintptr
	GetObjectAsync             uintptr
	PutClass                   uintptr
	PutClassAsync              uintptr
	DeleteClass                uintptr
	DeleteClassAsync           uintptr
	CreateClassEnum            uintptr
	CreateClassEnumAsync       uintptr
	PutInstance                uintptr
	PutInstanceAsync           uintptr
	DeleteInstance             uintptr
	DeleteInstanceAsync        uintptr
	CreateInstanceEnum         uintptr
	CreateInstanceEnumAsync    uintptr
	ExecQuery                  uintptr
	ExecQueryAsync             uintptr
	ExecNotificationQuery      uintptr
	ExecNotificationQueryAsync uintptr
	ExecMethod                 uintptr
	ExecMethodAsync            uintptr
}

type iWbemServices struct {
	vtbl *iWbemServicesVtbl
}

type iEnumWbemClassObjectVtbl struct {
	ole.IUnknownVtbl
	Reset     uintptr
	Next      uintptr
	NextAsync uintptr
	Clone     uintptr
	Skip      uintptr
}

type iEnumWbemClassObject struct {
	vtbl *iEnumWbemClassObjectVtbl
}

type iWbemClassObjectVtbl struct {
	ole.IUnknownVtbl
	GetQualifierSet uintptr
	Get             uintptr
}

type iWbemClassObject struct {
	vtbl *iWbemClassObjectVtbl
}

// secWinNTAuthIdentity is SEC_WINNT_AUTH_IDENTITY_W.
type secWinNTAuthIdentity struct {
	User           *uint16
	UserLength     uint32
	Domain         *uint16
	DomainLength   uint32
	Password       *uint16
	PasswordLength uint32
	Flags          uint32
}

func release(p unsafe.Pointer) {
	if p != nil {
		(*ole.IUnknown)(p).Release()
	}
}

func failed(hr uintptr) bool {
	return int32(uint32(hr)) < 0
}

func bstr(s string) *int16 {
	if s == "" {
		return nil
	}
	return ole.SysAllocString(s)
}

func freeBstr(p *int16) {
	if p != nil {
		_ = ole.SysFreeString(p)
	}
}
