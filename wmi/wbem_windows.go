// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

//go:build windows

package wmi

import (
	"runtime"
	"strings"
	"syscall"
	"time"
	"unsafe"

	ole "github.com/go-ole/go-ole"
	"golang.org/x/sys/windows"
)

type systemBackend struct{}

// NewSystemBackend returns the backend that talks to the local WMI
// service over COM. All calls of one invocation must happen on the
// goroutine that called Initialize; the OS thread stays locked until the
// channel is released.
func NewSystemBackend() Backend {
	return systemBackend{}
}

func (systemBackend) Initialize() (Channel, error) {
	runtime.LockOSThread()
	if err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED); err != nil {
		// S_FALSE: already initialized on this thread, still needs a release.
		if StatusCode(err) != uint32(StatusFalse) {
			runtime.UnlockOSThread()
			return nil, err
		}
	}
	return &comChannel{}, nil
}

func (systemBackend) CreateLocator(Channel) (Locator, error) {
	unk, err := ole.CreateInstance(clsidWbemLocator, iidIWbemLocator)
	if err != nil {
		return nil, err
	}
	return &wbemLocator{obj: (*iWbemLocator)(unsafe.Pointer(unk))}, nil
}

type comChannel struct{}

func (c *comChannel) InitializeSecurity(auth AuthLevel, imp ImpersonationLevel) error {
	hr, _, _ := procCoInitializeSecurity.Call(
		0,
		^uintptr(0), // cAuthSvc = -1, let COM choose
		0,
		0,
		uintptr(auth),
		uintptr(imp),
		0,
		eoacNone,
		0,
	)
	if failed(hr) {
		return ole.NewError(hr)
	}
	return nil
}

func (c *comChannel) Release() {
	ole.CoUninitialize()
	runtime.UnlockOSThread()
}

type wbemLocator struct {
	obj *iWbemLocator
}

func (l *wbemLocator) ConnectServer(namespace string, creds *Credentials) (Services, error) {
	ns := bstr(namespace)
	defer freeBstr(ns)

	var user, password, authority *int16
	var ident *secWinNTAuthIdentity
	if creds != nil {
		user = bstr(creds.User)
		password = bstr(creds.Password)
		authority = bstr(creds.Authority)
		defer freeBstr(user)
		defer freeBstr(password)
		defer freeBstr(authority)

		var err error
		ident, err = newAuthIdentity(creds)
		if err != nil {
			return nil, err
		}
	}

	var svc *iWbemServices
	hr, _, _ := syscall.SyscallN(
		l.obj.vtbl.ConnectServer,
		uintptr(unsafe.Pointer(l.obj)),
		uintptr(unsafe.Pointer(ns)),
		uintptr(unsafe.Pointer(user)),
		uintptr(unsafe.Pointer(password)),
		0, // locale
		0, // security flags
		uintptr(unsafe.Pointer(authority)),
		0, // context
		uintptr(unsafe.Pointer(&svc)),
	)
	if failed(hr) {
		return nil, ole.NewError(hr)
	}

	return &wbemServices{obj: svc, ident: ident}, nil
}

func (l *wbemLocator) Release() {
	release(unsafe.Pointer(l.obj))
}

type wbemServices struct {
	obj *iWbemServices

	// ident must outlive every proxy it was applied to.
	ident *secWinNTAuthIdentity
	auth  AuthLevel
	imp   ImpersonationLevel
}

func setProxyBlanket(proxy unsafe.Pointer, auth AuthLevel, imp ImpersonationLevel, ident *secWinNTAuthIdentity) error {
	hr, _, _ := procCoSetProxyBlanket.Call(
		uintptr(proxy),
		rpcCAuthnWinNT,
		rpcCAuthzNone,
		0, // server principal name
		uintptr(auth),
		uintptr(imp),
		uintptr(unsafe.Pointer(ident)),
		eoacNone,
	)
	if failed(hr) {
		return ole.NewError(hr)
	}
	return nil
}

func (s *wbemServices) SetProxyBlanket(auth AuthLevel, imp ImpersonationLevel) error {
	if err := setProxyBlanket(unsafe.Pointer(s.obj), auth, imp, s.ident); err != nil {
		return err
	}
	s.auth, s.imp = auth, imp
	return nil
}

func (s *wbemServices) ExecQuery(language, query string, flags QueryFlag) (Enumerator, error) {
	lang := bstr(language)
	defer freeBstr(lang)
	q := bstr(query)
	defer freeBstr(q)

	var enum *iEnumWbemClassObject
	hr, _, _ := syscall.SyscallN(
		s.obj.vtbl.ExecQuery,
		uintptr(unsafe.Pointer(s.obj)),
		uintptr(unsafe.Pointer(lang)),
		uintptr(unsafe.Pointer(q)),
		uintptr(flags),
		0, // context
		uintptr(unsafe.Pointer(&enum)),
	)
	if failed(hr) {
		return nil, ole.NewError(hr)
	}

	// Explicit credentials are not inherited by the enumerator proxy.
	if s.ident != nil {
		if err := setProxyBlanket(unsafe.Pointer(enum), s.auth, s.imp, s.ident); err != nil {
			release(unsafe.Pointer(enum))
			return nil, err
		}
	}

	return &wbemEnumerator{obj: enum}, nil
}

func (s *wbemServices) Release() {
	release(unsafe.Pointer(s.obj))
	runtime.KeepAlive(s.ident)
}

type wbemEnumerator struct {
	obj *iEnumWbemClassObject
}

func (e *wbemEnumerator) Next(timeout time.Duration) (Record, bool, error) {
	wait := waitMillis(timeout) // -1 is WBEM_INFINITE

	var obj *iWbemClassObject
	var returned uint32
	hr, _, _ := syscall.SyscallN(
		e.obj.vtbl.Next,
		uintptr(unsafe.Pointer(e.obj)),
		uintptr(uint32(wait)),
		1,
		uintptr(unsafe.Pointer(&obj)),
		uintptr(unsafe.Pointer(&returned)),
	)
	if failed(hr) {
		return nil, false, ole.NewError(hr)
	}
	if returned == 0 {
		if Status(hr) == StatusTimedOut {
			return nil, false, ErrTimedOut
		}
		return nil, false, nil
	}

	return &wbemRecord{obj: obj}, true, nil
}

func (e *wbemEnumerator) Release() {
	release(unsafe.Pointer(e.obj))
}

type wbemRecord struct {
	obj *iWbemClassObject
}

func (r *wbemRecord) Get(name string) (any, error) {
	wname, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, err
	}

	var v ole.VARIANT
	ole.VariantInit(&v)
	hr, _, _ := syscall.SyscallN(
		r.obj.vtbl.Get,
		uintptr(unsafe.Pointer(r.obj)),
		uintptr(unsafe.Pointer(wname)),
		0,
		uintptr(unsafe.Pointer(&v)),
		0, // type
		0, // flavor
	)
	if failed(hr) {
		return nil, ole.NewError(hr)
	}
	defer ole.VariantClear(&v)

	if v.VT&ole.VT_ARRAY != 0 {
		return v.ToArray().ToValueArray(), nil
	}
	return v.Value(), nil
}

func (r *wbemRecord) Release() {
	release(unsafe.Pointer(r.obj))
}

// newAuthIdentity splits DOMAIN\user into the identity used for the
// proxy blanket of remote connections.
func newAuthIdentity(creds *Credentials) (*secWinNTAuthIdentity, error) {
	domain, user := creds.Authority, creds.User
	if i := strings.IndexByte(user, '\\'); i >= 0 {
		domain, user = user[:i], user[i+1:]
	}
	domain = strings.TrimPrefix(domain, "ntlmdomain:")

	u, err := windows.UTF16FromString(user)
	if err != nil {
		return nil, err
	}
	d, err := windows.UTF16FromString(domain)
	if err != nil {
		return nil, err
	}
	p, err := windows.UTF16FromString(creds.Password)
	if err != nil {
		return nil, err
	}

	return &secWinNTAuthIdentity{
		User:           &u[0],
		UserLength:     uint32(len(u) - 1),
		Domain:         &d[0],
		DomainLength:   uint32(len(d) - 1),
		Password:       &p[0],
		PasswordLength: uint32(len(p) - 1),
		Flags:          secWinNTAuthIdentityUnicode,
	}, nil
}
