// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

// Package wmitest provides an in-memory wmi.Backend that records every
// call, counts acquire/release pairs per handle kind and fails any chosen
// stage on demand.
package wmitest

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/runetale/wmiq/wmi"
)

// Stage selects where an injected failure happens.
type Stage int

const (
	StageNone Stage = iota
	StageInitialize
	StageSecurity
	StageLocator
	StageConnect
	StageProxyBlanket
	StageQuery
	StageNext
)

var stageCalls = map[Stage]string{
	StageInitialize:   "Initialize",
	StageSecurity:     "InitializeSecurity",
	StageLocator:      "CreateLocator",
	StageConnect:      "ConnectServer",
	StageProxyBlanket: "SetProxyBlanket",
	StageQuery:        "ExecQuery",
	StageNext:         "Next",
}

// Call returns the backend method name invoked at s.
func (s Stage) Call() string {
	return stageCalls[s]
}

// Handle kinds.
const (
	HandleChannel    = "channel"
	HandleLocator    = "locator"
	HandleServices   = "services"
	HandleEnumerator = "enumerator"
	HandleRecord     = "record"
)

type CursorState string

const (
	CursorOpen      CursorState = "Open"
	CursorExhausted CursorState = "Exhausted"
)

// Config describes the fake service.
type Config struct {
	// Records are yielded in order by every query.
	Records []map[string]any

	// FailAt injects a failure at one stage, reported with Code.
	FailAt Stage
	// Code defaults to wmi.StatusFail.
	Code uint32

	// FieldError, when set, can fail reading a field of the index-th record.
	FieldError func(index int, field string) error

	// Timeouts is the number of ErrTimedOut results returned by each
	// cursor before its first record.
	Timeouts int
}

// Backend is the fake. The zero value is not usable; call New.
type Backend struct {
	cfg Config

	mu         sync.Mutex
	acquired   map[string]int
	released   map[string]int
	violations []string
	calls      []string
	cursor     []CursorState
	gets       int

	namespace string
	creds     *wmi.Credentials
	auth      wmi.AuthLevel
	imp       wmi.ImpersonationLevel
	language  string
	query     string
	flags     wmi.QueryFlag
	timeout   time.Duration
}

func New(cfg Config) *Backend {
	if cfg.Code == 0 {
		cfg.Code = uint32(wmi.StatusFail)
	}
	return &Backend{
		cfg:      cfg,
		acquired: make(map[string]int),
		released: make(map[string]int),
	}
}

// Records builds records holding a single Name field each.
func Records(names ...string) []map[string]any {
	out := make([]map[string]any, 0, len(names))
	for _, n := range names {
		out = append(out, map[string]any{"Name": n})
	}
	return out
}

func (b *Backend) fail(s Stage) error {
	if b.cfg.FailAt == s {
		return wmi.Status(b.cfg.Code)
	}
	return nil
}

func (b *Backend) record(call string) {
	b.mu.Lock()
	b.calls = append(b.calls, call)
	b.mu.Unlock()
}

func (b *Backend) newHandle(kind string) *handle {
	b.mu.Lock()
	b.acquired[kind]++
	b.mu.Unlock()
	return &handle{b: b, kind: kind}
}

func (b *Backend) Initialize() (wmi.Channel, error) {
	b.record("Initialize")
	if err := b.fail(StageInitialize); err != nil {
		return nil, err
	}
	return &channel{b.newHandle(HandleChannel)}, nil
}

func (b *Backend) CreateLocator(ch wmi.Channel) (wmi.Locator, error) {
	b.record("CreateLocator")
	if c, ok := ch.(*channel); !ok || c.isReleased() {
		b.violate("CreateLocator without a live channel")
	}
	if err := b.fail(StageLocator); err != nil {
		return nil, err
	}
	return &locator{b.newHandle(HandleLocator)}, nil
}

func (b *Backend) violate(format string, args ...any) {
	b.mu.Lock()
	b.violations = append(b.violations, fmt.Sprintf(format, args...))
	b.mu.Unlock()
}

type handle struct {
	b        *Backend
	kind     string
	released bool
}

func (h *handle) use(call string) {
	h.b.mu.Lock()
	defer h.b.mu.Unlock()
	h.b.calls = append(h.b.calls, call)
	if h.released {
		h.b.violations = append(h.b.violations, fmt.Sprintf("%s on released %s", call, h.kind))
	}
}

func (h *handle) isReleased() bool {
	h.b.mu.Lock()
	defer h.b.mu.Unlock()
	return h.released
}

func (h *handle) Release() {
	h.b.mu.Lock()
	defer h.b.mu.Unlock()
	h.b.calls = append(h.b.calls, "Release("+h.kind+")")
	if h.released {
		h.b.violations = append(h.b.violations, "double release of "+h.kind)
		return
	}
	h.released = true
	h.b.released[h.kind]++
}

type channel struct{ *handle }

func (c *channel) InitializeSecurity(auth wmi.AuthLevel, imp wmi.ImpersonationLevel) error {
	c.use("InitializeSecurity")
	return c.b.fail(StageSecurity)
}

type locator struct{ *handle }

func (l *locator) ConnectServer(namespace string, creds *wmi.Credentials) (wmi.Services, error) {
	l.use("ConnectServer")
	l.b.mu.Lock()
	l.b.namespace, l.b.creds = namespace, creds
	l.b.mu.Unlock()
	if err := l.b.fail(StageConnect); err != nil {
		return nil, err
	}
	return &services{l.b.newHandle(HandleServices)}, nil
}

type services struct{ *handle }

func (s *services) SetProxyBlanket(auth wmi.AuthLevel, imp wmi.ImpersonationLevel) error {
	s.use("SetProxyBlanket")
	s.b.mu.Lock()
	s.b.auth, s.b.imp = auth, imp
	s.b.mu.Unlock()
	return s.b.fail(StageProxyBlanket)
}

func (s *services) ExecQuery(language, query string, flags wmi.QueryFlag) (wmi.Enumerator, error) {
	s.use("ExecQuery")
	s.b.mu.Lock()
	s.b.language, s.b.query, s.b.flags = language, query, flags
	s.b.cursor = nil
	s.b.mu.Unlock()
	if err := s.b.fail(StageQuery); err != nil {
		return nil, err
	}
	return &enumerator{
		handle:   s.b.newHandle(HandleEnumerator),
		timeouts: s.b.cfg.Timeouts,
	}, nil
}

type enumerator struct {
	*handle
	pos       int
	timeouts  int
	exhausted bool
}

func (e *enumerator) Next(timeout time.Duration) (wmi.Record, bool, error) {
	e.use("Next")
	e.b.mu.Lock()
	e.b.timeout = timeout
	e.b.mu.Unlock()

	if err := e.b.fail(StageNext); err != nil {
		return nil, false, err
	}
	if e.exhausted {
		return nil, false, nil
	}
	if e.timeouts > 0 && e.pos == 0 {
		e.timeouts--
		return nil, false, wmi.ErrTimedOut
	}
	if e.pos >= len(e.b.cfg.Records) {
		e.exhausted = true
		e.transition(CursorExhausted)
		return nil, false, nil
	}

	r := &record{
		handle: e.b.newHandle(HandleRecord),
		index:  e.pos,
		fields: e.b.cfg.Records[e.pos],
	}
	e.pos++
	e.transition(CursorOpen)
	return r, true, nil
}

func (e *enumerator) transition(s CursorState) {
	e.b.mu.Lock()
	e.b.cursor = append(e.b.cursor, s)
	e.b.mu.Unlock()
}

type record struct {
	*handle
	index  int
	fields map[string]any
}

func (r *record) Get(name string) (any, error) {
	r.use("Get")
	r.b.mu.Lock()
	r.b.gets++
	r.b.mu.Unlock()

	if r.b.cfg.FieldError != nil {
		if err := r.b.cfg.FieldError(r.index, name); err != nil {
			return nil, err
		}
	}
	// Property names are case-insensitive.
	for k, v := range r.fields {
		if strings.EqualFold(k, name) {
			return v, nil
		}
	}
	return nil, wmi.StatusNotFound
}

// Calls returns every backend call in order, including releases.
func (b *Backend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

// Called reports whether call appears in the call log.
func (b *Backend) Called(call string) bool {
	for _, c := range b.Calls() {
		if c == call {
			return true
		}
	}
	return false
}

// Acquired returns the number of handles of kind handed out.
func (b *Backend) Acquired(kind string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acquired[kind]
}

// Released returns the number of handles of kind released.
func (b *Backend) Released(kind string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released[kind]
}

// Gets returns the number of field reads.
func (b *Backend) Gets() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gets
}

// Cursor returns the state after each pull of the latest cursor.
func (b *Backend) Cursor() []CursorState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]CursorState(nil), b.cursor...)
}

// Violations returns use-after-release and double-release reports.
func (b *Backend) Violations() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.violations...)
}

// Balanced returns an error describing any leak or misuse.
func (b *Backend) Balanced() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var problems []string
	problems = append(problems, b.violations...)
	for kind, n := range b.acquired {
		if r := b.released[kind]; r != n {
			problems = append(problems, fmt.Sprintf("%s: acquired %d, released %d", kind, n, r))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("wmitest: %s", strings.Join(problems, "; "))
}

// Captured is what the pipeline passed to the backend on its latest run.
type Captured struct {
	Namespace   string
	Credentials *wmi.Credentials
	Auth        wmi.AuthLevel
	Imp         wmi.ImpersonationLevel
	Language    string
	Query       string
	Flags       wmi.QueryFlag
	Timeout     time.Duration
}

func (b *Backend) Captured() Captured {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Captured{
		Namespace:   b.namespace,
		Credentials: b.creds,
		Auth:        b.auth,
		Imp:         b.imp,
		Language:    b.language,
		Query:       b.query,
		Flags:       b.flags,
		Timeout:     b.timeout,
	}
}
