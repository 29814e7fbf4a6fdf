package script

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
	"pkt.systems/pslog"

	"github.com/raniellyferreira/memberlists/internal/logutil"
	"github.com/raniellyferreira/memberlists/storage"
	"github.com/raniellyferreira/memberlists/storage/policy"
)

const (
	// AdmitFunc is the global every admission script must define
	AdmitFunc = "admit"

	// DefaultTimeout bounds a single admission call
	DefaultTimeout = 250 * time.Millisecond
)

var (
	// ErrNoAdmitFunc is returned when a script does not define admit
	ErrNoAdmitFunc = errors.New("script: admit function not defined")
)

// Engine runs a Lua admission script for every join.
//
// The script is compiled once per distinct content and executed in a fresh
// state for each call, so scripts cannot keep state between joins.
type Engine struct {
	store   storage.Storage
	logger  pslog.Logger
	timeout time.Duration

	mu          sync.RWMutex
	proto       *lua.FunctionProto
	name        string
	fingerprint uint64
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(logger pslog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithTimeout bounds each admission call; zero disables the bound
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// NewEngine creates an engine with no script loaded. Until a script is
// loaded every join is admitted.
func NewEngine(store storage.Storage, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logutil.WithSubsystem(e.logger, "script")
	return e
}

// LoadFile compiles the script at path. See Load.
func (e *Engine) LoadFile(path string) (bool, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("script: read %q: %w", path, err)
	}
	return e.Load(path, src)
}

// Load compiles src and makes it the active program. It reports false
// without recompiling when src matches the active program. On error the
// active program is left in place.
func (e *Engine) Load(name string, src []byte) (bool, error) {
	sum := xxhash.Sum64(src)

	e.mu.RLock()
	same := e.proto != nil && e.fingerprint == sum
	e.mu.RUnlock()
	if same {
		return false, nil
	}

	chunk, err := parse.Parse(bytes.NewReader(src), name)
	if err != nil {
		return false, fmt.Errorf("script: parse %s: %w", name, err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return false, fmt.Errorf("script: compile %s: %w", name, err)
	}
	if err := e.check(proto); err != nil {
		return false, fmt.Errorf("script: %s: %w", name, err)
	}

	e.mu.Lock()
	e.proto = proto
	e.name = name
	e.fingerprint = sum
	e.mu.Unlock()

	e.logger.Info("script.loaded", "name", name, "fingerprint", fmt.Sprintf("%016x", sum))
	return true, nil
}

// Loaded reports whether a program is active
func (e *Engine) Loaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.proto != nil
}

// Fingerprint returns the xxhash of the active program source
func (e *Engine) Fingerprint() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fingerprint
}

// Admit calls admit(list, name) with a one-based list number.
// The first return value decides; a second string return value is kept as
// the reason.
func (e *Engine) Admit(ctx context.Context, list int, name string) (policy.Decision, error) {
	e.mu.RLock()
	proto, scriptName := e.proto, e.name
	e.mu.RUnlock()
	if proto == nil {
		return policy.Decision{Allowed: true}, nil
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	L, err := e.newState(ctx, proto)
	if err != nil {
		return policy.Decision{}, fmt.Errorf("script: %s: %w", scriptName, err)
	}
	defer L.Close()

	fn := L.GetGlobal(AdmitFunc)
	if err := L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    2,
		Protect: true,
	}, lua.LNumber(list+1), lua.LString(name)); err != nil {
		return policy.Decision{}, fmt.Errorf("script: %s: %w", scriptName, err)
	}

	allowed, reason := L.Get(-2), L.Get(-1)
	L.Pop(2)

	d := policy.Decision{Allowed: lua.LVAsBool(allowed)}
	if s, ok := reason.(lua.LString); ok {
		d.Reason = string(s)
	}
	if !d.Allowed {
		e.logger.Debug("script.rejected", "list", list+1, "name", name, "reason", d.Reason)
	}
	return d, nil
}

// check runs the chunk once in a scratch state and verifies admit exists.
// The top level gets the same time bound as an admission call.
func (e *Engine) check(proto *lua.FunctionProto) error {
	ctx := context.Background()
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	L, err := e.newState(ctx, proto)
	if err != nil {
		return err
	}
	defer L.Close()
	return nil
}

// newState builds a sandboxed state, registers the members table and runs
// the top level of the program under ctx
func (e *Engine) newState(ctx context.Context, proto *lua.FunctionProto) (*lua.LState, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	L.SetContext(ctx)
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, err
		}
	}
	// base opens dofile and loadfile; scripts only see the members table
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("loadfile", lua.LNil)

	e.setupMembersAPI(L)

	L.Push(L.NewFunctionFromProto(proto))
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		L.Close()
		return nil, err
	}
	if L.GetGlobal(AdmitFunc).Type() != lua.LTFunction {
		L.Close()
		return nil, ErrNoAdmitFunc
	}
	return L, nil
}

// setupMembersAPI exposes read-only store access as the members table
func (e *Engine) setupMembersAPI(L *lua.LState) {
	members := L.NewTable()
	L.SetFuncs(members, map[string]lua.LGFunction{
		"count":    e.luaCount,
		"list":     e.luaList,
		"lists":    e.luaLists,
		"capacity": e.luaCapacity,
	})
	L.SetGlobal("members", members)
}

func (e *Engine) luaCount(L *lua.LState) int {
	n := L.CheckInt(1)
	count, err := e.store.Count(n - 1)
	if err != nil {
		L.RaiseError("members.count(%d): %v", n, err)
		return 0
	}
	L.Push(lua.LNumber(count))
	return 1
}

func (e *Engine) luaList(L *lua.LState) int {
	n := L.CheckInt(1)
	names, err := e.store.Members(n - 1)
	if err != nil {
		L.RaiseError("members.list(%d): %v", n, err)
		return 0
	}
	tbl := L.NewTable()
	for i, name := range names {
		tbl.RawSetInt(i+1, lua.LString(name))
	}
	L.Push(tbl)
	return 1
}

func (e *Engine) luaLists(L *lua.LState) int {
	L.Push(lua.LNumber(e.store.Lists()))
	return 1
}

func (e *Engine) luaCapacity(L *lua.LState) int {
	L.Push(lua.LNumber(e.store.Capacity()))
	return 1
}

var _ policy.AdmissionPolicy = (*Engine)(nil)
