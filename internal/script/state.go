package script

import (
	"context"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// DefaultCallTimeout bounds a single script call.
const DefaultCallTimeout = 250 * time.Millisecond

// State is a sandboxed Lua interpreter. Only the base, table, string and
// math libraries are opened.
//
// gopher-lua states are not goroutine-safe; State serializes every call.
type State struct {
	L *lua.LState

	mu      sync.Mutex
	timeout time.Duration
	closed  bool
}

// StateOption configures a State.
type StateOption func(*State)

// WithCallTimeout bounds each DoString, DoFile and Call. Zero disables the
// bound.
func WithCallTimeout(d time.Duration) StateOption {
	return func(s *State) { s.timeout = d }
}

// NewState creates a sandboxed state.
func NewState(opts ...StateOption) *State {
	s := &State{timeout: DefaultCallTimeout}
	for _, opt := range opts {
		opt(s)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	// base leaves file loaders behind
	for _, name := range []string{"dofile", "loadfile", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
	s.L = L
	return s
}

// DoString runs a chunk of code.
func (s *State) DoString(code string) error {
	return s.run(func() error { return s.L.DoString(code) })
}

// DoFile runs a script file. The file is read by the host; scripts cannot
// load files themselves.
func (s *State) DoFile(path string) error {
	return s.run(func() error { return s.L.DoFile(path) })
}

// HasFunc reports whether a global function named fn exists.
func (s *State) HasFunc(fn string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	return s.L.GetGlobal(fn).Type() == lua.LTFunction
}

// Call calls the global function fn with args. It reports false without
// error when fn is not defined.
func (s *State) Call(fn string, args ...lua.LValue) (bool, error) {
	return s.CallWith(fn, func(*lua.LState) []lua.LValue { return args })
}

// CallWith is Call with the arguments built by build while the state is
// held. build only runs when fn exists.
func (s *State) CallWith(fn string, build func(L *lua.LState) []lua.LValue) (bool, error) {
	found := false
	err := s.run(func() error {
		v := s.L.GetGlobal(fn)
		if v == lua.LNil {
			return nil
		}
		if v.Type() != lua.LTFunction {
			return fmt.Errorf("%w: %s is %s", ErrNotFunction, fn, v.Type())
		}
		found = true
		return s.L.CallByParam(lua.P{Fn: v, NRet: 0, Protect: true}, build(s.L)...)
	})
	return found, err
}

// Register installs a Go function as a global.
func (s *State) Register(name string, fn lua.LGFunction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.L.SetGlobal(name, s.L.NewFunction(fn))
	}
}

// SetGlobal sets a global variable.
func (s *State) SetGlobal(name string, v lua.LValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.L.SetGlobal(name, v)
	}
}

// GetGlobal returns a global variable, or nil after Close.
func (s *State) GetGlobal(name string) lua.LValue {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return lua.LNil
	}
	return s.L.GetGlobal(name)
}

// Close releases the interpreter. It is safe to call more than once.
func (s *State) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.L.Close()
		s.closed = true
	}
}

func (s *State) run(fn func() error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if s.timeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.L.SetContext(ctx)
		defer s.L.RemoveContext()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("script: lua panic: %v", r)
		}
	}()
	return fn()
}
