package provider

import (
	"context"
	"fmt"
	"os"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"showdown-pilot/legal"
	"showdown-pilot/protocol"
)

// Lua runs a user script that defines a global decide(input) returning a
// command string. The VM is sandboxed and serialized behind a mutex.
type Lua struct {
	mu   sync.Mutex
	L    *lua.LState
	name string
}

// NewLuaFile loads a script from disk.
func NewLuaFile(path string) (*Lua, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading lua script %s: %w", path, err)
	}
	return NewLua(path, string(src))
}

// NewLua compiles src in a fresh sandboxed VM.
func NewLua(name, src string) (*Lua, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	sandbox(L)

	if err := L.DoString(src); err != nil {
		L.Close()
		return nil, fmt.Errorf("executing %s: %w", name, err)
	}
	if _, ok := L.GetGlobal("decide").(*lua.LFunction); !ok {
		L.Close()
		return nil, fmt.Errorf("%s: global function decide is not defined", name)
	}
	return &Lua{L: L, name: name}, nil
}

func sandbox(L *lua.LState) {
	for _, name := range []string{
		"dofile", "loadfile", "load", "loadstring",
		"rawset", "rawget", "rawequal",
		"collectgarbage", "print",
	} {
		L.SetGlobal(name, lua.LNil)
	}
}

func (l *Lua) Name() string { return "lua:" + l.name }

func (l *Lua) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.L.Close()
}

func (l *Lua) Decide(ctx context.Context, in Input) (legal.Action, error) {
	if in.Kind != protocol.KindTeamPreview && (in.Slot.Skip || in.Slot.Choices() == 0) {
		return legal.PassAction(in.Slot.Slot), nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.L.SetContext(ctx)
	defer l.L.RemoveContext()

	err := l.L.CallByParam(lua.P{
		Fn:      l.L.GetGlobal("decide"),
		NRet:    1,
		Protect: true,
	}, l.input(in))
	if err != nil {
		if ctx.Err() != nil {
			return legal.Action{}, ctx.Err()
		}
		return legal.Action{}, fmt.Errorf("%s: decide: %w", l.name, err)
	}
	ret := l.L.Get(-1)
	l.L.Pop(1)
	s, ok := ret.(lua.LString)
	if !ok {
		return legal.Action{}, fmt.Errorf("%w: decide returned %s", ErrNoChoice, ret.Type())
	}
	return ParseChoice(in, string(s))
}

func (l *Lua) input(in Input) *lua.LTable {
	L := l.L
	t := L.NewTable()
	t.RawSetString("kind", lua.LString(in.Kind.String()))
	t.RawSetString("slot", lua.LNumber(in.Slot.Slot+1))
	t.RawSetString("turn", lua.LNumber(in.Turn))
	t.RawSetString("history", lua.LString(in.History))
	t.RawSetString("must_switch", lua.LBool(in.Slot.MustSwitch))
	t.RawSetString("can_tera", lua.LBool(in.Slot.CanTransform(protocol.Terastallize)))

	moves := L.NewTable()
	for _, m := range in.Slot.Moves {
		mt := L.NewTable()
		mt.RawSetString("command", lua.LString(m.Command()))
		mt.RawSetString("name", lua.LString(m.MoveName))
		mt.RawSetString("target", lua.LNumber(m.Target))
		mt.RawSetString("transform", lua.LString(m.Transform))
		moves.Append(mt)
	}
	t.RawSetString("moves", moves)

	switches := L.NewTable()
	for _, s := range in.Slot.Switches {
		st := L.NewTable()
		st.RawSetString("command", lua.LString(s.Command()))
		st.RawSetString("species", lua.LString(s.Species))
		switches.Append(st)
	}
	t.RawSetString("switches", switches)

	roster := L.NewTable()
	for _, m := range in.Options.Roster {
		rt := L.NewTable()
		rt.RawSetString("index", lua.LNumber(m.Index))
		rt.RawSetString("species", lua.LString(m.Species))
		roster.Append(rt)
	}
	t.RawSetString("roster", roster)
	t.RawSetString("lead_count", lua.LNumber(in.Options.LeadCount))
	return t
}
