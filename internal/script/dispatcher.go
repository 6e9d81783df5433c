package script

import (
	"context"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/dshills/eventq/internal/event"
	"github.com/dshills/eventq/internal/queue"
)

// Callback names looked up in the script.
const (
	FuncInput       = "input"
	FuncClockPulse  = "clock_pulse"
	FuncVideo       = "video_event"
	FuncAudio       = "audio_event"
	FuncFrameserver = "frameserver_event"
	FuncExternal    = "external_event"
	FuncNet         = "net_event"
	FuncSystem      = "system_event"
	FuncTarget      = "target_event"
)

// Targets resolves the command context of a frameserver object.
type Targets interface {
	Target(id event.ObjectID) (*queue.Context, bool)
}

// TargetFunc adapts a function to Targets.
type TargetFunc func(id event.ObjectID) (*queue.Context, bool)

// Target implements Targets.
func (f TargetFunc) Target(id event.ObjectID) (*queue.Context, bool) { return f(id) }

// Dispatcher hands events to script callbacks. A callback the script does
// not define is skipped.
//
// The script can call target_input(id, tbl) to inject an IO event into a
// frameserver and shutdown() to ask the engine to exit.
type Dispatcher struct {
	state   *State
	main    *queue.Context
	targets Targets
	logger  *zap.Logger
}

// NewDispatcher wires s to the main context. targets may be nil, in which
// case target_input always fails.
func NewDispatcher(s *State, main *queue.Context, targets Targets, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{state: s, main: main, targets: targets, logger: logger.Named("script")}
	s.Register("target_input", d.targetInput)
	s.Register("shutdown", d.shutdown)
	return d
}

// Dispatch implements engine.Dispatcher.
func (d *Dispatcher) Dispatch(_ context.Context, ev event.Event) error {
	var (
		fn    string
		build func(L *lua.LState) []lua.LValue
	)

	switch p := ev.Data.(type) {
	case event.IO:
		fn = FuncInput
		build = func(L *lua.LState) []lua.LValue {
			return []lua.LValue{inputTable(L, ev, p)}
		}
	case event.Timer:
		d.state.SetGlobal("CLOCK", lua.LNumber(ev.Tickstamp))
		fn = FuncClockPulse
		build = func(*lua.LState) []lua.LValue {
			return []lua.LValue{lua.LNumber(ev.Tickstamp), lua.LNumber(p.Pulse)}
		}
	case event.System, event.Target:
		fn = FuncSystem
		if ev.Category() == event.CategoryTarget {
			fn = FuncTarget
		}
		build = func(L *lua.LState) []lua.LValue {
			t, _ := payloadTable(L, ev)
			return []lua.LValue{t}
		}
	case event.Video, event.Audio, event.Frameserver, event.External, event.Net:
		fn = perObject[ev.Category()]
		build = func(L *lua.LState) []lua.LValue {
			t, src := payloadTable(L, ev)
			return []lua.LValue{lua.LNumber(src), t}
		}
	default:
		return nil
	}

	found, err := d.state.CallWith(fn, build)
	if err != nil {
		return err
	}
	if !found {
		d.logger.Debug("no callback", zap.String("func", fn), zap.Stringer("category", ev.Category()))
	}
	return nil
}

var perObject = map[event.Category]string{
	event.CategoryVideo:       FuncVideo,
	event.CategoryAudio:       FuncAudio,
	event.CategoryFrameserver: FuncFrameserver,
	event.CategoryExternal:    FuncExternal,
	event.CategoryNet:         FuncNet,
}

// targetInput accepts (id, tbl) or (tbl, id) and returns whether the event
// was queued.
func (d *Dispatcher) targetInput(L *lua.LState) int {
	idx, tblx := 1, 2
	if L.Get(1).Type() == lua.LTTable {
		idx, tblx = 2, 1
	}
	id := event.ObjectID(L.CheckInt64(idx))
	tbl := L.CheckTable(tblx)

	ok := d.inject(id, tbl)
	L.Push(lua.LBool(ok))
	return 1
}

func (d *Dispatcher) inject(id event.ObjectID, tbl *lua.LTable) bool {
	if d.targets == nil {
		return false
	}
	target, ok := d.targets.Target(id)
	if !ok {
		d.logger.Debug("target_input for unknown object", zap.Int64("id", int64(id)))
		return false
	}
	ev, err := inputEvent(tbl)
	if err != nil {
		d.logger.Warn("target_input rejected", zap.Error(err))
		return false
	}
	if err := target.Enqueue(ev); err != nil {
		d.logger.Debug("target_input dropped", zap.Int64("id", int64(id)), zap.Error(err))
		return false
	}
	return true
}

func (d *Dispatcher) shutdown(*lua.LState) int {
	err := d.main.Enqueue(event.New(event.SystemExit, event.System{Data: event.Tags{}}))
	if err != nil {
		d.logger.Warn("shutdown request dropped", zap.Error(err))
	}
	return 0
}
