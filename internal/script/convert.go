package script

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/eventq/internal/event"
)

func setStr(t *lua.LTable, k, v string) { t.RawSetString(k, lua.LString(v)) }
func setBool(t *lua.LTable, k string, v bool) { t.RawSetString(k, lua.LBool(v)) }

func setNum[N ~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32](t *lua.LTable, k string, v N) {
	t.RawSetString(k, lua.LNumber(v))
}

func deviceName(d event.DeviceKind) string {
	if d == event.DeviceMouse {
		return "mouse"
	}
	return "joystick"
}

// inputTable describes an IO event the way input() receives it.
func inputTable(L *lua.LState, ev event.Event, io event.IO) *lua.LTable {
	t := L.NewTable()
	if label := ev.Label.String(); label != "" {
		setStr(t, "label", label)
	}

	switch in := io.Input.(type) {
	case event.Analog:
		setStr(t, "kind", "analog")
		setStr(t, "source", deviceName(io.Device))
		setNum(t, "devid", in.DevID)
		setNum(t, "subid", in.SubID)
		setBool(t, "active", true)
		setBool(t, "relative", in.Relative)
		samples := L.NewTable()
		for i, v := range in.Samples() {
			samples.RawSetInt(i+1, lua.LNumber(v))
		}
		t.RawSetString("samples", samples)

	case event.Translated:
		setStr(t, "kind", "digital")
		setBool(t, "translated", true)
		setNum(t, "number", in.Scancode)
		setNum(t, "keysym", in.Keysym)
		setNum(t, "modifiers", in.Modifiers)
		setNum(t, "devid", in.DevID)
		setNum(t, "subid", in.SubID)
		if in.SubID > 0 {
			setStr(t, "utf8", string(rune(in.SubID)))
		}
		setBool(t, "active", in.Active)
		setStr(t, "device", "translated")
		setStr(t, "subdevice", "keyboard")

	case event.Digital:
		setStr(t, "kind", "digital")
		setStr(t, "source", deviceName(io.Device))
		setBool(t, "translated", false)
		setNum(t, "devid", in.DevID)
		setNum(t, "subid", in.SubID)
		setBool(t, "active", in.Active)
	}
	return t
}

// payloadTable describes a non-IO event. It returns the source object for
// per-object callbacks.
func payloadTable(L *lua.LState, ev event.Event) (*lua.LTable, event.ObjectID) {
	t := L.NewTable()
	setStr(t, "kind", event.KindName(ev.Category(), ev.Kind))
	if label := ev.Label.String(); label != "" {
		setStr(t, "label", label)
	}

	switch p := ev.Data.(type) {
	case event.Video:
		setNum(t, "width", p.Constraints.Width)
		setNum(t, "height", p.Constraints.Height)
		setNum(t, "x", p.Props.Position.X)
		setNum(t, "y", p.Props.Position.Y)
		setNum(t, "opacity", p.Props.Opacity)
		setNum(t, "tag", p.Tag)
		return t, p.Source

	case event.Audio:
		return t, p.Source

	case event.Frameserver:
		setNum(t, "width", p.Width)
		setNum(t, "height", p.Height)
		setBool(t, "glsource", p.GLSource)
		setNum(t, "audio", p.Audio)
		setNum(t, "abuffers", p.ABuffers)
		setNum(t, "vbuffers", p.VBuffers)
		setNum(t, "tag", p.Tag)
		return t, p.Video

	case event.External:
		switch d := p.Data.(type) {
		case event.ExternalMessage:
			setStr(t, "message", d.String())
		case event.StateSize:
			setNum(t, "state_size", d)
		case event.StatusCode:
			setNum(t, "code", d)
		case event.FrameNumber:
			setNum(t, "frame", d)
		}
		return t, p.Source

	case event.Net:
		setNum(t, "connid", p.ConnID)
		switch a := p.Addr.(type) {
		case event.HostAddr:
			setStr(t, "host", a.String())
		case event.ConnHandle:
			setStr(t, "handle", fmt.Sprintf("%x", a[:]))
		}
		return t, p.Source

	case event.System:
		setNum(t, "errcode", p.ErrCode)
		switch d := p.Data.(type) {
		case event.Tags:
			setNum(t, "hi", d.Hi)
			setNum(t, "lo", d.Lo)
		case *event.Message:
			// the script is the final consumer
			if text, ok := d.Take(); ok {
				setStr(t, "message", text)
			}
		}

	case event.Target:
		args := L.NewTable()
		for i, a := range p.Args {
			args.RawSetInt(i+1, lua.LNumber(a.Int()))
		}
		t.RawSetString("args", args)
	}
	return t, event.AnyID
}

func field(t *lua.LTable, k string) lua.LValue { return t.RawGetString(k) }

func fieldStr(t *lua.LTable, k string) string {
	if s, ok := field(t, k).(lua.LString); ok {
		return string(s)
	}
	return ""
}

func fieldInt(t *lua.LTable, k string) int64 {
	if n, ok := field(t, k).(lua.LNumber); ok {
		return int64(n)
	}
	return 0
}

func fieldBool(t *lua.LTable, k string) bool {
	return lua.LVAsBool(field(t, k))
}

func deviceFrom(t *lua.LTable) event.DeviceKind {
	if fieldStr(t, "source") == "mouse" {
		return event.DeviceMouse
	}
	return event.DeviceGame
}

// inputEvent builds an IO event from a table shaped like the ones input()
// receives.
func inputEvent(t *lua.LTable) (event.Event, error) {
	var ev event.Event
	switch kind := fieldStr(t, "kind"); kind {
	case "analog":
		dev := deviceFrom(t)
		a := event.Analog{
			Relative: dev == event.DeviceMouse,
			DevID:    uint8(fieldInt(t, "devid")),
			SubID:    uint8(fieldInt(t, "subid")),
		}
		if rel, ok := field(t, "relative").(lua.LBool); ok {
			a.Relative = bool(rel)
		}
		if samples, ok := field(t, "samples").(*lua.LTable); ok {
			n := samples.Len()
			for i := 0; i < n && i < event.MaxAxisValues; i++ {
				if v, ok := samples.RawGetInt(i + 1).(lua.LNumber); ok {
					a.Values[i] = int16(v)
				}
				a.NValues++
			}
		}
		ev = event.New(event.IOAxisMove, event.IO{Device: dev, Input: a})

	case "digital":
		active := fieldBool(t, "active")
		if fieldBool(t, "translated") {
			tr := event.Translated{
				Active:    active,
				Scancode:  uint8(fieldInt(t, "number")),
				Keysym:    uint16(fieldInt(t, "keysym")),
				Modifiers: uint16(fieldInt(t, "modifiers")),
				DevID:     uint8(fieldInt(t, "devid")),
				SubID:     uint16(fieldInt(t, "subid")),
			}
			k := event.IOKeybRelease
			if active {
				k = event.IOKeybPress
			}
			ev = event.New(k, event.IO{Device: event.DeviceKeyboard, Input: tr})
		} else {
			d := event.Digital{
				Active: active,
				DevID:  uint8(fieldInt(t, "devid")),
				SubID:  uint8(fieldInt(t, "subid")),
			}
			k := event.IOButtonRelease
			if active {
				k = event.IOButtonPress
			}
			ev = event.New(k, event.IO{Device: deviceFrom(t), Input: d})
		}

	default:
		return event.Event{}, fmt.Errorf("%w: kind %q", ErrInputTable, kind)
	}

	if label := fieldStr(t, "label"); label != "" {
		ev = ev.WithLabel(label)
	}
	return ev, nil
}
