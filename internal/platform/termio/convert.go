package termio

import (
	"github.com/gdamore/tcell/v2"

	"github.com/dshills/eventq/internal/event"
)

// Modifier bits carried in event.Translated.Modifiers.
const (
	ModShift uint16 = 1 << iota
	ModCtrl
	ModAlt
	ModMeta
)

// Mouse button sub ids. Wheel motion is reported as a press immediately
// followed by a release.
const (
	ButtonLeft uint8 = iota + 1
	ButtonMiddle
	ButtonRight
	WheelUp
	WheelDown
	WheelLeft
	WheelRight
)

var buttons = []struct {
	mask  tcell.ButtonMask
	subid uint8
	wheel bool
}{
	{tcell.ButtonPrimary, ButtonLeft, false},
	{tcell.ButtonMiddle, ButtonMiddle, false},
	{tcell.ButtonSecondary, ButtonRight, false},
	{tcell.WheelUp, WheelUp, true},
	{tcell.WheelDown, WheelDown, true},
	{tcell.WheelLeft, WheelLeft, true},
	{tcell.WheelRight, WheelRight, true},
}

// Converter maps tcell events to IO events. It remembers the last pointer
// position and button mask so only changes are reported. A Converter is not
// safe for concurrent use.
type Converter struct {
	// DevID is stamped on every produced event.
	DevID uint8

	x, y    int
	moved   bool
	pressed tcell.ButtonMask
}

// Convert returns the IO events for ev. Events with no input meaning, such
// as resizes, yield nothing.
func (c *Converter) Convert(ev tcell.Event) []event.Event {
	switch e := ev.(type) {
	case *tcell.EventKey:
		return c.key(e)
	case *tcell.EventMouse:
		return c.mouse(e)
	default:
		return nil
	}
}

func (c *Converter) key(e *tcell.EventKey) []event.Event {
	tr := event.Translated{
		DevID:     c.DevID,
		Keysym:    keysym(e),
		Modifiers: modifiers(e.Modifiers()),
	}
	if e.Key() == tcell.KeyRune {
		tr.SubID = uint16(e.Rune())
	} else if e.Key() < tcell.KeyRune {
		// control keys carry their ASCII code
		tr.Scancode = uint8(e.Key())
	}

	press := tr
	press.Active = true
	return []event.Event{
		event.New(event.IOKeybPress, event.IO{Device: event.DeviceKeyboard, Input: press}),
		event.New(event.IOKeybRelease, event.IO{Device: event.DeviceKeyboard, Input: tr}),
	}
}

func keysym(e *tcell.EventKey) uint16 {
	if e.Key() == tcell.KeyRune {
		return uint16(e.Rune())
	}
	return uint16(e.Key())
}

func modifiers(m tcell.ModMask) uint16 {
	var out uint16
	if m&tcell.ModShift != 0 {
		out |= ModShift
	}
	if m&tcell.ModCtrl != 0 {
		out |= ModCtrl
	}
	if m&tcell.ModAlt != 0 {
		out |= ModAlt
	}
	if m&tcell.ModMeta != 0 {
		out |= ModMeta
	}
	return out
}

func (c *Converter) mouse(e *tcell.EventMouse) []event.Event {
	var out []event.Event

	x, y := e.Position()
	if !c.moved || x != c.x || y != c.y {
		c.x, c.y, c.moved = x, y, true
		a := event.Analog{DevID: c.DevID, NValues: 2}
		a.Values[0], a.Values[1] = int16(x), int16(y)
		out = append(out, event.New(event.IOAxisMove, event.IO{Device: event.DeviceMouse, Input: a}))
	}

	mask := e.Buttons()
	for _, b := range buttons {
		down := mask&b.mask != 0
		was := c.pressed&b.mask != 0
		switch {
		case b.wheel && down:
			out = append(out, c.button(b.subid, true), c.button(b.subid, false))
		case down && !was:
			out = append(out, c.button(b.subid, true))
		case !down && was:
			out = append(out, c.button(b.subid, false))
		}
	}
	c.pressed = mask &^ (tcell.WheelUp | tcell.WheelDown | tcell.WheelLeft | tcell.WheelRight)
	return out
}

func (c *Converter) button(subid uint8, active bool) event.Event {
	k := event.IOButtonRelease
	if active {
		k = event.IOButtonPress
	}
	return event.New(k, event.IO{
		Device: event.DeviceMouse,
		Input:  event.Digital{DevID: c.DevID, SubID: subid, Active: active},
	})
}
