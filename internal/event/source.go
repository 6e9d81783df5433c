package event

import (
	"fmt"
	"strings"
)

// SourceOf returns the source object field of p, if its category carries one.
// For frameserver payloads the video object is reported.
func SourceOf(p Payload) (ObjectID, bool) {
	switch v := p.(type) {
	case Video:
		return v.Source, true
	case Audio:
		return v.Source, true
	case External:
		return v.Source, true
	case Net:
		return v.Source, true
	case Frameserver:
		return v.Video, true
	default:
		return AnyID, false
	}
}

// WithSource returns p with its source object field replaced by id. Payloads
// without a source field are returned unchanged.
func WithSource(p Payload, id ObjectID) Payload {
	switch v := p.(type) {
	case Video:
		v.Source = id
		return v
	case Audio:
		v.Source = id
		return v
	case External:
		v.Source = id
		return v
	case Net:
		v.Source = id
		return v
	case Frameserver:
		v.Video = id
		return v
	default:
		return p
	}
}

// References reports whether p names id as one of its objects.
func References(p Payload, id ObjectID) bool {
	if fs, ok := p.(Frameserver); ok {
		return fs.Video == id || fs.Audio == id
	}
	src, ok := SourceOf(p)
	return ok && src == id
}

// Validate checks that ev has a payload and that every inner union the
// payload carries is populated.
func Validate(ev Event) error {
	switch v := ev.Data.(type) {
	case nil:
		return fmt.Errorf("%w: missing payload", ErrInvalidEvent)
	case IO:
		if v.Input == nil {
			return fmt.Errorf("%w: io event without input data", ErrInvalidEvent)
		}
	case System:
		if v.Data == nil {
			return fmt.Errorf("%w: system event without data", ErrInvalidEvent)
		}
	case External:
		if v.Data == nil {
			return fmt.Errorf("%w: external event without data", ErrInvalidEvent)
		}
	case Net:
		if v.Addr == nil {
			return fmt.Errorf("%w: net event without address", ErrInvalidEvent)
		}
	}
	return nil
}

func describe(p Payload) string {
	switch v := p.(type) {
	case IO:
		return describeIO(v)
	case Video:
		return fmt.Sprintf("src=%d size=%dx%d pos=(%g,%g,%g) opacity=%g tag=%d",
			v.Source, v.Constraints.Width, v.Constraints.Height,
			v.Props.Position.X, v.Props.Position.Y, v.Props.Position.Z,
			v.Props.Opacity, v.Tag)
	case Audio:
		return fmt.Sprintf("src=%d", v.Source)
	case System:
		switch d := v.Data.(type) {
		case Tags:
			return fmt.Sprintf("errno=%d tags=(%d,%d)", v.ErrCode, d.Hi, d.Lo)
		case *Message:
			state := "taken"
			if d.Pending() {
				state = "pending"
			}
			return fmt.Sprintf("errno=%d msg=%q (%s)", v.ErrCode, d.Peek(), state)
		}
		return fmt.Sprintf("errno=%d", v.ErrCode)
	case Timer:
		return fmt.Sprintf("pulse=%d", v.Pulse)
	case Target:
		args := make([]string, len(v.Args))
		for i, a := range v.Args {
			args[i] = fmt.Sprintf("%d", a.Int())
		}
		return fmt.Sprintf("cmd=%s args=[%s]",
			KindName(CategoryTarget, Kind(v.Command)), strings.Join(args, " "))
	case Frameserver:
		return fmt.Sprintf("vid=%d aid=%d size=%dx%d vbuf=%d/%d abuf=%d/%d gl=%t",
			v.Video, v.Audio, v.Width, v.Height,
			v.VBuffers, v.VBufferLimit, v.ABuffers, v.ABufferLimit, v.GLSource)
	case External:
		switch d := v.Data.(type) {
		case ExternalMessage:
			return fmt.Sprintf("src=%d msg=%q", v.Source, d.String())
		case StateSize:
			return fmt.Sprintf("src=%d state=%d", v.Source, int32(d))
		case StatusCode:
			return fmt.Sprintf("src=%d code=%d", v.Source, uint32(d))
		case FrameNumber:
			return fmt.Sprintf("src=%d frame=%d", v.Source, uint32(d))
		}
		return fmt.Sprintf("src=%d", v.Source)
	case Net:
		switch a := v.Addr.(type) {
		case HostAddr:
			return fmt.Sprintf("src=%d conn=%d host=%s", v.Source, v.ConnID, a.String())
		case ConnHandle:
			return fmt.Sprintf("src=%d conn=%d handle=%x", v.Source, v.ConnID, a[:])
		}
		return fmt.Sprintf("src=%d conn=%d", v.Source, v.ConnID)
	}
	return ""
}

func describeIO(v IO) string {
	switch in := v.Input.(type) {
	case Digital:
		return fmt.Sprintf("%s digital dev=%d sub=%d active=%t",
			v.Device, in.DevID, in.SubID, in.Active)
	case Analog:
		mode := "abs"
		if in.Relative {
			mode = "rel"
		}
		return fmt.Sprintf("%s analog dev=%d sub=%d %s values=%v",
			v.Device, in.DevID, in.SubID, mode, in.Samples())
	case Translated:
		return fmt.Sprintf("%s translated dev=%d sym=%d mod=0x%x scan=%d active=%t",
			v.Device, in.DevID, in.Keysym, in.Modifiers, in.Scancode, in.Active)
	}
	return v.Device.String()
}
