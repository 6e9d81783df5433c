package wire

import (
	"bytes"
	"fmt"
	"io"

	xdr "github.com/davecgh/go-xdr/xdr2"

	"github.com/dshills/eventq/internal/event"
)

// HeaderSize is the encoded size of kind, category, tickstamp and label.
const HeaderSize = 4 + 4 + 4 + event.LabelSize

// Inner union discriminators. These values are part of the wire format.
const (
	systemTags    uint32 = 0
	systemMessage uint32 = 1

	externalMessage uint32 = 0
	externalState   uint32 = 1
	externalStatus  uint32 = 2
	externalFrame   uint32 = 3

	netHost   uint32 = 0
	netHandle uint32 = 1
)

// Pack serializes ev and appends pad zero bytes. The returned buffer is
// newly allocated.
func Pack(ev *event.Event, pad int) ([]byte, error) {
	if ev == nil || ev.Data == nil {
		return nil, ErrNilEvent
	}
	if pad < 0 {
		return nil, ErrNegativePad
	}

	var buf bytes.Buffer
	buf.Grow(HeaderSize + 64 + pad)
	if _, err := Encode(&buf, ev); err != nil {
		return nil, err
	}
	buf.Write(make([]byte, pad))
	return buf.Bytes(), nil
}

// Size returns the unpadded encoded size of ev.
func Size(ev *event.Event) (int, error) {
	return Encode(io.Discard, ev)
}

// Encode writes the unpadded encoding of ev to w and returns the number of
// bytes written.
func Encode(w io.Writer, ev *event.Event) (int, error) {
	if ev == nil || ev.Data == nil {
		return 0, ErrNilEvent
	}
	if err := event.Validate(*ev); err != nil {
		return 0, err
	}

	e := &encoder{enc: xdr.NewEncoder(w)}
	e.u32(uint32(ev.Kind))
	e.u32(uint32(ev.Category()))
	e.u32(ev.Tickstamp)
	e.fixed(ev.Label[:])
	encodePayload(e, ev.Data)
	if e.err != nil {
		return e.n, fmt.Errorf("wire: encode: %w", e.err)
	}
	return e.n, nil
}

func encodePayload(e *encoder, p event.Payload) {
	switch v := p.(type) {
	case event.System:
		e.i32(v.ErrCode)
		switch d := v.Data.(type) {
		case event.Tags:
			e.u32(systemTags)
			e.hyper(d.Hi)
			e.hyper(d.Lo)
		case *event.Message:
			e.u32(systemMessage)
			e.str(d.Peek())
		}

	case event.IO:
		e.u32(uint32(v.Device))
		e.u32(uint32(v.Input.DataKind()))
		switch in := v.Input.(type) {
		case event.Digital:
			e.u32(uint32(in.DevID))
			e.u32(uint32(in.SubID))
			e.boolean(in.Active)
		case event.Analog:
			e.boolean(in.Relative)
			e.u32(uint32(in.DevID))
			e.u32(uint32(in.SubID))
			e.u32(uint32(in.IDCount))
			e.u32(uint32(in.NValues))
			for _, s := range in.Values {
				e.i32(int32(s))
			}
		case event.Translated:
			e.boolean(in.Active)
			e.u32(uint32(in.DevID))
			e.u32(uint32(in.SubID))
			e.u32(uint32(in.Keysym))
			e.u32(uint32(in.Modifiers))
			e.u32(uint32(in.Scancode))
		}

	case event.Timer:
		e.hyper(v.Pulse)

	case event.Video:
		e.hyper(int64(v.Source))
		e.i32(v.Constraints.Width)
		e.i32(v.Constraints.Height)
		e.u32(uint32(v.Constraints.BPP))
		pr := v.Props
		e.floats(pr.Position.X, pr.Position.Y, pr.Position.Z)
		e.floats(pr.Scale.X, pr.Scale.Y, pr.Scale.Z)
		e.floats(pr.Rotation.Roll, pr.Rotation.Pitch, pr.Rotation.Yaw)
		e.floats(pr.Opacity)
		e.hyper(v.Tag)

	case event.Audio:
		e.hyper(int64(v.Source))

	case event.Target:
		e.u32(uint32(v.Command))
		for _, a := range v.Args {
			e.u32(uint32(a))
		}

	case event.Frameserver:
		e.hyper(int64(v.Video))
		e.hyper(int64(v.Audio))
		e.i32(v.Width)
		e.i32(v.Height)
		e.u32(v.ABuffers)
		e.u32(v.VBuffers)
		e.u32(v.ABufferLimit)
		e.u32(v.VBufferLimit)
		e.boolean(v.GLSource)
		e.hyper(v.Tag)

	case event.External:
		e.hyper(int64(v.Source))
		switch d := v.Data.(type) {
		case event.ExternalMessage:
			e.u32(externalMessage)
			e.fixed(d[:])
		case event.StateSize:
			e.u32(externalState)
			e.i32(int32(d))
		case event.StatusCode:
			e.u32(externalStatus)
			e.u32(uint32(d))
		case event.FrameNumber:
			e.u32(externalFrame)
			e.u32(uint32(d))
		}

	case event.Net:
		e.hyper(int64(v.Source))
		e.u32(v.ConnID)
		switch a := v.Addr.(type) {
		case event.HostAddr:
			e.u32(netHost)
			e.fixed(a[:])
		case event.ConnHandle:
			e.u32(netHandle)
			e.fixed(a[:])
		}
	}
}

// Unpack decodes one event from the start of buf and returns the number of
// bytes consumed. It never reads past len(buf). Trailing bytes, such as pad,
// are left for the caller.
func Unpack(buf []byte) (event.Event, int, error) {
	r := bytes.NewReader(buf)
	d := &decoder{r: r, dec: xdr.NewDecoder(r), size: len(buf)}

	var ev event.Event
	ev.Kind = event.Kind(d.u32("kind"))
	catOff := d.off()
	rawCat := d.u32("category")
	ev.Tickstamp = d.u32("tickstamp")
	copy(ev.Label[:], d.fixed("label", event.LabelSize))
	if d.err != nil {
		return event.Event{}, 0, d.err
	}

	cat := event.Category(rawCat)
	if rawCat > 0xffff || !cat.Valid() {
		return event.Event{}, 0, &DecodeError{Offset: catOff, Field: "category",
			Err: fmt.Errorf("%w: 0x%x", ErrUnknownCategory, rawCat)}
	}

	ev.Data = decodePayload(d, cat)
	if d.err != nil {
		return event.Event{}, 0, d.err
	}
	return ev, d.off(), nil
}

func decodePayload(d *decoder, cat event.Category) event.Payload {
	switch cat {
	case event.CategorySystem:
		var v event.System
		v.ErrCode = d.i32("system.errcode")
		switch d.variant("system.variant", systemMessage) {
		case systemTags:
			v.Data = event.Tags{Hi: d.hyper("system.tags.hi"), Lo: d.hyper("system.tags.lo")}
		case systemMessage:
			v.Data = event.NewMessage(d.str("system.message"))
		}
		return v

	case event.CategoryIO:
		var v event.IO
		v.Device = event.DeviceKind(d.variant("io.devkind", uint32(event.DeviceGame)))
		switch event.DataKind(d.variant("io.datakind", uint32(event.DataTranslated))) {
		case event.DataDigital:
			v.Input = event.Digital{
				DevID:  d.u8("io.digital.devid"),
				SubID:  d.u8("io.digital.subid"),
				Active: d.boolean("io.digital.active"),
			}
		case event.DataAnalog:
			a := event.Analog{
				Relative: d.boolean("io.analog.relative"),
				DevID:    d.u8("io.analog.devid"),
				SubID:    d.u8("io.analog.subid"),
				IDCount:  d.u8("io.analog.idcount"),
				NValues:  d.u8("io.analog.nvalues"),
			}
			for i := range a.Values {
				a.Values[i] = d.i16("io.analog.values")
			}
			v.Input = a
		case event.DataTranslated:
			v.Input = event.Translated{
				Active:    d.boolean("io.translated.active"),
				DevID:     d.u8("io.translated.devid"),
				SubID:     d.u16("io.translated.subid"),
				Keysym:    d.u16("io.translated.keysym"),
				Modifiers: d.u16("io.translated.modifiers"),
				Scancode:  d.u8("io.translated.scancode"),
			}
		}
		return v

	case event.CategoryTimer:
		return event.Timer{Pulse: d.hyper("timer.pulse")}

	case event.CategoryVideo:
		var v event.Video
		v.Source = event.ObjectID(d.hyper("video.source"))
		v.Constraints.Width = d.i32("video.width")
		v.Constraints.Height = d.i32("video.height")
		v.Constraints.BPP = d.u8("video.bpp")
		p := &v.Props
		p.Position = event.Vec3{X: d.float("video.position"), Y: d.float("video.position"), Z: d.float("video.position")}
		p.Scale = event.Vec3{X: d.float("video.scale"), Y: d.float("video.scale"), Z: d.float("video.scale")}
		p.Rotation = event.Rotation{Roll: d.float("video.rotation"), Pitch: d.float("video.rotation"), Yaw: d.float("video.rotation")}
		p.Opacity = d.float("video.opacity")
		v.Tag = d.hyper("video.tag")
		return v

	case event.CategoryAudio:
		return event.Audio{Source: event.ObjectID(d.hyper("audio.source"))}

	case event.CategoryTarget:
		var v event.Target
		v.Command = event.TargetCommand(d.u32("target.command"))
		for i := range v.Args {
			v.Args[i] = event.TargetArg(d.u32("target.args"))
		}
		return v

	case event.CategoryFrameserver:
		return event.Frameserver{
			Video:        event.ObjectID(d.hyper("frameserver.video")),
			Audio:        event.ObjectID(d.hyper("frameserver.audio")),
			Width:        d.i32("frameserver.width"),
			Height:       d.i32("frameserver.height"),
			ABuffers:     d.u32("frameserver.c_abuf"),
			VBuffers:     d.u32("frameserver.c_vbuf"),
			ABufferLimit: d.u32("frameserver.l_abuf"),
			VBufferLimit: d.u32("frameserver.l_vbuf"),
			GLSource:     d.boolean("frameserver.glsource"),
			Tag:          d.hyper("frameserver.tag"),
		}

	case event.CategoryExternal:
		var v event.External
		v.Source = event.ObjectID(d.hyper("external.source"))
		switch d.variant("external.variant", externalFrame) {
		case externalMessage:
			var m event.ExternalMessage
			copy(m[:], d.fixed("external.message", event.ExternalMessageSize))
			v.Data = m
		case externalState:
			v.Data = event.StateSize(d.i32("external.state"))
		case externalStatus:
			v.Data = event.StatusCode(d.u32("external.code"))
		case externalFrame:
			v.Data = event.FrameNumber(d.u32("external.frame"))
		}
		return v

	case event.CategoryNet:
		var v event.Net
		v.Source = event.ObjectID(d.hyper("net.source"))
		v.ConnID = d.u32("net.connid")
		switch d.variant("net.variant", netHandle) {
		case netHost:
			var h event.HostAddr
			copy(h[:], d.fixed("net.host", event.HostAddrSize))
			v.Addr = h
		case netHandle:
			var h event.ConnHandle
			copy(h[:], d.fixed("net.handle", len(h)))
			v.Addr = h
		}
		return v
	}
	return nil
}
