package wire

import (
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sebdah/goldie/v2"

	"github.com/dshills/eventq/internal/event"
)

type codecCase struct {
	name string
	ev   event.Event
}

func stamped(ev event.Event, tick uint32) event.Event {
	ev.Tickstamp = tick
	return ev
}

func codecCases() []codecCase {
	return []codecCase{
		{"timer_pulse", stamped(event.New(event.TimerPulse,
			event.Timer{Pulse: 1234567890123}).WithLabel("clock"), 7)},
		{"io_digital", stamped(event.New(event.IOButtonPress, event.IO{
			Device: event.DeviceMouse,
			Input:  event.Digital{DevID: 1, SubID: 2, Active: true},
		}), 1)},
		{"io_analog", stamped(event.New(event.IOAxisMove, event.IO{
			Device: event.DeviceMouse,
			Input: event.Analog{Relative: true, DevID: 1, IDCount: 2, NValues: 2,
				Values: [4]int16{-3, 5}},
		}), 2)},
		{"io_translated", stamped(event.New(event.IOKeybPress, event.IO{
			Device: event.DeviceKeyboard,
			Input:  event.Translated{Active: true, Keysym: 97, Modifiers: 1, Scancode: 30},
		}).WithLabel("kbd"), 3)},
		{"video_moved", stamped(event.New(event.VideoMoved, event.Video{
			Source:      42,
			Constraints: event.Constraints{Width: 640, Height: 480, BPP: 4},
			Props: event.SurfaceProps{
				Position: event.Vec3{X: 1.5, Y: 2},
				Scale:    event.Vec3{X: 1, Y: 1, Z: 1},
				Rotation: event.Rotation{Yaw: 90},
				Opacity:  0.5,
			},
			Tag: -1,
		}).WithLabel("window"), 4)},
		{"system_message", stamped(event.New(event.SystemEvalCmd, event.System{
			ErrCode: 2, Data: event.NewMessage("hello"),
		}), 5)},
		{"system_tags", stamped(event.New(event.SystemActivate, event.System{
			Data: event.Tags{Hi: 1, Lo: -2},
		}), 6)},
		{"target_frameskip", stamped(event.New(event.Kind(event.TargetFrameskip), event.Target{
			Command: event.TargetFrameskip,
			Args:    [4]event.TargetArg{event.IntArg(event.SkipNone), event.FloatArg(0.25)},
		}), 8)},
		{"frameserver_resized", stamped(event.New(event.FrameserverResized, event.Frameserver{
			Video: 10, Audio: 11, Width: 320, Height: 200,
			ABuffers: 1, VBuffers: 2, ABufferLimit: 3, VBufferLimit: 4,
			GLSource: true, Tag: 99,
		}), 9)},
		{"external_message", stamped(event.New(event.ExternalNoticeMessage, event.External{
			Source: 5, Data: event.NewExternalMessage("ident"),
		}), 10)},
		{"external_frame", stamped(event.New(event.ExternalNoticeNewFrame, event.External{
			Source: 5, Data: event.FrameNumber(1000),
		}), 11)},
		{"net_connected", stamped(event.New(event.NetConnected, event.Net{
			Source: 6, ConnID: 3, Addr: event.NewHostAddr("127.0.0.1"),
		}), 12)},
		{"audio_finished", stamped(event.New(event.AudioPlaybackFinished,
			event.Audio{Source: 12}), 13)},
	}
}

// units renders an encoding as one hex XDR unit per line.
func units(buf []byte) []byte {
	var sb strings.Builder
	for i := 0; i < len(buf); i += 4 {
		end := i + 4
		if end > len(buf) {
			end = len(buf)
		}
		sb.WriteString(hex.EncodeToString(buf[i:end]))
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}

var eventCmp = cmp.Comparer(func(a, b *event.Message) bool {
	return a.Peek() == b.Peek()
})

func TestPack_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	for _, tc := range codecCases() {
		t.Run(tc.name, func(t *testing.T) {
			buf, err := Pack(&tc.ev, 0)
			if err != nil {
				t.Fatalf("Pack() error = %v", err)
			}
			g.Assert(t, tc.name, units(buf))
		})
	}
}

func TestRoundTrip(t *testing.T) {
	for _, tc := range codecCases() {
		t.Run(tc.name, func(t *testing.T) {
			for _, pad := range []int{0, 3, 16} {
				buf, err := Pack(&tc.ev, pad)
				if err != nil {
					t.Fatalf("Pack(pad=%d) error = %v", pad, err)
				}

				size, err := Size(&tc.ev)
				if err != nil {
					t.Fatalf("Size() error = %v", err)
				}
				if len(buf) != size+pad {
					t.Fatalf("len = %d, want %d+%d", len(buf), size, pad)
				}

				got, n, err := Unpack(buf)
				if err != nil {
					t.Fatalf("Unpack() error = %v", err)
				}
				if n != size {
					t.Errorf("consumed %d bytes, want %d", n, size)
				}
				if diff := cmp.Diff(tc.ev, got, eventCmp); diff != "" {
					t.Errorf("round trip mismatch (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestRoundTrip_MessageOwnership(t *testing.T) {
	msg := event.NewMessage("segfault in core")
	ev := event.New(event.SystemIOFail, event.System{Data: msg})

	buf, err := Pack(&ev, 0)
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	if !msg.Pending() {
		t.Error("packing consumed the message")
	}

	got, _, err := Unpack(buf)
	if err != nil {
		t.Fatalf("Unpack() error = %v", err)
	}
	decoded := got.Data.(event.System).Data.(*event.Message)
	if decoded == msg {
		t.Error("decoded message shares the original")
	}
	if text, ok := decoded.Take(); !ok || text != "segfault in core" {
		t.Errorf("Take() = %q, %v", text, ok)
	}
}

func TestRoundTrip_LocalFieldsDropped(t *testing.T) {
	ev := event.New(event.Kind(event.TargetFDTransfer), event.Target{
		Command: event.TargetFDTransfer,
		Handle:  7,
	})
	buf, err := Pack(&ev, 0)
	if err != nil {
		t.Fatal(err)
	}
	got, _, err := Unpack(buf)
	if err != nil {
		t.Fatal(err)
	}
	if h := got.Data.(event.Target).Handle; h != 0 {
		t.Errorf("handle crossed the wire: %d", h)
	}
}

func TestUnpack_ShortBuffer(t *testing.T) {
	for _, tc := range codecCases() {
		t.Run(tc.name, func(t *testing.T) {
			buf, err := Pack(&tc.ev, 0)
			if err != nil {
				t.Fatal(err)
			}
			for cut := 0; cut < len(buf); cut++ {
				_, n, err := Unpack(buf[:cut])
				if !errors.Is(err, ErrShortBuffer) {
					t.Fatalf("Unpack(buf[:%d]) error = %v, want ErrShortBuffer", cut, err)
				}
				if n != 0 {
					t.Fatalf("Unpack(buf[:%d]) consumed %d", cut, n)
				}
			}
		})
	}
}

func TestUnpack_OversizedString(t *testing.T) {
	ev := event.New(event.SystemEvalCmd, event.System{Data: event.NewMessage("abcd")})
	buf, err := Pack(&ev, 0)
	if err != nil {
		t.Fatal(err)
	}
	// length prefix follows the header, errcode and variant
	off := HeaderSize + 8
	buf[off], buf[off+1], buf[off+2], buf[off+3] = 0x7f, 0xff, 0xff, 0xff

	_, _, err = Unpack(buf)
	if !errors.Is(err, ErrShortBuffer) {
		t.Errorf("error = %v, want ErrShortBuffer", err)
	}
}

func TestUnpack_UnknownCategory(t *testing.T) {
	for _, cat := range []uint32{0, 3, 512, 0x10002} {
		ev := event.New(event.TimerPulse, event.Timer{Pulse: 1})
		buf, err := Pack(&ev, 0)
		if err != nil {
			t.Fatal(err)
		}
		buf[4], buf[5], buf[6], buf[7] = byte(cat>>24), byte(cat>>16), byte(cat>>8), byte(cat)

		_, _, err = Unpack(buf)
		if !errors.Is(err, ErrUnknownCategory) {
			t.Errorf("category 0x%x: error = %v, want ErrUnknownCategory", cat, err)
		}
		var de *DecodeError
		if !errors.As(err, &de) || de.Offset != 4 {
			t.Errorf("category 0x%x: expected DecodeError at offset 4, got %v", cat, err)
		}
	}
}

func TestUnpack_UnknownVariant(t *testing.T) {
	tests := []struct {
		name string
		ev   event.Event
		off  int
	}{
		{"system", event.New(event.SystemActivate, event.System{Data: event.Tags{}}), HeaderSize + 4},
		{"io device", event.New(event.IOButtonPress, event.IO{Input: event.Digital{}}), HeaderSize},
		{"io data", event.New(event.IOButtonPress, event.IO{Input: event.Digital{}}), HeaderSize + 4},
		{"external", event.New(event.ExternalNoticeNewFrame, event.External{Data: event.FrameNumber(1)}), HeaderSize + 8},
		{"net", event.New(event.NetConnected, event.Net{Addr: event.ConnHandle{}}), HeaderSize + 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := Pack(&tt.ev, 0)
			if err != nil {
				t.Fatal(err)
			}
			buf[tt.off+3] = 9

			_, _, err = Unpack(buf)
			if !errors.Is(err, ErrUnknownVariant) {
				t.Errorf("error = %v, want ErrUnknownVariant", err)
			}
		})
	}
}

func TestUnpack_MalformedBool(t *testing.T) {
	ev := event.New(event.IOButtonPress, event.IO{Input: event.Digital{Active: true}})
	buf, err := Pack(&ev, 0)
	if err != nil {
		t.Fatal(err)
	}
	buf[len(buf)-1] = 2

	_, _, err = Unpack(buf)
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("error = %v, want ErrMalformed", err)
	}
}

func TestUnpack_OutOfRange(t *testing.T) {
	digital := event.New(event.IOButtonPress, event.IO{Input: event.Digital{DevID: 1}})
	analog := event.New(event.IOAxisMove, event.IO{Input: event.Analog{NValues: 1, Values: [4]int16{1}}})
	translated := event.New(event.IOKeybPress, event.IO{Device: event.DeviceKeyboard,
		Input: event.Translated{Keysym: 97}})

	tests := []struct {
		name  string
		ev    event.Event
		off   int
		value [4]byte
		field string
	}{
		{"devid above uint8", digital, HeaderSize + 8, [4]byte{0, 0, 1, 0}, "io.digital.devid"},
		{"sample above int16", analog, HeaderSize + 28, [4]byte{0, 0, 0x9c, 0x40}, "io.analog.values"},
		{"sample below int16", analog, HeaderSize + 28, [4]byte{0xff, 0xff, 0x63, 0xc0}, "io.analog.values"},
		{"keysym above uint16", translated, HeaderSize + 16, [4]byte{0, 1, 0, 0}, "io.translated.keysym"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := Pack(&tt.ev, 0)
			if err != nil {
				t.Fatal(err)
			}
			copy(buf[tt.off:], tt.value[:])

			_, n, err := Unpack(buf)
			if !errors.Is(err, ErrMalformed) || n != 0 {
				t.Fatalf("Unpack() = %d, %v; want ErrMalformed", n, err)
			}
			var de *DecodeError
			if !errors.As(err, &de) || de.Field != tt.field || de.Offset != tt.off {
				t.Errorf("error = %v, want %s at offset %d", err, tt.field, tt.off)
			}
		})
	}
}

func TestPack_Errors(t *testing.T) {
	timer := event.New(event.TimerPulse, event.Timer{})
	incomplete := event.New(event.IOButtonPress, event.IO{})

	tests := []struct {
		name string
		ev   *event.Event
		pad  int
		want error
	}{
		{"nil event", nil, 0, ErrNilEvent},
		{"nil payload", &event.Event{}, 0, ErrNilEvent},
		{"negative pad", &timer, -1, ErrNegativePad},
		{"incomplete payload", &incomplete, 0, event.ErrInvalidEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := Pack(tt.ev, tt.pad)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if buf != nil {
				t.Error("expected nil buffer on failure")
			}
		})
	}
}

func TestPack_PadIsZero(t *testing.T) {
	ev := event.New(event.AudioObjectGone, event.Audio{Source: 1})
	buf, err := Pack(&ev, 8)
	if err != nil {
		t.Fatal(err)
	}
	for i, b := range buf[len(buf)-8:] {
		if b != 0 {
			t.Errorf("pad byte %d = %d", i, b)
		}
	}
}
