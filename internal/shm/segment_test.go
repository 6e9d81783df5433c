package shm

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dshills/eventq/internal/event"
	"github.com/dshills/eventq/internal/queue/ring"
)

func createPair(t *testing.T, rings, slots int) (*Segment, *Segment) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seg.shm")

	parent, err := Create(path, rings, slots)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	t.Cleanup(func() { parent.Close() })

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	child, err := Open(f)
	if err != nil {
		f.Close()
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { child.Close() })
	return parent, child
}

func mustRing(t *testing.T, s *Segment, i int) *Ring {
	t.Helper()
	r, err := s.Ring(i)
	if err != nil {
		t.Fatalf("Ring(%d) error = %v", i, err)
	}
	return r
}

func TestSegment_CrossMapping(t *testing.T) {
	parent, child := createPair(t, 2, 4)
	if child.Rings() != 2 || child.Slots() != 4 {
		t.Fatalf("geometry %d x %d", child.Rings(), child.Slots())
	}

	out := ring.New(mustRing(t, child, 1))
	in := ring.New(mustRing(t, parent, 1))

	sent := []event.Event{
		event.New(event.FrameserverResized, event.Frameserver{Video: 1, Width: 640, Height: 480}),
		event.New(event.ExternalNoticeMessage, event.External{Source: 1, Data: event.NewExternalMessage("ident")}),
		event.New(event.IOAxisMove, event.IO{Device: event.DeviceMouse,
			Input: event.Analog{NValues: 2, Values: [4]int16{10, -10}}}),
	}
	for _, ev := range sent {
		out.Push(ev)
	}

	if in.Len() != len(sent) {
		t.Fatalf("Len() on other mapping = %d", in.Len())
	}
	got := in.Drain()
	if diff := cmp.Diff(sent, got); diff != "" {
		t.Errorf("mismatch (-sent +got):\n%s", diff)
	}
	if !out.Empty() {
		t.Error("consumer cursor not visible to producer")
	}

	// ring 0 is independent
	if ring.New(mustRing(t, child, 0)).Len() != 0 {
		t.Error("ring 0 saw ring 1 traffic")
	}
}

func TestSegment_OverwriteAcrossMappings(t *testing.T) {
	parent, child := createPair(t, 1, 2)
	w := ring.New(mustRing(t, child, 0))
	r := ring.New(mustRing(t, parent, 0))

	for i := int64(1); i <= 5; i++ {
		w.Push(event.New(event.TimerPulse, event.Timer{Pulse: i}))
	}
	got := r.Drain()
	if len(got) != 2 || got[0].Data.(event.Timer).Pulse != 4 {
		t.Errorf("drained %v", got)
	}
}

func TestRing_TruncatesLongMessage(t *testing.T) {
	seg, err := CreateTemp(1, 2)
	if err != nil {
		t.Fatalf("CreateTemp() error = %v", err)
	}
	defer seg.Close()
	r := ring.New(mustRing(t, seg, 0))

	long := strings.Repeat("é", 100)
	r.Push(event.New(event.SystemEvalCmd, event.System{ErrCode: 5, Data: event.NewMessage(long)}))

	ev, ok := r.Pop()
	if !ok || ev.Data == nil {
		t.Fatal("truncated event lost")
	}
	sys := ev.Data.(event.System)
	text, _ := sys.Data.(*event.Message).Take()
	if len(text) == 0 || len(text) > MaxMessage() {
		t.Errorf("message length %d, limit %d", len(text), MaxMessage())
	}
	if !strings.HasPrefix(long, text) || !strings.HasSuffix(text, "é") {
		t.Errorf("message not cut on a rune boundary: %q", text)
	}
	if sys.ErrCode != 5 {
		t.Errorf("errcode = %d", sys.ErrCode)
	}
}

func TestRing_ShortMessageIntact(t *testing.T) {
	seg, err := CreateTemp(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer seg.Close()
	r := ring.New(mustRing(t, seg, 0))

	msg := strings.Repeat("x", MaxMessage())
	r.Push(event.New(event.SystemEvalCmd, event.System{Data: event.NewMessage(msg)}))
	ev, _ := r.Pop()
	if got := ev.Data.(event.System).Data.(*event.Message).Peek(); got != msg {
		t.Errorf("message changed: %d bytes", len(got))
	}
}

func TestRing_CorruptSlot(t *testing.T) {
	seg, err := CreateTemp(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer seg.Close()
	sr := mustRing(t, seg, 0)
	r := ring.New(sr)

	r.Push(event.New(event.TimerPulse, event.Timer{Pulse: 1}))
	// break the category field of the encoded event
	sr.slot(0)[4+7] = 3

	ev, ok := r.Pop()
	if !ok {
		t.Fatal("slot not consumed")
	}
	if ev.Data != nil {
		t.Errorf("corrupt slot decoded as %v", ev)
	}
}

func TestOpen_Rejects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk")
	if err := os.WriteFile(path, make([]byte, 256), 0o600); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if _, err := Open(f); !errors.Is(err, ErrBadSegment) {
		t.Errorf("error = %v, want ErrBadSegment", err)
	}
}

func TestSegment_RingBounds(t *testing.T) {
	seg, err := CreateTemp(2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := seg.Ring(2); !errors.Is(err, ErrNoRing) {
		t.Errorf("error = %v, want ErrNoRing", err)
	}
	seg.Close()
	if _, err := seg.Ring(0); !errors.Is(err, ErrClosed) {
		t.Errorf("error = %v, want ErrClosed", err)
	}
	if err := seg.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close() error = %v", err)
	}
}
