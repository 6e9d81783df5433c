package queue

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/dshills/eventq/internal/event"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func pulse(n int64) event.Event {
	return event.New(event.TimerPulse, event.Timer{Pulse: n})
}

func video(kind event.Kind, src event.ObjectID) event.Event {
	return event.New(kind, event.Video{Source: src})
}

func oneOfEach() []event.Event {
	return []event.Event{
		event.New(event.SystemActivate, event.System{Data: event.Tags{}}),
		event.New(event.IOButtonPress, event.IO{Input: event.Digital{Active: true}}),
		pulse(1),
		video(event.VideoMoved, 1),
		event.New(event.AudioPlaybackFinished, event.Audio{Source: 2}),
		event.New(event.Kind(event.TargetPause), event.Target{Command: event.TargetPause}),
		event.New(event.FrameserverResized, event.Frameserver{Video: 3}),
		event.New(event.ExternalNoticeNewFrame, event.External{Data: event.FrameNumber(1)}),
		event.New(event.NetConnected, event.Net{Addr: event.ConnHandle{}}),
	}
}

func drain(c *Context) []event.Event {
	var out []event.Event
	for {
		ev, ok := c.Poll()
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}

func pulseValues(evs []event.Event) []int64 {
	out := make([]int64, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Data.(event.Timer).Pulse)
	}
	return out
}

func TestContext_FIFOUnderCapacity(t *testing.T) {
	for _, n := range []int{0, 1, 7, 16} {
		c := New(16, WithLogger(zaptest.NewLogger(t)))
		for i := 1; i <= n; i++ {
			if err := c.Enqueue(pulse(int64(i))); err != nil {
				t.Fatalf("Enqueue() error = %v", err)
			}
		}

		got := pulseValues(drain(c))
		if len(got) != n {
			t.Fatalf("n=%d: polled %d events", n, len(got))
		}
		for i, v := range got {
			if v != int64(i+1) {
				t.Fatalf("n=%d: position %d = %d", n, i, v)
			}
		}
		if st := c.Stats(); st.Leaks != 0 || st.Pending != 0 {
			t.Errorf("n=%d: stats %+v", n, st)
		}
	}
}

func TestContext_OverflowKeepsNewest(t *testing.T) {
	const capacity = 8
	for _, k := range []int{1, 3, 8, 20} {
		c := New(capacity)
		for i := 1; i <= capacity+k; i++ {
			c.Enqueue(pulse(int64(i)))
		}

		if leaks := c.Stats().Leaks; leaks < uint64(k) {
			t.Errorf("k=%d: leaks = %d", k, leaks)
		}
		got := pulseValues(drain(c))
		if len(got) != capacity {
			t.Fatalf("k=%d: polled %d events", k, len(got))
		}
		for i, v := range got {
			if want := int64(k + i + 1); v != want {
				t.Errorf("k=%d: position %d = %d, want %d", k, i, v, want)
			}
		}
	}
}

func TestContext_SetMask(t *testing.T) {
	c := New(16)
	c.SetMask(event.CategoryIO | event.CategoryVideo)

	masked := 0
	for _, ev := range oneOfEach() {
		if err := c.Enqueue(ev); errors.Is(err, ErrMasked) {
			masked++
		}
	}

	got := drain(c)
	if len(got) != 2 {
		t.Fatalf("polled %d events, want 2", len(got))
	}
	if got[0].Category() != event.CategoryIO || got[1].Category() != event.CategoryVideo {
		t.Errorf("polled %s then %s", got[0].Category(), got[1].Category())
	}
	if masked != 7 || c.Stats().Masked != 7 {
		t.Errorf("masked = %d, stats %d", masked, c.Stats().Masked)
	}
}

func TestContext_MaskedDropIsLeak(t *testing.T) {
	c := New(4)
	c.SetMask(event.CategoryIO)

	if err := c.Enqueue(pulse(1)); !errors.Is(err, ErrMasked) {
		t.Fatalf("Enqueue() error = %v, want ErrMasked", err)
	}
	st := c.Stats()
	if st.Leaks != 1 || st.Masked != 1 || st.Enqueued != 0 {
		t.Errorf("leaks %d masked %d enqueued %d; want 1, 1, 0", st.Leaks, st.Masked, st.Enqueued)
	}

	// output masking consumes buffered events but is not a leak
	c.ClearMask()
	c.SetOutputMask(event.CategoryVideo)
	c.Enqueue(pulse(2))
	if _, ok := c.Poll(); ok {
		t.Fatal("masked-out event delivered")
	}
	if st := c.Stats(); st.Leaks != 1 || st.Masked != 2 {
		t.Errorf("after output mask: leaks %d masked %d", st.Leaks, st.Masked)
	}
}

func TestContext_MaskAllAndClear(t *testing.T) {
	c := New(4)
	c.MaskAll()
	if err := c.Enqueue(pulse(1)); !errors.Is(err, ErrMasked) {
		t.Errorf("Enqueue() with MaskAll error = %v", err)
	}
	if c.InputMask() != event.CategoryNone {
		t.Errorf("InputMask() = %s", c.InputMask())
	}

	c.ClearMask()
	if err := c.Enqueue(pulse(2)); err != nil {
		t.Errorf("Enqueue() after ClearMask error = %v", err)
	}
	if c.InputMask() != event.CategoryAll {
		t.Errorf("InputMask() = %s", c.InputMask())
	}
}

func TestContext_MaskNotRetroactive(t *testing.T) {
	c := New(4)
	c.Enqueue(pulse(1))
	c.SetMask(event.CategoryVideo)

	ev, ok := c.Poll()
	if !ok || ev.Category() != event.CategoryTimer {
		t.Errorf("buffered event lost after mask change: %v %v", ev, ok)
	}
}

func TestContext_OutputMaskConsumes(t *testing.T) {
	c := New(8)
	c.SetOutputMask(event.CategoryVideo)
	c.Enqueue(pulse(1))
	c.Enqueue(video(event.VideoMoved, 5))
	c.Enqueue(pulse(2))

	ev, ok := c.Poll()
	if !ok || ev.Category() != event.CategoryVideo {
		t.Fatalf("Poll() = %v, %v", ev, ok)
	}
	if _, ok := c.Poll(); ok {
		t.Error("masked-out timer event delivered")
	}
	if c.Pending() != 0 {
		t.Errorf("masked-out events not consumed, pending %d", c.Pending())
	}
}

func TestContext_PollMasked(t *testing.T) {
	c := New(8)
	c.Enqueue(video(event.VideoScaled, 1))
	c.Enqueue(pulse(1))
	c.Enqueue(video(event.VideoMoved, 2))
	c.Enqueue(video(event.VideoMoved, 3))

	ev, ok := c.PollMasked(event.CategoryVideo, event.KindBit(event.VideoMoved))
	if !ok {
		t.Fatal("no event")
	}
	if src, _ := event.SourceOf(ev.Data); src != 2 {
		t.Errorf("got source %d, want 2", src)
	}
	if c.Pending() != 1 {
		t.Errorf("skipped events not consumed, pending %d", c.Pending())
	}
}

func TestContext_Tickstamp(t *testing.T) {
	clk := newFakeClock()
	c := New(8, WithClock(clk), WithTick(10*time.Millisecond))

	clk.Advance(35 * time.Millisecond)
	n, frac := c.Process()
	if n != 3 {
		t.Errorf("ticks = %d, want 3", n)
	}
	if frac < 0.49 || frac > 0.51 {
		t.Errorf("fraction = %f, want 0.5", frac)
	}

	c.Enqueue(pulse(1))
	stamped := pulse(2)
	stamped.Tickstamp = 99
	c.Enqueue(stamped)

	got := drain(c)
	if got[0].Tickstamp != 3 {
		t.Errorf("assigned tickstamp = %d, want 3", got[0].Tickstamp)
	}
	if got[1].Tickstamp != 99 {
		t.Errorf("explicit tickstamp overwritten: %d", got[1].Tickstamp)
	}
}

func TestContext_ProcessCarriesRemainder(t *testing.T) {
	clk := newFakeClock()
	c := New(8, WithClock(clk), WithTick(DefaultTick))

	total := 0
	for i := 0; i < 10; i++ {
		clk.Advance(10 * time.Millisecond)
		n, frac := c.Process()
		if frac < 0 || frac >= 1 {
			t.Fatalf("fraction %f out of range", frac)
		}
		total += n
	}
	if total != 4 {
		t.Errorf("ticks over 100ms = %d, want 4", total)
	}
	if c.Ticks() != 4 {
		t.Errorf("Ticks() = %d", c.Ticks())
	}
	if c.Elapsed() != 100*time.Millisecond {
		t.Errorf("Elapsed() = %v", c.Elapsed())
	}
}

func TestContext_AnalogFilter(t *testing.T) {
	clk := newFakeClock()
	c := New(64, WithClock(clk), WithAnalogFilter(10, 0))

	axis := func(v int16) event.Event {
		return event.New(event.IOAxisMove, event.IO{
			Device: event.DeviceMouse,
			Input:  event.Analog{NValues: 1, Values: [4]int16{v}},
		})
	}

	for i := 0; i < 100; i++ {
		c.Enqueue(axis(int16(i)))
		clk.Advance(10 * time.Millisecond)
	}

	st := c.Stats()
	if st.Enqueued > 10 {
		t.Errorf("enqueued %d samples in one second at rate 10", st.Enqueued)
	}
	if st.Filtered+st.Enqueued != 100 {
		t.Errorf("filtered %d + enqueued %d != 100", st.Filtered, st.Enqueued)
	}
	if st.Leaks != 0 {
		t.Errorf("filtered samples counted as leaks: %d", st.Leaks)
	}

	// digital input is never limited
	before := c.Stats().Enqueued
	c.Enqueue(event.New(event.IOButtonPress, event.IO{Input: event.Digital{}}))
	if c.Stats().Enqueued != before+1 {
		t.Error("digital event filtered")
	}

	c.SetAnalogFilter(0, 0)
	if rate, smooth := c.AnalogFilter(); rate != 0 || smooth != 0 {
		t.Errorf("AnalogFilter() = %d, %d", rate, smooth)
	}
}

func TestContext_InvalidEvent(t *testing.T) {
	c := New(4)
	if err := c.Enqueue(event.Event{}); !errors.Is(err, event.ErrInvalidEvent) {
		t.Errorf("error = %v", err)
	}
	if c.Stats().Dropped != 1 || c.Pending() != 0 {
		t.Errorf("stats %+v", c.Stats())
	}
}

func TestContext_ConcurrentProducers(t *testing.T) {
	const producers, each = 8, 200
	c := New(producers * each)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				c.Enqueue(pulse(int64(p*each + i)))
			}
		}(p)
	}
	wg.Wait()

	if got := len(drain(c)); got != producers*each {
		t.Errorf("polled %d events, want %d", got, producers*each)
	}
}

func TestContext_Close(t *testing.T) {
	c := New(8, WithLogger(zaptest.NewLogger(t)))
	msg := event.NewMessage("core dumped")
	c.Enqueue(event.New(event.SystemEvalCmd, event.System{Data: msg}))
	taken := event.NewMessage("already read")
	taken.Take()
	c.Enqueue(event.New(event.SystemEvalCmd, event.System{Data: taken}))
	c.Enqueue(pulse(1))

	report, err := c.Close()
	if err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if report.Pending != 3 {
		t.Errorf("Pending = %d, want 3", report.Pending)
	}
	if len(report.Messages) != 1 || report.Messages[0] != msg {
		t.Fatalf("Messages = %v", report.Messages)
	}
	if !msg.Pending() {
		t.Error("Close consumed the message")
	}

	if err := c.Enqueue(pulse(2)); !errors.Is(err, ErrClosed) {
		t.Errorf("Enqueue() after Close error = %v", err)
	}
	if _, ok := c.Poll(); ok {
		t.Error("Poll() after Close returned an event")
	}
	if _, err := c.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestContext_KeyRepeat(t *testing.T) {
	c := New(4)
	c.Enqueue(pulse(1))
	if prev := c.SetKeyRepeat(30 * time.Millisecond); prev != 0 {
		t.Errorf("previous = %v", prev)
	}
	if c.KeyRepeat() != 30*time.Millisecond {
		t.Errorf("KeyRepeat() = %v", c.KeyRepeat())
	}
	if c.Pending() != 1 {
		t.Error("key repeat touched buffered events")
	}
}

func TestContext_Dump(t *testing.T) {
	c := New(4, WithName("main"))
	c.Enqueue(video(event.VideoMoved, 42).WithLabel("cursor"))
	c.Enqueue(pulse(7))

	var buf bytes.Buffer
	if err := c.Dump(&buf); err != nil {
		t.Fatalf("Dump() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"queue main: 2/4 pending", "video.moved", "src=42", "pulse=7"} {
		if !strings.Contains(out, want) {
			t.Errorf("dump missing %q:\n%s", want, out)
		}
	}
	if c.Pending() != 2 {
		t.Error("Dump consumed events")
	}
}

func TestNew_Defaults(t *testing.T) {
	c := New(0)
	if c.Cap() != DefaultCapacity {
		t.Errorf("Cap() = %d", c.Cap())
	}
	if c.Tick() != DefaultTick || c.Shared() || c.Orphaned() || c.Interactive() {
		t.Error("unexpected defaults")
	}
}
