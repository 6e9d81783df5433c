package termio

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"

	"github.com/dshills/eventq/internal/event"
	"github.com/dshills/eventq/internal/queue"
)

// Source is the part of tcell.Screen the producer reads from.
type Source interface {
	PollEvent() tcell.Event
	PostEvent(ev tcell.Event) error
}

// Producer pumps terminal input into an event context.
type Producer struct {
	src      Source
	dst      *queue.Context
	conv     Converter
	logger   *zap.Logger
	onResize func(w, h int)

	produced atomic.Uint64
	rejected atomic.Uint64
}

// Option configures a Producer.
type Option func(*Producer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Producer) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithDevID sets the device id stamped on produced events.
func WithDevID(id uint8) Option {
	return func(p *Producer) { p.conv.DevID = id }
}

// WithResize registers a callback for terminal resizes.
func WithResize(fn func(w, h int)) Option {
	return func(p *Producer) { p.onResize = fn }
}

// NewProducer creates a producer reading src and enqueueing into dst.
func NewProducer(src Source, dst *queue.Context, opts ...Option) *Producer {
	p := &Producer{src: src, dst: dst, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("termio")
	return p
}

// Run reads events until ctx is done or the source is finalized. It
// returns ctx's error on cancellation and nil when the source runs dry.
func (p *Producer) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		// wake the blocked PollEvent
		_ = p.src.PostEvent(tcell.NewEventInterrupt(nil))
	})
	defer stop()

	for {
		ev := p.src.PollEvent()
		if ev == nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		p.handle(ev)
	}
}

func (p *Producer) handle(ev tcell.Event) {
	if r, ok := ev.(*tcell.EventResize); ok {
		if p.onResize != nil {
			w, h := r.Size()
			p.onResize(w, h)
		}
		return
	}
	for _, out := range p.conv.Convert(ev) {
		p.emit(out)
	}
}

func (p *Producer) emit(ev event.Event) {
	err := p.dst.Enqueue(ev)
	if err == nil {
		p.produced.Add(1)
		return
	}
	p.rejected.Add(1)
	if !errors.Is(err, queue.ErrMasked) && !errors.Is(err, queue.ErrFiltered) {
		p.logger.Debug("input dropped", zap.Stringer("event", ev), zap.Error(err))
	}
}

// Produced returns how many events were accepted by the destination.
func (p *Producer) Produced() uint64 { return p.produced.Load() }

// Rejected returns how many events the destination refused.
func (p *Producer) Rejected() uint64 { return p.rejected.Load() }
