package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/eventq/internal/event"
)

// Settings are the runtime-adjustable parameters of the main context.
type Settings struct {
	InputMask    event.Category
	OutputMask   event.Category
	AnalogRate   int
	AnalogSmooth int
	KeyRepeat    time.Duration
}

// Reconfigure applies s to the main context. Masks replace the current
// ones; the analog filter is reset.
func (l *Loop) Reconfigure(s Settings) {
	l.main.SetMask(s.InputMask)
	l.main.SetOutputMask(s.OutputMask)
	l.main.SetAnalogFilter(s.AnalogRate, s.AnalogSmooth)
	prev := l.main.SetKeyRepeat(s.KeyRepeat)
	l.logger.Info("reconfigured",
		zap.Stringer("input", s.InputMask),
		zap.Stringer("output", s.OutputMask),
		zap.Int("analog_rate", s.AnalogRate),
		zap.Int("analog_smooth", s.AnalogSmooth),
		zap.Duration("key_repeat", s.KeyRepeat),
		zap.Duration("previous_key_repeat", prev))
}

// Fanout returns a dispatcher handing every event to each of ds in order.
// All of them run; their errors are joined.
func Fanout(ds ...Dispatcher) Dispatcher {
	return DispatchFunc(func(ctx context.Context, ev event.Event) error {
		var errs []error
		for _, d := range ds {
			if d == nil {
				continue
			}
			if err := d.Dispatch(ctx, ev); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}
