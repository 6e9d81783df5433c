package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/eventq/internal/event"
	"github.com/dshills/eventq/internal/frameserver"
	"github.com/dshills/eventq/internal/logging"
	"github.com/dshills/eventq/internal/queue"
)

// FrameserverOptions holds flags for the frameserver child mode.
type FrameserverOptions struct {
	*RootOptions
	Width       int32
	Height      int32
	FPS         int
	PeerTimeout time.Duration
}

// NewFrameserverCommand creates the hidden frameserver command. The parent
// starts it with the descriptors of its shared rings.
func NewFrameserverCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FrameserverOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:    "frameserver",
		Short:  "Run as a frameserver child of eventq run",
		Hidden: true,
		Long: `Attach to the rings handed down by the parent, announce a resize and
produce frame notifications. Step and reset commands move the frame counter,
pause stops periodic frames and exit ends the process. Injected input events
are echoed back to the parent.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFrameserver(ctxOrBackground(cmd.Context()), opts)
		},
	}
	cmd.Flags().Int32Var(&opts.Width, "width", 640, "announced width")
	cmd.Flags().Int32Var(&opts.Height, "height", 480, "announced height")
	cmd.Flags().IntVar(&opts.FPS, "fps", 0, "periodic frame notifications per second, 0 to only step on command")
	cmd.Flags().DurationVar(&opts.PeerTimeout, "peer-timeout", queue.DefaultTimeout, "bound on waits for the parent")
	return cmd
}

func runFrameserver(ctx context.Context, opts *FrameserverOptions) error {
	// stderr is collected by the parent's logger
	logger, err := logging.New(logging.Options{Level: opts.LogLevel, Format: opts.LogFormat})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build logger", err)
	}
	defer logger.Sync() //nolint:errcheck

	s, err := frameserver.Attach(queue.WithTimeout(opts.PeerTimeout), queue.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "attach failed", err)
	}
	defer s.Close()

	fs := &frameLoop{in: s.In, out: s.Out, fps: opts.FPS, logger: logger}
	return fs.run(ctx, opts.Width, opts.Height)
}

// frameLoop is the child side of a frameserver.
type frameLoop struct {
	in, out *queue.Context
	fps     int
	logger  *zap.Logger

	frame  int32
	paused bool
}

const commandPoll = 5 * time.Millisecond

func (f *frameLoop) run(ctx context.Context, width, height int32) error {
	f.emit(event.New(event.FrameserverResized, event.Frameserver{Width: width, Height: height}))

	poll := time.NewTicker(commandPoll)
	defer poll.Stop()
	var frames <-chan time.Time
	if f.fps > 0 {
		t := time.NewTicker(time.Second / time.Duration(f.fps))
		defer t.Stop()
		frames = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-frames:
			if !f.paused {
				f.step(1)
			}
		case <-poll.C:
			if done := f.commands(); done {
				return nil
			}
		}
	}
}

// commands handles everything queued by the parent and reports whether an
// exit command arrived.
func (f *frameLoop) commands() bool {
	for {
		ev, ok := f.in.Poll()
		if !ok {
			return false
		}
		switch p := ev.Data.(type) {
		case event.Target:
			switch p.Command {
			case event.TargetExit:
				f.logger.Info("exit requested")
				return true
			case event.TargetStepFrame:
				f.step(p.Args[0].Int())
			case event.TargetReset:
				f.frame = 0
				f.emit(event.New(event.FrameserverLooped, event.Frameserver{}))
			case event.TargetPause:
				f.paused = true
			case event.TargetUnpause:
				f.paused = false
			default:
				f.logger.Debug("ignored command", zap.Stringer("event", ev))
			}
		case event.IO:
			f.emit(ev)
		}
	}
}

func (f *frameLoop) step(n int32) {
	if n < 1 {
		n = 1
	}
	f.frame += n
	f.emit(event.New(event.ExternalNoticeNewFrame, event.External{Data: event.FrameNumber(f.frame)}))
}

func (f *frameLoop) emit(ev event.Event) {
	if err := f.out.Enqueue(ev); err != nil && !errors.Is(err, queue.ErrMasked) {
		f.logger.Debug("event not delivered", zap.Stringer("event", ev), zap.Error(err))
	}
}
