package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/eventq/internal/config"
	"github.com/dshills/eventq/internal/config/watcher"
	"github.com/dshills/eventq/internal/engine"
	"github.com/dshills/eventq/internal/event"
	"github.com/dshills/eventq/internal/frameserver"
	"github.com/dshills/eventq/internal/journal"
	"github.com/dshills/eventq/internal/metrics"
	"github.com/dshills/eventq/internal/platform/termio"
	"github.com/dshills/eventq/internal/queue"
	"github.com/dshills/eventq/internal/relay"
	"github.com/dshills/eventq/internal/script"
)

// SelfCommand in a frameserver command line is replaced by the running
// eventq executable.
const SelfCommand = "@self"

const shutdownTimeout = 2 * time.Second

// RunOptions holds flags for the run command. Non-empty flags override the
// configuration.
type RunOptions struct {
	*RootOptions
	ScriptPath  string
	MetricsAddr string
	JournalPath string
	RelayURL    string
	Headless    bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the main event loop",
		Long: `Run the main event loop.

Terminal input, configured frameservers and the NATS relay feed the main
queue. Every event is journaled when a journal is configured and handed to
the Lua script. Ctrl-C in the terminal or shutdown() from the script ends
the loop; a frameserver command starting with @self runs this executable.

Examples:
  eventq run --config eventq.toml --script main.lua
  eventq run --headless --relay-url nats://127.0.0.1:4222 --metrics-addr :9464`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(ctxOrBackground(cmd.Context()), opts)
		},
	}

	cmd.Flags().StringVar(&opts.ScriptPath, "script", "", "Lua script receiving events")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&opts.JournalPath, "journal", "", "record dispatched events in this SQLite database")
	cmd.Flags().StringVar(&opts.RelayURL, "relay-url", "", "NATS server to relay events through")
	cmd.Flags().BoolVar(&opts.Headless, "headless", false, "do not read terminal input")
	return cmd
}

func (o *RunOptions) apply(cfg *config.Config) error {
	if o.ScriptPath != "" {
		cfg.Script.Path = o.ScriptPath
	}
	if o.MetricsAddr != "" {
		cfg.Metrics.Addr = o.MetricsAddr
	}
	if o.JournalPath != "" {
		cfg.Journal.Path = o.JournalPath
	}
	if o.RelayURL != "" {
		cfg.Relay.URL = o.RelayURL
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return nil
}

// service holds everything run starts, in the order it is torn down.
type service struct {
	cfg    *config.Config
	logger *zap.Logger

	main      *queue.Context
	loop      *engine.Loop
	registry  *frameserver.Registry
	collector *metrics.Collector

	journal  *journal.Journal
	state    *script.State
	bridge   *relay.Bridge
	outbound *queue.Context
	server   *http.Server

	wg sync.WaitGroup
}

func runService(ctx context.Context, opts *RunOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if err := opts.apply(cfg); err != nil {
		return err
	}
	logger, err := opts.logger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", zap.Stringer("signal", sig))
			cancel()
		case <-ctx.Done():
		}
	}()

	s := &service{cfg: cfg, logger: logger}
	defer s.close()
	if err := s.build(ctx); err != nil {
		return err
	}
	if err := s.launch(ctx); err != nil {
		return err
	}
	s.start(ctx, opts)

	err = s.loop.Run(ctx)
	cancel()
	s.wg.Wait()

	st := s.loop.Stats()
	logger.Info("stopped",
		zap.Uint64("steps", st.Steps),
		zap.Uint64("dispatched", st.Dispatched),
		zap.Uint64("dispatch_errors", st.DispatchErrors))
	if err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "engine error", err)
	}
	return nil
}

// build creates the main context, its consumers and the loop.
func (s *service) build(ctx context.Context) error {
	cfg := s.cfg
	settings, err := cfg.Settings()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid masks", err)
	}

	s.main = queue.New(cfg.Queue.Capacity,
		queue.WithName("main"),
		queue.WithTick(cfg.Queue.Tick),
		queue.WithLogger(s.logger))
	s.collector = metrics.NewCollector()
	s.collector.Add(s.main)

	var loopOpts []engine.Option
	loopOpts = append(loopOpts, engine.WithLogger(s.logger))
	if cfg.Journal.Path != "" {
		if s.journal, err = journal.Open(cfg.Journal.Path); err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		loopOpts = append(loopOpts, engine.WithJournal(s.journal))
	}

	s.registry = frameserver.NewRegistry(
		frameserver.WithLogger(s.logger),
		frameserver.WithQueueOptions(queue.WithTimeout(cfg.Queue.PeerTimeout), queue.WithTick(cfg.Queue.Tick)),
		frameserver.WithExitCallback(s.frameserverExited))

	dispatchers := []engine.Dispatcher{quitOnInterrupt(s.main)}
	if cfg.Script.Path != "" {
		s.state = script.NewState(script.WithCallTimeout(cfg.Script.Timeout))
		if err := s.state.DoFile(cfg.Script.Path); err != nil {
			return WrapExitError(ExitCommandError, "failed to load script", err)
		}
		dispatchers = append(dispatchers, script.NewDispatcher(s.state, s.main, script.TargetFunc(s.target), s.logger))
	}
	if cfg.Relay.Enabled() {
		d, err := s.connectRelay(ctx)
		if err != nil {
			return err
		}
		if d != nil {
			dispatchers = append(dispatchers, d)
		}
	}

	s.loop = engine.New(s.main, engine.Fanout(dispatchers...), loopOpts...)
	s.loop.Reconfigure(settings)
	s.collector.SetLoop(s.loop.Stats)
	return nil
}

// connectRelay subscribes the main context to the relay and returns a
// dispatcher queueing published categories for forwarding, or nil when
// nothing is published.
func (s *service) connectRelay(ctx context.Context) (engine.Dispatcher, error) {
	rc := s.cfg.Relay
	pub, err := event.ParseCategoryMask(rc.Publish)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid relay.publish", err)
	}
	sub, err := event.ParseCategoryMask(rc.Subscribe)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid relay.subscribe", err)
	}
	if pub&sub != event.CategoryNone {
		s.logger.Warn("relay publishes and subscribes the same categories; events may bounce between peers",
			zap.Stringer("overlap", pub&sub))
	}

	s.bridge, err = relay.Connect(relay.Config{URL: rc.URL, Name: rc.Name, Prefix: rc.Prefix},
		relay.WithLogger(s.logger), relay.WithStatus(s.main))
	if err != nil {
		return nil, WrapExitError(ExitFailure, "relay connect failed", err)
	}
	if sub != event.CategoryNone {
		if err := s.bridge.Subscribe(s.main, sub); err != nil {
			return nil, WrapExitError(ExitFailure, "relay subscribe failed", err)
		}
	}
	if pub == event.CategoryNone {
		return nil, nil
	}

	s.outbound = queue.New(s.cfg.Queue.Capacity,
		queue.WithName("relay"),
		queue.WithTick(s.cfg.Queue.Tick),
		queue.WithLogger(s.logger))
	s.outbound.SetMask(pub)
	s.collector.Add(s.outbound)
	s.goRun("relay forward", func() error { return s.bridge.Forward(ctx, s.outbound, pub) })

	return engine.DispatchFunc(func(_ context.Context, ev event.Event) error {
		err := s.outbound.Enqueue(ev)
		if errors.Is(err, queue.ErrMasked) {
			return nil
		}
		return err
	}), nil
}

// launch starts the configured frameservers and routes their output into
// the main context.
func (s *service) launch(ctx context.Context) error {
	for _, fc := range s.cfg.Frameservers {
		cmd, err := frameserverCommand(fc)
		if err != nil {
			return WrapExitError(ExitCommandError, "frameserver "+fc.Name, err)
		}
		fs, err := s.registry.Launch(ctx, fc.Name, cmd, frameserver.Slots(fc.Slots))
		if err != nil {
			return WrapExitError(ExitFailure, "failed to launch frameserver "+fc.Name, err)
		}
		allowed, err := config.Mask(fc.Categories)
		if err != nil {
			return WrapExitError(ExitCommandError, "frameserver "+fc.Name, err)
		}
		saturation := fc.Saturation
		if saturation == 0 {
			saturation = 1
		}
		s.loop.AddRoute(engine.Route{
			ID:         fs.ID,
			From:       fs.Out,
			Allowed:    allowed,
			Saturation: saturation,
			Source:     fs.Object,
		})
		s.collector.Add(fs.In)
		s.collector.Add(fs.Out)
	}
	return nil
}

func frameserverCommand(fc config.FrameserverConfig) (*exec.Cmd, error) {
	argv := append([]string(nil), fc.Command...)
	if argv[0] == SelfCommand {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", SelfCommand, err)
		}
		argv[0] = self
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), fc.Env...)
	return cmd, nil
}

func (s *service) frameserverExited(fs *frameserver.Frameserver) {
	if s.loop != nil {
		s.loop.RemoveRoute(fs.ID)
	}
	s.collector.Remove(fs.In.Name())
	s.collector.Remove(fs.Out.Name())
	s.main.Enqueue(event.New(event.FrameserverTerminated, event.Frameserver{Video: fs.Object}))
}

// target resolves a frameserver object to its command context.
func (s *service) target(id event.ObjectID) (*queue.Context, bool) {
	for _, fs := range s.registry.List() {
		if fs.Object == id && fs.IsRunning() {
			return fs.In, true
		}
	}
	return nil, false
}

// start runs the producers and side services.
func (s *service) start(ctx context.Context, opts *RunOptions) {
	if addr := s.cfg.Metrics.Addr; addr != "" {
		router := metrics.NewRouter(s.collector, metrics.NewRegistry(s.collector))
		s.server = &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
		s.goRun("metrics", func() error {
			s.logger.Info("serving metrics", zap.String("addr", addr))
			errc := make(chan error, 1)
			go func() { errc <- s.server.ListenAndServe() }()
			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
				sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return s.server.Shutdown(sctx)
			}
		})
	}

	if opts.ConfigPath != "" {
		s.goRun("config watcher", func() error {
			return watcher.Watch(ctx, opts.ConfigPath, s.reconfigure, watcher.WithLogger(s.logger))
		})
	}

	if !opts.Headless {
		screen, err := tcell.NewScreen()
		if err == nil {
			err = screen.Init()
		}
		if err != nil {
			s.logger.Warn("terminal input unavailable", zap.Error(err))
			return
		}
		screen.EnableMouse()
		p := termio.NewProducer(screen, s.main,
			termio.WithLogger(s.logger),
			termio.WithResize(func(w, h int) {
				s.logger.Debug("terminal resized", zap.Int("width", w), zap.Int("height", h))
			}))
		s.goRun("terminal", func() error {
			defer screen.Fini()
			return p.Run(ctx)
		})
	}
}

func (s *service) reconfigure(cfg *config.Config) {
	settings, err := cfg.Settings()
	if err != nil {
		s.logger.Warn("ignoring reloaded configuration", zap.Error(err))
		return
	}
	s.loop.Reconfigure(settings)
}

// goRun runs fn until it returns; errors other than cancellation are
// logged.
func (s *service) goRun(name string, fn func() error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := fn(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, relay.ErrClosed) {
			s.logger.Error(name+" stopped", zap.Error(err))
		}
	}()
}

func (s *service) close() {
	if s.registry != nil {
		s.registry.Shutdown(shutdownTimeout)
	}
	if s.bridge != nil {
		st := s.bridge.Stats()
		s.logger.Info("relay closed",
			zap.Uint64("published", st.Published),
			zap.Uint64("received", st.Received),
			zap.Uint64("malformed", st.Malformed))
		s.bridge.Close() //nolint:errcheck
	}
	if s.state != nil {
		s.state.Close()
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.logger.Warn("journal close failed", zap.Error(err))
		}
	}
}

// quitOnInterrupt turns Ctrl-C typed in the terminal into a SYSTEM exit
// event; the terminal swallows the signal while it is in raw mode.
func quitOnInterrupt(main *queue.Context) engine.Dispatcher {
	return engine.DispatchFunc(func(_ context.Context, ev event.Event) error {
		in, ok := ev.Data.(event.IO)
		if !ok || ev.Kind != event.IOKeybPress {
			return nil
		}
		if k, ok := in.Input.(event.Translated); ok && k.Keysym == uint16(tcell.KeyCtrlC) {
			return main.Enqueue(event.New(event.SystemExit, event.System{Data: event.Tags{}}))
		}
		return nil
	})
}
