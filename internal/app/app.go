// Package app wires the assistant subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the input dispatch loop, and Shutdown tears
// everything down in reverse order.
//
// For testing, inject substitutes via functional options (WithAnalytics,
// WithCaptureDevice, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/attalus-io/vestibule/internal/component"
	"github.com/attalus-io/vestibule/internal/components"
	"github.com/attalus-io/vestibule/internal/config"
	"github.com/attalus-io/vestibule/internal/health"
	"github.com/attalus-io/vestibule/internal/input"
	"github.com/attalus-io/vestibule/internal/observe"
	"github.com/attalus-io/vestibule/internal/session"
	"github.com/attalus-io/vestibule/internal/timers"
	"github.com/attalus-io/vestibule/internal/web"
	"github.com/attalus-io/vestibule/internal/workflow"
	"github.com/attalus-io/vestibule/pkg/audio"
	"github.com/attalus-io/vestibule/pkg/provider/tts"
)

// micQueueDepth bounds the channel feeding microphone frames into the
// streaming pipeline. Capture frames are small and frequent; a short
// buffer absorbs dispatch jitter without unbounded growth.
const micQueueDepth = 32

// App owns all subsystem lifetimes and orchestrates the voice pipeline.
type App struct {
	cfg     *config.Config
	version string
	cfgPath string

	registry   *config.Registry
	metrics    *observe.Metrics
	collector  *observe.Collector
	analytics  session.AnalyticsStore
	sessions   *session.Manager
	timers     *timers.Manager
	components *component.Manager
	engine     *workflow.Engine
	inputs     *input.Manager
	web        *web.Server
	watcher    *config.Watcher

	capture   input.CaptureDevice
	sink      components.PlaybackSink
	webSource *input.Web
	logLevel  *slog.LevelVar

	metricsSrv *http.Server

	// micFrames feeds the continuous streaming pipeline; created in Run
	// when the microphone source is registered.
	micFrames chan audio.AudioData

	// sourceSessions maps an input source to its stable session id so
	// consecutive terminal lines share one conversation.
	sessMu         sync.Mutex
	sourceSessions map[string]string

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithVersion sets the version string reported in telemetry and /status.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// WithConfigPath tells the app where its configuration file lives, enabling
// the hot-reload watcher when the config asks for it.
func WithConfigPath(path string) Option {
	return func(a *App) { a.cfgPath = path }
}

// WithProviderRegistry injects external provider factories. Registered
// entries take precedence over the built-in provider constructors.
func WithProviderRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithAnalytics injects a session analytics store instead of creating one
// from config.
func WithAnalytics(s session.AnalyticsStore) Option {
	return func(a *App) { a.analytics = s }
}

// WithCaptureDevice injects the microphone capture backend.
func WithCaptureDevice(d input.CaptureDevice) Option {
	return func(a *App) { a.capture = d }
}

// WithPlaybackSink injects the audio output device.
func WithPlaybackSink(s components.PlaybackSink) Option {
	return func(a *App) { a.sink = s }
}

// WithMetrics injects pre-built instruments, skipping OTel SDK setup.
// Tests use this to avoid touching the global meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevelVar hands the app the level var behind the process logger so
// config hot-reloads can adjust verbosity without a restart.
func WithLogLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// New creates an App by wiring all subsystems together. Initialization is
// synchronous: telemetry, session analytics, the component set, the
// workflow engine, input sources, and the web surface all come up before
// New returns. Component failures degrade rather than abort; only
// infrastructure failures (analytics backend, web listener config) are
// fatal here.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	a := &App{
		cfg:            cfg,
		sourceSessions: make(map[string]string),
	}
	for _, o := range opts {
		o(a)
	}
	if a.registry == nil {
		a.registry = config.NewRegistry()
	}

	// ── 1. Telemetry ─────────────────────────────────────────────────────
	if err := a.initTelemetry(ctx); err != nil {
		return nil, fmt.Errorf("app: init telemetry: %w", err)
	}

	// ── 2. Session analytics ─────────────────────────────────────────────
	if err := a.initAnalytics(ctx); err != nil {
		return nil, fmt.Errorf("app: init analytics: %w", err)
	}

	// ── 3. Sessions + timers ─────────────────────────────────────────────
	a.sessions = session.NewManager(session.ManagerConfig{
		MaxHistoryTurns: cfg.IntentSystem.MaxHistoryTurns,
		SessionTimeout:  cfg.IntentSystem.SessionTimeout(),
		CleanupInterval: cfg.IntentSystem.CleanupInterval(),
		DefaultLanguage: cfg.System.Language,
		Analytics:       a.analytics,
	})
	a.timers = timers.NewManager(ctx)

	// ── 4. Components ────────────────────────────────────────────────────
	if err := a.initComponents(ctx); err != nil {
		return nil, fmt.Errorf("app: init components: %w", err)
	}

	// ── 5. Workflow engine ───────────────────────────────────────────────
	engine, err := workflow.NewEngine(cfg, a.sessions, a.pipelineComponents(),
		workflow.WithMetrics(a.metrics), workflow.WithCollector(a.collector))
	if err != nil {
		return nil, fmt.Errorf("app: init workflow: %w", err)
	}
	a.engine = engine
	a.wireAnnouncer()

	// ── 6. Input sources ─────────────────────────────────────────────────
	if err := a.initInputs(); err != nil {
		return nil, fmt.Errorf("app: init inputs: %w", err)
	}

	// ── 7. Web surface ───────────────────────────────────────────────────
	if err := a.initWeb(); err != nil {
		return nil, fmt.Errorf("app: init web: %w", err)
	}

	// ── 8. Config watcher ────────────────────────────────────────────────
	if err := a.initWatcher(); err != nil {
		return nil, fmt.Errorf("app: init config watcher: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initTelemetry sets up the OTel SDK with the Prometheus exporter bridge,
// unless instruments were injected.
func (a *App) initTelemetry(ctx context.Context) error {
	if a.metrics == nil {
		shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName:    a.cfg.System.Name,
			ServiceVersion: a.version,
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return shutdown(flushCtx)
		})
		a.metrics = observe.DefaultMetrics()
	}
	a.collector = observe.NewCollector(a.metrics)
	return nil
}

// initAnalytics sets up the configured session analytics backend or uses
// the injected store.
func (a *App) initAnalytics(ctx context.Context) error {
	if a.analytics != nil {
		return nil
	}
	cfg := a.cfg.IntentSystem.Analytics
	switch cfg.Backend {
	case "", "memory":
		a.analytics = session.NewMemoryAnalytics()
	case "postgres":
		pg, err := session.NewPostgresAnalytics(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("postgres analytics: %w", err)
		}
		a.analytics = pg
		a.closers = append(a.closers, func() error {
			pg.Close()
			return nil
		})
		slog.Info("session analytics backend connected", "backend", "postgres")
	default:
		return fmt.Errorf("unknown analytics backend %q", cfg.Backend)
	}
	return nil
}

// initComponents registers every built-in component factory and brings the
// enabled set up in dependency order.
func (a *App) initComponents(ctx context.Context) error {
	deps := &component.Deps{
		Config:    a.cfg,
		Sessions:  a.sessions,
		Timers:    a.timers,
		Metrics:   a.metrics,
		Collector: a.collector,
		Providers: a.registry,
	}
	m := component.NewManager(deps)

	m.RegisterFactory(config.ComponentAudio, func() (component.Component, error) {
		c := components.NewAudio()
		if a.sink != nil {
			c.SetSink(a.sink)
		}
		return c, nil
	})
	m.RegisterFactory(config.ComponentASR, func() (component.Component, error) {
		return components.NewASR(), nil
	})
	m.RegisterFactory(config.ComponentVoiceTrigger, func() (component.Component, error) {
		return components.NewVoiceTrigger(), nil
	})
	m.RegisterFactory(config.ComponentTextProcessor, func() (component.Component, error) {
		return components.NewTextProcessor(), nil
	})
	m.RegisterFactory(config.ComponentNLU, func() (component.Component, error) {
		return components.NewNLU(), nil
	})
	m.RegisterFactory(config.ComponentIntentSystem, func() (component.Component, error) {
		return components.NewIntentSystem(), nil
	})
	m.RegisterFactory(config.ComponentLLM, func() (component.Component, error) {
		return components.NewLLM(), nil
	})
	m.RegisterFactory(config.ComponentTTS, func() (component.Component, error) {
		return components.NewTTS(), nil
	})
	m.RegisterFactory(components.ConsoleTTSName, func() (component.Component, error) {
		return components.NewConsoleTTS(), nil
	})
	m.RegisterFallback(config.ComponentTTS, components.ConsoleTTSName)

	a.components = m
	return m.Initialize(ctx)
}

// pipelineComponents assembles the workflow component set from whatever the
// manager brought up. A missing or failed component leaves its slot nil;
// the engine degrades the affected stages per request.
func (a *App) pipelineComponents() workflow.Components {
	var comps workflow.Components
	if c, ok := a.components.Get(config.ComponentVoiceTrigger); ok {
		if p, ok := c.(workflow.WakeDetector); ok {
			comps.VoiceTrigger = p
		}
	}
	if c, ok := a.components.Get(config.ComponentAudio); ok {
		if p, ok := c.(workflow.Player); ok {
			comps.Audio = p
		}
	}
	if c, ok := a.components.Get(config.ComponentASR); ok {
		if p, ok := c.(workflow.Transcriber); ok {
			comps.ASR = p
		}
	}
	if c, ok := a.components.Get(config.ComponentTextProcessor); ok {
		if p, ok := c.(workflow.Normalizer); ok {
			comps.TextProcessor = p
		}
	}
	if c, ok := a.components.Get(config.ComponentNLU); ok {
		if p, ok := c.(workflow.Recognizer); ok {
			comps.NLU = p
		}
	}
	if c, ok := a.components.Get(config.ComponentIntentSystem); ok {
		if p, ok := c.(workflow.Executor); ok {
			comps.IntentSystem = p
		}
	}
	if c, ok := a.components.Get(config.ComponentLLM); ok {
		if p, ok := c.(workflow.Enricher); ok {
			comps.LLM = p
		}
	}
	if c, ok := a.components.Get(config.ComponentTTS); ok {
		if p, ok := c.(components.Synthesizer); ok {
			comps.TTS = p
		}
	}
	return comps
}

// wireAnnouncer routes timer expiry announcements through synthesis and
// playback. Without an intent system there is nothing to wire.
func (a *App) wireAnnouncer() {
	c, ok := a.components.Get(config.ComponentIntentSystem)
	if !ok {
		return
	}
	is, ok := c.(*components.IntentSystem)
	if !ok || is.Timer() == nil {
		return
	}
	is.Timer().SetAnnouncer(&announcer{app: a})
}

// initInputs registers the enabled input sources with the multiplexer.
func (a *App) initInputs() error {
	a.inputs = input.NewManager()

	if a.cfg.Inputs.CLI.IsEnabled() {
		if err := a.inputs.Register(input.NewCLI()); err != nil {
			return err
		}
	}
	if a.cfg.Inputs.Microphone.Enabled {
		if err := a.inputs.Register(input.NewMicrophone(a.cfg.Inputs.Microphone, a.capture)); err != nil {
			return err
		}
	}
	if a.cfg.Inputs.Web.Enabled {
		a.webSource = input.NewWeb()
		if err := a.inputs.Register(a.webSource); err != nil {
			return err
		}
	}
	return nil
}

// initWeb builds the HTTP surface and, when configured, the dedicated
// metrics listener. Neither is bound yet; Run does that.
func (a *App) initWeb() error {
	if !a.cfg.System.IsWebAPIEnabled() {
		return nil
	}

	checker := health.New(
		health.Checker{Name: "components", Check: a.checkComponents},
		health.Checker{Name: "sessions", Check: func(context.Context) error { return nil }},
	)

	opts := []web.Option{
		web.WithVersion(a.version),
		web.WithMetrics(a.metrics),
		web.WithCollector(a.collector),
		web.WithHealth(checker),
	}
	if a.webSource != nil {
		opts = append(opts, web.WithInputSink(a.webSource))
	}
	if c, ok := a.components.Get(config.ComponentASR); ok {
		if t, ok := c.(web.Transcriber); ok {
			opts = append(opts, web.WithRouter(web.NewASRStream(t)))
		}
	}

	srv, err := web.NewServer(a.cfg, a.components, a.sessions, opts...)
	if err != nil {
		return err
	}
	srv.SetPipeline(a.engine)
	a.web = srv

	if port := a.cfg.System.MetricsPort; port != 0 {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.Handler())
		a.metricsSrv = &http.Server{
			Addr:              fmt.Sprintf("%s:%d", a.cfg.System.WebHost, port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	return nil
}

// checkComponents fails the readiness probe while any component sits in the
// failed state with no fallback serving.
func (a *App) checkComponents(context.Context) error {
	var failed []string
	for _, st := range a.components.States() {
		if st.State == component.StateFailed {
			failed = append(failed, st.Name)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("components failed: %v", failed)
	}
	return nil
}

// initWatcher starts the config hot-reload poller when enabled.
func (a *App) initWatcher() error {
	if !a.cfg.System.ConfigWatchEnabled || a.cfgPath == "" {
		return nil
	}
	w, err := config.NewWatcher(a.cfgPath, a.applyConfigChange,
		config.WithInterval(a.cfg.System.ConfigWatchInterval()))
	if err != nil {
		return err
	}
	a.watcher = w
	a.closers = append(a.closers, func() error {
		w.Stop()
		return nil
	})
	slog.Info("config watcher started", "path", a.cfgPath,
		"interval", a.cfg.System.ConfigWatchInterval())
	return nil
}

// applyConfigChange reacts to a changed config file. Only the log level is
// applied live today; everything else is reported so the operator knows a
// restart is needed for it to take effect.
func (a *App) applyConfigChange(old, new *config.Config) {
	ch := config.Diff(old, new)
	if ch.Empty() {
		return
	}
	if ch.LogLevelChanged {
		if a.logLevel != nil {
			a.logLevel.Set(ch.NewLogLevel.Level())
			slog.Info("log level applied from config reload", "level", ch.NewLogLevel)
		} else {
			slog.Warn("log level changed but the logger is not adjustable", "level", ch.NewLogLevel)
		}
	}
	if ch.VADChanged || ch.VoiceTriggerChanged || ch.NLUChanged || ch.LLMChanged || ch.TTSChanged {
		slog.Info("tuning sections changed in config; values apply after restart",
			"vad", ch.VADChanged, "voice_trigger", ch.VoiceTriggerChanged,
			"nlu", ch.NLUChanged, "llm", ch.LLMChanged, "tts", ch.TTSChanged)
	}
	if len(ch.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "sections", ch.RestartRequired)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the servers and input sources and drives the dispatch loop
// until ctx is cancelled. It returns ctx.Err() on orderly cancellation.
func (a *App) Run(ctx context.Context) error {
	a.sessions.Start(ctx)

	if a.web != nil {
		if err := a.web.Start(); err != nil {
			return err
		}
	}
	if a.metricsSrv != nil {
		ln, err := net.Listen("tcp", a.metricsSrv.Addr)
		if err != nil {
			return fmt.Errorf("app: metrics listen %s: %w", a.metricsSrv.Addr, err)
		}
		go func() {
			if err := a.metricsSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
		slog.Info("metrics listening", "addr", ln.Addr().String())
	}

	if err := a.inputs.Start(ctx); err != nil {
		// Individual sources may fail (no capture device); the rest run.
		slog.Warn("not all input sources started", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if _, ok := a.inputs.Lookup(config.InputMicrophone); ok {
		a.micFrames = make(chan audio.AudioData, micQueueDepth)
		results := a.engine.ProcessAudioStream(gctx, a.micFrames, workflow.Request{
			SessionID:  a.sessionFor(config.InputMicrophone),
			WantsAudio: true,
		})
		g.Go(func() error {
			for res := range results {
				a.logResult(config.InputMicrophone, res.Text, res.Success)
			}
			return nil
		})
	}

	g.Go(func() error { return a.dispatchLoop(gctx) })

	a.greet(ctx)
	slog.Info("assistant running",
		"profile", a.components.Profile(),
		"components", a.components.List(),
		"inputs", len(a.inputs.Sources()))

	err := g.Wait()
	if a.micFrames != nil {
		close(a.micFrames)
	}
	if errors.Is(err, input.ErrClosed) {
		err = nil
	}
	if err != nil {
		return err
	}
	return ctx.Err()
}

// dispatchLoop pulls multiplexed input items and routes each to the right
// pipeline entry point.
func (a *App) dispatchLoop(ctx context.Context) error {
	for {
		item, err := a.inputs.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			return err
		}
		a.dispatch(ctx, item)
	}
}

// dispatch routes one input item. Microphone frames feed the continuous
// streaming pipeline; everything else runs as a discrete utterance or
// command.
func (a *App) dispatch(ctx context.Context, item input.Data) {
	sessionID := item.SessionID
	if sessionID == "" {
		sessionID = a.sessionFor(item.Source)
	}

	switch {
	case item.Kind == input.KindAudio && item.Source == config.InputMicrophone:
		if a.micFrames == nil {
			return
		}
		select {
		case a.micFrames <- item.Audio:
		case <-ctx.Done():
		}
	case item.Kind == input.KindAudio:
		res := a.engine.ProcessAudioInput(ctx, item.Audio, workflow.Request{
			SessionID:  sessionID,
			WantsAudio: true,
		})
		a.logResult(item.Source, res.Text, res.Success)
	case item.Kind == input.KindText:
		res := a.engine.ProcessTextInput(ctx, item.Text, workflow.Request{
			SessionID:  sessionID,
			WantsAudio: a.cfg.System.IsPlaybackEnabled(),
		})
		a.logResult(item.Source, res.Text, res.Success)
	}
}

// sessionFor returns the stable session id for an input source, creating
// it on first use.
func (a *App) sessionFor(source string) string {
	a.sessMu.Lock()
	defer a.sessMu.Unlock()
	id, ok := a.sourceSessions[source]
	if !ok {
		id = session.GenerateSessionID(source, "", "")
		a.sourceSessions[source] = id
	}
	return id
}

func (a *App) logResult(source, text string, success bool) {
	if text == "" {
		return
	}
	slog.Info("assistant reply", "source", source, "success", success, "text", text)
}

// greet speaks the configured startup greeting once everything is up.
// Failures are logged, never fatal; a greeting is a nicety.
func (a *App) greet(ctx context.Context) {
	text := a.cfg.System.StartupGreeting
	if text == "" {
		return
	}
	synth := a.synthesizer()
	if synth == nil {
		slog.Info("startup greeting", "text", text)
		return
	}
	go func() {
		frame, err := synth.Synthesize(ctx, text, tts.Options{})
		if err != nil {
			slog.Warn("startup greeting synthesis failed", "error", err)
			return
		}
		if player := a.player(); player != nil {
			if err := player.Play(ctx, frame); err != nil {
				slog.Warn("startup greeting playback failed", "error", err)
			}
		}
	}()
}

func (a *App) synthesizer() components.Synthesizer {
	c, ok := a.components.Get(config.ComponentTTS)
	if !ok {
		return nil
	}
	s, _ := c.(components.Synthesizer)
	return s
}

func (a *App) player() workflow.Player {
	c, ok := a.components.Get(config.ComponentAudio)
	if !ok {
		return nil
	}
	p, _ := c.(workflow.Player)
	return p
}

// Engine exposes the workflow engine, mainly for tests and embedding.
func (a *App) Engine() *workflow.Engine { return a.engine }

// Components exposes the component manager for status inspection.
func (a *App) Components() *component.Manager { return a.components }

// Inputs exposes the input multiplexer.
func (a *App) Inputs() *input.Manager { return a.inputs }

// WebAddr reports the bound web listener address; empty when the web
// surface is disabled or not yet started.
func (a *App) WebAddr() string {
	if a.web == nil {
		return ""
	}
	return a.web.Addr()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before the teardown finishes, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down")

		if a.web != nil {
			if err := a.web.Shutdown(ctx); err != nil {
				slog.Warn("web shutdown error", "error", err)
			}
		}
		if a.metricsSrv != nil {
			if err := a.metricsSrv.Shutdown(ctx); err != nil {
				slog.Warn("metrics server shutdown error", "error", err)
			}
		}
		if a.inputs != nil {
			if err := a.inputs.Close(ctx); err != nil {
				slog.Warn("input shutdown error", "error", err)
			}
		}
		if a.components != nil {
			a.components.Shutdown(ctx)
		}
		if a.timers != nil {
			a.timers.Stop()
		}
		if a.sessions != nil {
			a.sessions.Shutdown(ctx)
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "error", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// announcer speaks unsolicited text (timer expiries) into a session.
type announcer struct {
	app *App
}

func (s *announcer) Announce(ctx context.Context, sessionID, text string) {
	synth := s.app.synthesizer()
	if synth == nil || !s.app.cfg.System.IsPlaybackEnabled() {
		slog.Info("announcement", "session", sessionID, "text", text)
		return
	}
	frame, err := synth.Synthesize(ctx, text, tts.Options{})
	if err != nil {
		slog.Warn("announcement synthesis failed", "session", sessionID, "error", err)
		return
	}
	if player := s.app.player(); player != nil {
		if err := player.Play(ctx, frame); err != nil {
			slog.Warn("announcement playback failed", "session", sessionID, "error", err)
		}
	}
}
