// Package web is the HTTP and WebSocket surface of the assistant: command
// execution, audio upload, pipeline tracing, status and capability views,
// the input push bridge, component-provided streaming endpoints, and the
// AsyncAPI document describing them.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/attalus-io/vestibule/internal/component"
	"github.com/attalus-io/vestibule/internal/config"
	"github.com/attalus-io/vestibule/internal/health"
	"github.com/attalus-io/vestibule/internal/input"
	"github.com/attalus-io/vestibule/internal/observe"
	"github.com/attalus-io/vestibule/internal/session"
	"github.com/attalus-io/vestibule/internal/workflow"
	"github.com/attalus-io/vestibule/pkg/audio"
	"github.com/attalus-io/vestibule/pkg/types"
)

// Pipeline is the slice of the workflow engine the HTTP surface drives.
type Pipeline interface {
	ProcessTextInput(ctx context.Context, text string, req workflow.Request) types.IntentResult
	ProcessAudioInput(ctx context.Context, frame audio.AudioData, req workflow.Request) types.IntentResult
}

// InputSink receives pushed items for the assistant's input loop. The web
// input source implements it.
type InputSink interface {
	Push(ctx context.Context, item input.Data) error
}

// Server is the web API. Construct with NewServer, then Start. The
// pipeline arrives late (the engine is built after the components the
// server belongs to), so requests before SetPipeline answer 503.
type Server struct {
	cfg        *config.Config
	components *component.Manager
	sessions   *session.Manager
	collector  *observe.Collector
	metrics    *observe.Metrics
	checker    *health.Handler
	version    string
	started    time.Time

	mu        sync.RWMutex
	pipeline  Pipeline
	inputSink InputSink
	providers []RouterProvider

	srv  *http.Server
	addr net.Addr
}

// Option adjusts the server.
type Option func(*Server)

// WithVersion sets the version string the status endpoints report.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithMetrics wires the OTel instruments; requests then pass through the
// observability middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithCollector wires the process stats collector behind /system/status.
func WithCollector(c *observe.Collector) Option {
	return func(s *Server) { s.collector = c }
}

// WithHealth mounts the given checker's probes.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.checker = h }
}

// WithRouter mounts a component-provided router under its prefix. Its
// WebSocket annotations feed the AsyncAPI document.
func WithRouter(p RouterProvider) Option {
	return func(s *Server) { s.providers = append(s.providers, p) }
}

// WithInputSink wires the push bridge into the input loop.
func WithInputSink(sink InputSink) Option {
	return func(s *Server) { s.inputSink = sink }
}

func NewServer(cfg *config.Config, components *component.Manager, sessions *session.Manager, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("web: nil config")
	}
	s := &Server{
		cfg:        cfg,
		components: components,
		sessions:   sessions,
		checker:    health.New(),
		started:    time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SetPipeline wires the workflow engine once it exists. Safe to call
// while serving.
func (s *Server) SetPipeline(p Pipeline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pipeline = p
}

func (s *Server) getPipeline() Pipeline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pipeline
}

func (s *Server) getInputSink() InputSink {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inputSink
}

// Handler builds the full route tree. Exposed for tests; Start uses it.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /execute/command", s.handleExecuteCommand)
	mux.HandleFunc("POST /execute/audio", s.handleExecuteAudio)
	mux.HandleFunc("POST /trace/command", s.handleTraceCommand)
	mux.HandleFunc("POST /trace/audio", s.handleTraceAudio)
	mux.HandleFunc("GET /components", s.handleComponents)
	mux.HandleFunc("GET /system/status", s.handleSystemStatus)
	mux.HandleFunc("GET /system/capabilities", s.handleCapabilities)
	mux.HandleFunc("GET /asyncapi.json", s.handleAsyncAPIJSON)
	mux.HandleFunc("GET /asyncapi.yaml", s.handleAsyncAPIYAML)
	mux.HandleFunc("GET /asyncapi.html", s.handleAsyncAPIHTML)
	mux.HandleFunc("POST /input/text", s.handleInputText)
	mux.HandleFunc("POST /input/audio", s.handleInputAudio)

	mux.HandleFunc("GET /health", s.checker.Health)
	s.checker.Register(mux)

	// A dedicated metrics listener, when configured, owns /metrics.
	if s.cfg.System.MetricsPort == 0 {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	for _, p := range s.providers {
		prefix := p.Prefix()
		for _, route := range p.Routes() {
			mux.HandleFunc(route.Method+" "+prefix+route.Path, route.Handler)
		}
	}

	if s.metrics != nil {
		return observe.Middleware(s.metrics)(mux)
	}
	return mux
}

// Start binds the configured address and serves in the background. A
// busy port fails here, not in a goroutine's log.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.System.WebHost, s.cfg.System.WebPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("web: listen %s: %w", addr, err)
	}
	s.addr = ln.Addr()
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("web server stopped", "error", err)
		}
	}()
	slog.Info("web api listening", "addr", s.addr.String())
	return nil
}

// Addr reports the bound listener address; empty before Start.
func (s *Server) Addr() string {
	if s.addr == nil {
		return ""
	}
	return s.addr.String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// writeJSON encodes v with the given status. On encoding failure it falls
// back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
