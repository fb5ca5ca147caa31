// Package server exposes the relay over HTTP.
//
// Routes:
//
//	POST /chat    {prompt, context} -> {response, ok, code, request_id}
//	GET  /healthz liveness
//	GET  /stats   cache and admission gate snapshot
//
// Failed chats answer 200 with the error rendered into the response text
// unless StrictStatus is set.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/vinayprograms/pagechat/admission"
	"github.com/vinayprograms/pagechat/cache"
	"github.com/vinayprograms/pagechat/errors"
	"github.com/vinayprograms/pagechat/logging"
	"github.com/vinayprograms/pagechat/relay"
)

// DefaultMaxRequestBytes caps the /chat request body.
const DefaultMaxRequestBytes = 1 << 20

// Chatter runs chat requests. *relay.Service implements it.
type Chatter interface {
	Chat(ctx context.Context, req relay.ChatRequest) relay.Result
}

// Config configures the HTTP server.
type Config struct {
	Addr         string
	StrictStatus bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxRequestBytes caps the request body (default 1MB).
	MaxRequestBytes int64
}

// ChatResponse is the /chat response body.
type ChatResponse struct {
	Response  string `json:"response"`
	OK        bool   `json:"ok"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	// Error carries the structured error when strict status is on.
	Error *errors.Error `json:"error,omitempty"`
}

// StatsResponse is the /stats response body.
type StatsResponse struct {
	Cache *cache.Stats        `json:"cache,omitempty"`
	Gate  *admission.Capacity `json:"gate,omitempty"`
}

// Server serves the chat API.
type Server struct {
	config Config
	chat   Chatter
	store  cache.Store
	gate   *admission.Gate
	logger *logging.Logger
	tp     trace.TracerProvider

	handler http.Handler
	http    *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithStats exposes the cache and gate on /stats. Either may be nil.
func WithStats(store cache.Store, gate *admission.Gate) Option {
	return func(s *Server) {
		s.store = store
		s.gate = gate
	}
}

// WithTracerProvider sets the provider for HTTP server spans. The global
// provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) { s.tp = tp }
}

// New creates a Server.
func New(cfg Config, chat Chatter, opts ...Option) *Server {
	if cfg.MaxRequestBytes <= 0 {
		cfg.MaxRequestBytes = DefaultMaxRequestBytes
	}
	s := &Server{
		config: cfg,
		chat:   chat,
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)

	var otelOpts []otelhttp.Option
	if s.tp != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(s.tp))
	}
	s.handler = otelhttp.NewHandler(
		requestID(s.logRequests(s.recovery(cors(mux)))),
		"http.server",
		otelOpts...,
	)

	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe listens on the configured address. It returns nil after
// OnShutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("listening", map[string]interface{}{"addr": ln.Addr().String()})
	if err := s.http.Serve(ln); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// OnShutdown stops accepting connections and waits for in-flight requests.
func (s *Server) OnShutdown(ctx context.Context) error {
	if err := s.http.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "http shutdown")
	}
	return nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req relay.ChatRequest
	body := http.MaxBytesReader(w, r.Body, s.config.MaxRequestBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		e := errors.New(errors.ErrCodeInvalidInput, "Invalid request body.", errors.WithCause(err))
		resp := ChatResponse{
			Response:  relay.Render(e),
			Code:      string(e.Code()),
			RequestID: relay.RequestIDFrom(r.Context()),
		}
		if s.config.StrictStatus {
			resp.Error = e
		}
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	res := s.chat.Chat(r.Context(), req)

	status := http.StatusOK
	resp := ChatResponse{
		Response:  res.Text,
		OK:        res.OK(),
		Code:      string(res.Code()),
		RequestID: res.RequestID,
	}
	if s.config.StrictStatus {
		status = res.Code().HTTPStatus()
		if e, ok := errors.As(res.Err); ok {
			resp.Error = e
		}
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var resp StatsResponse
	if s.store != nil {
		st := s.store.Stats()
		resp.Cache = &st
	}
	if s.gate != nil {
		c := s.gate.Capacity()
		resp.Gate = &c
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
