package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/citylink/internal/logging"
	"github.com/aretw0/citylink/pkg/domain"
	"github.com/aretw0/citylink/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Client is the session surface the HTTP API drives. *session.Client implements it.
type Client interface {
	Host(ctx context.Context, code string) (string, error)
	Join(ctx context.Context, code string) error
	Disconnect(ctx context.Context) error
	Resync(ctx context.Context)
	SendOffer(ctx context.Context, d domain.Draft) (*domain.Offer, error)
	AcceptOffer(ctx context.Context, offerID string) error
	RejectOffer(ctx context.Context, offerID string) error
	Snapshot() session.State
	StatusLabel() string
	IncomingOffers() []domain.Offer
	OutgoingOffers() []domain.Offer
}

var _ Client = (*session.Client)(nil)

// RequestObserver is told about every completed request. path is the route
// pattern, not the raw URL.
type RequestObserver func(method, path string, status int, duration time.Duration)

// Server exposes one local participant over JSON.
type Server struct {
	Client  Client
	Streams *StreamManager

	logger   *slog.Logger
	observe  RequestObserver
	onChange func()
	metrics  http.Handler
	version  string
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRequestObserver records request metrics.
func WithRequestObserver(fn RequestObserver) Option {
	return func(s *Server) {
		s.observe = fn
	}
}

// WithOnChange runs fn after every successful mutating request, e.g. to save a profile.
func WithOnChange(fn func()) Option {
	return func(s *Server) {
		s.onChange = fn
	}
}

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithVersion reports version from GET /info.
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// StatusResponse is the body of GET /status and of every stream event.
type StatusResponse struct {
	State    session.State  `json:"state"`
	Label    string         `json:"label"`
	Incoming []domain.Offer `json:"incoming"`
	Outgoing []domain.Offer `json:"outgoing"`
}

// CodeRequest is the body of POST /session/host and POST /session/join.
type CodeRequest struct {
	Code string `json:"code"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer creates a server for client.
func NewServer(client Client, opts ...Option) *Server {
	s := &Server{
		Client:  client,
		Streams: NewStreamManager(),
		logger:  logging.NewNop(),
		version: "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewHandler creates the HTTP handler for client.
func NewHandler(client Client, opts ...Option) http.Handler {
	return NewServer(client, opts...).Handler()
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/status", s.GetStatus)
	r.Get("/events", s.SubscribeEvents)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/session", func(r chi.Router) {
		r.Post("/host", s.HostSession)
		r.Post("/join", s.JoinSession)
		r.Post("/leave", s.LeaveSession)
		r.Post("/resync", s.ResyncSession)
	})

	r.Route("/offers", func(r chi.Router) {
		r.Get("/", s.ListOffers)
		r.Post("/", s.SendOffer)
		r.Post("/{offerID}/accept", s.AcceptOffer)
		r.Post("/{offerID}/reject", s.RejectOffer)
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.logger.Debug("HTTP request", "method", r.Method, "path", path, "status", status, "duration", elapsed)
		if s.observe != nil {
			s.observe(r.Method, path, status, elapsed)
		}
	})
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":       "citylink-http",
		"version":   s.version,
		"client_id": s.Client.Snapshot().ClientID,
	})
}

// GetStatus handles GET /status. It resyncs first so the answer reflects the store.
func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	s.Client.Resync(r.Context())
	writeJSON(w, http.StatusOK, s.status())
}

// ResyncSession handles POST /session/resync.
func (s *Server) ResyncSession(w http.ResponseWriter, r *http.Request) {
	s.Client.Resync(r.Context())
	s.changed()
	writeJSON(w, http.StatusOK, s.status())
}

// HostSession handles POST /session/host. An empty code picks a random one.
func (s *Server) HostSession(w http.ResponseWriter, r *http.Request) {
	var body CodeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.badRequest(w, "HostSession", err)
			return
		}
	}
	if _, err := s.Client.Host(r.Context(), body.Code); err != nil {
		s.fail(w, "HostSession", err)
		return
	}
	s.changed()
	writeJSON(w, http.StatusOK, s.status())
}

// JoinSession handles POST /session/join.
func (s *Server) JoinSession(w http.ResponseWriter, r *http.Request) {
	var body CodeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.badRequest(w, "JoinSession", err)
		return
	}
	if err := s.Client.Join(r.Context(), body.Code); err != nil {
		s.fail(w, "JoinSession", err)
		return
	}
	s.changed()
	writeJSON(w, http.StatusOK, s.status())
}

// LeaveSession handles POST /session/leave.
func (s *Server) LeaveSession(w http.ResponseWriter, r *http.Request) {
	if err := s.Client.Disconnect(r.Context()); err != nil {
		s.fail(w, "LeaveSession", err)
		return
	}
	s.changed()
	writeJSON(w, http.StatusOK, s.status())
}

// ListOffers handles GET /offers.
func (s *Server) ListOffers(w http.ResponseWriter, r *http.Request) {
	s.Client.Resync(r.Context())
	st := s.status()
	writeJSON(w, http.StatusOK, map[string][]domain.Offer{
		"incoming": st.Incoming,
		"outgoing": st.Outgoing,
	})
}

// SendOffer handles POST /offers with a draft body.
func (s *Server) SendOffer(w http.ResponseWriter, r *http.Request) {
	var d domain.Draft
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		s.badRequest(w, "SendOffer", err)
		return
	}
	offer, err := s.Client.SendOffer(r.Context(), d)
	if err != nil {
		s.fail(w, "SendOffer", err)
		return
	}
	s.changed()
	writeJSON(w, http.StatusCreated, offer)
}

// AcceptOffer handles POST /offers/{offerID}/accept.
func (s *Server) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	s.settle(w, r, "AcceptOffer", s.Client.AcceptOffer)
}

// RejectOffer handles POST /offers/{offerID}/reject.
func (s *Server) RejectOffer(w http.ResponseWriter, r *http.Request) {
	s.settle(w, r, "RejectOffer", s.Client.RejectOffer)
}

func (s *Server) settle(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, string) error) {
	id := chi.URLParam(r, "offerID")
	if err := fn(r.Context(), id); err != nil {
		s.fail(w, op, err)
		return
	}
	s.changed()
	writeJSON(w, http.StatusOK, s.status())
}

// Publish pushes the current status to every stream subscriber.
func (s *Server) Publish() {
	data, err := json.Marshal(s.status())
	if err != nil {
		s.logger.Error("Failed to encode status event", "err", err)
		return
	}
	s.Streams.Broadcast(string(data))
}

func (s *Server) changed() {
	if s.onChange != nil {
		s.onChange()
	}
	s.Publish()
}

func (s *Server) status() StatusResponse {
	return StatusResponse{
		State:    s.Client.Snapshot(),
		Label:    s.Client.StatusLabel(),
		Incoming: s.Client.IncomingOffers(),
		Outgoing: s.Client.OutgoingOffers(),
	}
}

func (s *Server) badRequest(w http.ResponseWriter, op string, err error) {
	s.logger.Warn(op+": Invalid request body", "err", err)
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", "err", err)
	} else {
		s.logger.Debug(op+" refused", "err", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

// StatusOf maps a domain error onto an HTTP status code.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrOfferNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidCode):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionFull),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrNotConnected),
		errors.Is(err, domain.ErrOfferNotPending):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidOffer),
		errors.Is(err, domain.ErrInsufficient):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Response encode failed", "err", err)
	}
}
