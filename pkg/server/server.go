package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"Aetherlink/pkg/layers"
	"Aetherlink/pkg/notify"
)

// Link is the part of the physical layer the HTTP surface drives.
type Link interface {
	Send(ctx context.Context, text string) error
	Transmitting() bool
	DetectorState() layers.DetectorState
}

type Config struct {
	Addr          string
	AllowedOrigin string
}

// Server exposes transmit requests, decoded message push streams, status
// and metrics over HTTP.
type Server struct {
	link     Link
	hub      *notify.Hub
	gatherer prometheus.Gatherer
	config   Config
	logger   *slog.Logger

	router *mux.Router
	server *http.Server
}

type GenerateWaveRequest struct {
	Message string `json:"message"`
}

type SendRequest struct {
	Text string `json:"text"`
}

type StatusResponse struct {
	Detector     string `json:"detector"`
	Transmitting bool   `json:"transmitting"`
	Subscribers  int    `json:"subscribers"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func New(cfg Config, link Link, hub *notify.Hub, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default().With("component", "server")
	}
	router := mux.NewRouter()
	// Streaming handlers watch the request context, which is cancelled
	// when Shutdown starts.
	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		link:     link,
		hub:      hub,
		gatherer: gatherer,
		config:   cfg,
		logger:   logger,
		router:   router,
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return baseCtx },
		},
	}
	s.server.RegisterOnShutdown(cancel)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.corsMiddleware)

	s.router.HandleFunc("/generate-wave", s.handleGenerateWave).Methods("POST", "OPTIONS")
	s.router.HandleFunc("/send", s.handleSend).Methods("POST", "OPTIONS")
	s.router.Handle("/events", &notify.SSEHandler{Hub: s.hub}).Methods("GET")
	s.router.Handle("/ws", notify.NewWebSocketHandler(s.hub, s.config.AllowedOrigin)).Methods("GET")
	s.router.HandleFunc("/api/status", s.handleStatus).Methods("GET", "OPTIONS")
	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.config.AllowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ListenAndServe blocks until the server fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	return s.server.Shutdown(ctx)
}

// handleGenerateWave handles POST /generate-wave
func (s *Server) handleGenerateWave(w http.ResponseWriter, r *http.Request) {
	var req GenerateWaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		respondError(w, http.StatusBadRequest, "message must not be empty")
		return
	}

	err := s.link.Send(r.Context(), req.Message)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, layers.ErrEmptyPayload):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, layers.ErrTransmitBusy):
		respondError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("transmission failed", "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleSend handles POST /send: the text goes to the push subscribers
// without being transmitted.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		respondError(w, http.StatusBadRequest, "text must not be empty")
		return
	}
	s.hub.Publish(notify.Event{Message: req.Text})
	respondJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, StatusResponse{
		Detector:     s.link.DetectorState().String(),
		Transmitting: s.link.Transmitting(),
		Subscribers:  s.hub.SubscriberCount(),
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}
