// Package api provides the HTTP alert receiver and the read-only health
// and metrics endpoints.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ghost-edr/enforcer/internal/core"
	"github.com/ghost-edr/enforcer/internal/runtime"
)

// maxAlertBody bounds the size of an accepted alert payload.
const maxAlertBody = 1 << 20

// Server receives Falco alerts over HTTP and feeds them to the policy
// engine. Receipt of a structurally valid payload is always acknowledged
// regardless of downstream outcome; only unparseable payloads are rejected.
type Server struct {
	engine  *core.PolicyEngine
	rt      runtime.ContainerRuntime
	logger  zerolog.Logger
	server  *http.Server
	baseCtx context.Context
}

// NewServer creates the receiver. Alert processing uses baseCtx rather
// than the request context so that a submitter disconnecting does not
// cancel an in-flight enforcement action.
func NewServer(baseCtx context.Context, cfg *core.ResolvedConfig, engine *core.PolicyEngine, rt runtime.ContainerRuntime, logger zerolog.Logger) *Server {
	s := &Server{
		engine:  engine,
		rt:      rt,
		logger:  logger.With().Str("component", "receiver").Logger(),
		baseCtx: baseCtx,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/falco", s.handleFalcoAlert)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/metrics", s.handleMetrics)
	if cfg.EnableMetrics {
		mux.Handle("/metrics/prom", promhttp.Handler())
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Receiver.Host, cfg.Receiver.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start begins serving in the background.
func (s *Server) Start() {
	s.logger.Info().Str("addr", s.server.Addr).Msg("alert receiver starting")
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("alert receiver error")
		}
	}()
}

// Stop gracefully shuts down the server, waiting for in-flight requests.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleFalcoAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxAlertBody))
	if err != nil {
		http.Error(w, "reading request body", http.StatusBadRequest)
		return
	}

	alert, err := core.UnmarshalFalcoAlert(body)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to parse alert payload")
		http.Error(w, "invalid alert payload", http.StatusBadRequest)
		return
	}

	s.logger.Info().
		Str("rule", alert.Rule).
		Str("severity", alert.Severity.String()).
		Str("container_id", alert.ShortContainerID()).
		Str("container_name", alert.ContainerName).
		Msg("alert received")

	s.engine.ProcessAlert(s.baseCtx, alert)

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rtName := "unknown"
	if s.rt != nil {
		rtName = s.rt.Name()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"runtime":  rtName,
		"policies": s.engine.PolicyCount(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Metrics().Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
