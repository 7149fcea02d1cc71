// Package control serves the agent's commands and detection results over
// HTTP.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/polzovatel/form-autofill-agent/internal/agent"
	"github.com/polzovatel/form-autofill-agent/internal/metrics"
	"github.com/polzovatel/form-autofill-agent/internal/model"
	"github.com/polzovatel/form-autofill-agent/internal/profile"
	"github.com/polzovatel/form-autofill-agent/internal/tools"
)

const maxBodyBytes = 1 << 20

// Latest keeps the most recent detection result. It implements
// agent.Notifier.
type Latest struct {
	mu sync.RWMutex
	n  *model.DetectedFormsNotification
}

func (l *Latest) Publish(_ context.Context, n model.DetectedFormsNotification) {
	l.mu.Lock()
	l.n = &n
	l.mu.Unlock()
}

// Get returns the stored notification.
func (l *Latest) Get() (model.DetectedFormsNotification, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.n == nil {
		return model.DetectedFormsNotification{}, false
	}
	return *l.n, true
}

// Server routes commands to a toolbox and serves the latest detection.
type Server struct {
	router  chi.Router
	tools   tools.Toolbox
	latest  *Latest
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func New(tb tools.Toolbox, latest *Latest, m *metrics.Metrics, logger zerolog.Logger) *Server {
	if latest == nil {
		latest = &Latest{}
	}
	s := &Server{tools: tb, latest: latest, metrics: m, logger: logger}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.health)
	r.Get("/forms", s.forms)
	r.Get("/commands", s.commands)
	r.Post("/commands/{name}", s.invoke)
	r.Method(http.MethodGet, "/metrics", m.Handler())
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info().Str("addr", addr).Msg("control server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("control server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("control server shutdown: %w", err)
	}
	return nil
}

type response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response{Success: status < 300, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response{Error: &errorBody{Code: code, Message: msg}})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) forms(w http.ResponseWriter, _ *http.Request) {
	latest, ok := s.latest.Get()
	if !ok {
		writeError(w, http.StatusNotFound, "no_detection", "no forms detected yet")
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

func (s *Server) commands(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.tools.Describe())
}

func (s *Server) invoke(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !s.known(name) {
		writeError(w, http.StatusNotFound, "unknown_command", fmt.Sprintf("unknown command %q", name))
		return
	}

	input := map[string]any{}
	if r.ContentLength != 0 {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err := dec.Decode(&input); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "request body must be a JSON object")
			return
		}
	}

	res, err := s.tools.Invoke(r.Context(), name, input)
	if err != nil {
		status, code := classify(err)
		s.logger.Warn().Err(err).Str("command", name).Int("status", status).Msg("command failed")
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) known(name string) bool {
	for _, t := range s.tools.Describe() {
		if t.Name == name {
			return true
		}
	}
	return false
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, agent.ErrFillInProgress):
		return http.StatusConflict, "fill_in_progress"
	case errors.Is(err, agent.ErrFormNotFound):
		return http.StatusNotFound, "form_not_found"
	case errors.Is(err, agent.ErrNoForms):
		return http.StatusNotFound, "no_forms"
	case errors.Is(err, agent.ErrNoUserData):
		return http.StatusUnprocessableEntity, "no_user_data"
	case errors.Is(err, profile.ErrUnauthorized):
		return http.StatusBadGateway, "profile_unauthorized"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusBadRequest, "command_failed"
	}
}

// logRequests logs each request and counts it by route pattern.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.RecordHTTPRequest(r.Method, route, status)

		var ev *zerolog.Event
		switch {
		case status >= 500:
			ev = s.logger.Error()
		case status >= 400:
			ev = s.logger.Warn()
		default:
			ev = s.logger.Debug()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("took", time.Since(start)).
			Str("request_id", chimw.GetReqID(r.Context())).
			Msg("http request")
	})
}
