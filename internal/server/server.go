// Package server exposes a ScheduleAPI backend over HTTP/JSON.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/muaviaUsmani/opsconsole/internal/api"
	apperrors "github.com/muaviaUsmani/opsconsole/internal/errors"
	"github.com/muaviaUsmani/opsconsole/internal/logger"
	"github.com/muaviaUsmani/opsconsole/internal/model"
)

// Headers identifying the acting user
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserName = "X-User-Name"
)

const (
	defaultPage = 1
	defaultSize = 10
	maxSize     = 100
)

// Envelope wraps every response body
type Envelope struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error *api.ErrorBody  `json:"error,omitempty"`
}

// ApproveRequest is the optional body of an approval call
type ApproveRequest struct {
	Comment string `json:"comment"`
}

// MutationResult is the data returned by every successful mutation
type MutationResult struct {
	OK bool `json:"ok"`
}

// Server serves the /api/v1 routes
type Server struct {
	backend api.ScheduleAPI
	log     logger.Logger
}

// New creates a server over backend
func New(backend api.ScheduleAPI, log logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{
		backend: backend,
		log:     log.WithComponent(logger.ComponentAPI),
	}
}

// Handler returns the routed handler with recovery and request logging applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	mux.Handle("GET /api/v1/schedules/{id}", s.wrap(s.getSchedule))
	mux.Handle("POST /api/v1/schedules/{id}/{action}", s.wrap(s.mutateSchedule))
	mux.Handle("GET /api/v1/schedules/{id}/tasks", s.wrap(s.listTasks))
	mux.Handle("GET /api/v1/schedules/{id}/tasks/{taskId}", s.wrap(s.getTask))
	mux.Handle("POST /api/v1/schedules/{id}/tasks/{taskId}/{action}", s.wrap(s.mutateTask))
	mux.Handle("GET /api/v1/schedules/{id}/operations", s.wrap(s.listOperations))
	mux.Handle("GET /api/v1/flows/{id}", s.wrap(s.getFlow))
	mux.Handle("POST /api/v1/flows/{id}/{action}", s.wrap(s.approve))

	return s.logRequests(mux)
}

// handlerFunc returns the response data or an error to map onto the envelope
type handlerFunc func(r *http.Request) (interface{}, error)

func (s *Server) wrap(h handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(actorContext(r))

		var data interface{}
		err := apperrors.Call(func() error {
			var err error
			data, err = h(r)
			return err
		})

		var panicErr *apperrors.PanicError
		if errors.As(err, &panicErr) {
			s.log.Error("Handler panicked", "path", r.URL.Path, "panic", apperrors.FormatPanicForLog(panicErr))
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeData(w, data)
	})
}

// actorContext attaches the user named by the request headers, if any
func actorContext(r *http.Request) context.Context {
	ctx := r.Context()
	raw := r.Header.Get(HeaderUserID)
	if raw == "" {
		return ctx
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return ctx
	}
	return api.WithActor(ctx, model.User{ID: id, Name: r.Header.Get(HeaderUserName)})
}

func statusOf(code string) int {
	switch code {
	case api.CodeNotFound:
		return http.StatusNotFound
	case api.CodeConflict:
		return http.StatusConflict
	case api.CodeInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := api.CodeOf(err)
	status := statusOf(code)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	} else {
		s.log.Debug("Request rejected", "method", r.Method, "path", r.URL.Path, "code", code, "error", err)
	}

	s.writeJSON(w, status, Envelope{Error: &api.ErrorBody{Code: code, Message: msg}})
}

func (s *Server) writeData(w http.ResponseWriter, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		s.log.Error("Failed to encode response", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, Envelope{Error: &api.ErrorBody{Code: api.CodeInternal, Message: "internal error"}})
		return
	}
	s.writeJSON(w, http.StatusOK, Envelope{Data: raw})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		s.log.Warn("Failed to write response", "error", err)
	}
}

// statusRecorder captures the status code for request logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("Request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %q", api.ErrInvalidArgument, name, raw)
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", api.ErrInvalidArgument, name, raw)
	}
	return n, nil
}
