// Package httpapi exposes a running scheduler over HTTP so tasks can be
// inspected, registered, put to sleep or reniced while the tick loop runs.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"hybridsched/internal/logx"
	"hybridsched/internal/sched"
)

// Backend is the scheduler surface the API needs.
type Backend interface {
	Register(t sched.Task) (sched.TaskID, error)
	Inspect() []sched.TaskSnapshot
	MarkSleeping(name string, ticks uint32) error
	Renice(name string, nice int) error
	CurrentTick() uint64
}

// Server is the REST API server.
type Server struct {
	router  chi.Router
	backend Backend
	log     logx.Logger
}

func New(b Backend, log logx.Logger) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		backend: b,
		log:     log.With(logx.String("component", "httpapi")),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.log))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Post("/", s.handleRegisterTask)
			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", s.handleGetTask)
				r.Post("/sleep", s.handleSleepTask)
				r.Post("/nice", s.handleReniceTask)
			})
		})
	})
}

// TaskView is the JSON form of a task snapshot.
type TaskView struct {
	ID             uint64 `json:"id"`
	Name           string `json:"name"`
	Policy         string `json:"policy"`
	Priority       int    `json:"priority"`
	Nice           int    `json:"nice"`
	Weight         uint64 `json:"weight"`
	Vruntime       uint64 `json:"vruntime"`
	TimeSlice      uint64 `json:"time_slice"`
	TotalRuntime   uint64 `json:"total_runtime"`
	CPUUsage       uint64 `json:"cpu_usage"`
	State          string `json:"state"`
	SleepRemaining uint32 `json:"sleep_remaining,omitempty"`
	Deadline       uint64 `json:"deadline,omitempty"`
}

func viewOf(ts sched.TaskSnapshot) TaskView {
	return TaskView{
		ID:             uint64(ts.ID),
		Name:           ts.Name,
		Policy:         ts.Policy.String(),
		Priority:       ts.Priority,
		Nice:           ts.Nice,
		Weight:         sched.NiceToWeight(ts.Nice),
		Vruntime:       ts.Vruntime,
		TimeSlice:      ts.TimeSlice,
		TotalRuntime:   ts.TotalRuntime,
		CPUUsage:       ts.CPUUsage,
		State:          ts.State.Kind.String(),
		SleepRemaining: ts.State.Remaining,
		Deadline:       ts.Deadline,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondOK(w, RequestIDFromContext(r.Context()), map[string]any{
		"status": "healthy",
		"tick":   s.backend.CurrentTick(),
	})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	snaps := s.backend.Inspect()
	views := make([]TaskView, 0, len(snaps))
	for _, ts := range snaps {
		views = append(views, viewOf(ts))
	}
	respondOK(w, RequestIDFromContext(r.Context()), views)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	name := chi.URLParam(r, "name")

	var match *sched.TaskSnapshot
	for _, ts := range s.backend.Inspect() {
		ts := ts
		if ts.Name != name {
			continue
		}
		if match == nil || (match.State.Kind == sched.Finished && ts.State.Kind != sched.Finished) {
			match = &ts
		}
	}
	if match == nil {
		respondError(w, reqID, http.StatusNotFound, &APIError{Code: codeNotFound, Message: "task " + name + " not found"})
		return
	}
	respondOK(w, reqID, viewOf(*match))
}

func (s *Server) handleRegisterTask(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var tc sched.TaskConfig
	if err := json.NewDecoder(r.Body).Decode(&tc); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &APIError{Code: codeBadRequest, Message: "invalid JSON: " + err.Error()})
		return
	}
	t, err := tc.Task()
	if err == nil {
		var id sched.TaskID
		id, err = s.backend.Register(t)
		if err == nil {
			respondCreated(w, reqID, map[string]any{"id": uint64(id), "name": t.Name})
			return
		}
	}
	respondError(w, reqID, http.StatusBadRequest, &APIError{Code: codeValidation, Message: err.Error()})
}

type sleepRequest struct {
	Ticks uint32 `json:"ticks"`
}

func (s *Server) handleSleepTask(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	name := chi.URLParam(r, "name")

	var req sleepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &APIError{Code: codeBadRequest, Message: "invalid JSON: " + err.Error()})
		return
	}

	err := s.backend.MarkSleeping(name, req.Ticks)
	switch {
	case err == nil:
		respondOK(w, reqID, map[string]any{"name": name, "ticks": req.Ticks})
	case errors.Is(err, sched.ErrNotFound):
		s.log.Warn("sleep target not found", logx.String("task", name))
		respondError(w, reqID, http.StatusNotFound, &APIError{Code: codeNotFound, Message: err.Error()})
	case errors.Is(err, sched.ErrTaskFinished):
		respondError(w, reqID, http.StatusConflict, &APIError{Code: codeConflict, Message: err.Error()})
	default:
		respondError(w, reqID, http.StatusBadRequest, &APIError{Code: codeValidation, Message: err.Error()})
	}
}

type niceRequest struct {
	Nice *int `json:"nice"`
}

func (s *Server) handleReniceTask(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	name := chi.URLParam(r, "name")

	var req niceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &APIError{Code: codeBadRequest, Message: "invalid JSON: " + err.Error()})
		return
	}
	if req.Nice == nil {
		respondError(w, reqID, http.StatusBadRequest, &APIError{Code: codeValidation, Message: "nice is required"})
		return
	}

	err := s.backend.Renice(name, *req.Nice)
	switch {
	case err == nil:
		respondOK(w, reqID, map[string]any{"name": name, "nice": *req.Nice})
	case errors.Is(err, sched.ErrNotFound):
		respondError(w, reqID, http.StatusNotFound, &APIError{Code: codeNotFound, Message: err.Error()})
	case errors.Is(err, sched.ErrTaskFinished), errors.Is(err, sched.ErrNotFair):
		respondError(w, reqID, http.StatusConflict, &APIError{Code: codeConflict, Message: err.Error()})
	default:
		respondError(w, reqID, http.StatusBadRequest, &APIError{Code: codeValidation, Message: err.Error()})
	}
}
