// Package api is a read-only debug introspection surface, not the client
// wire protocol: it lets an operator inspect tasks, the running queue, and
// cache state over loopback HTTP. Grounded on the teacher's
// internal/api/server.go (chi router, loopback+token middleware chain,
// handler shape) with its command endpoints (queue/control) stripped,
// since task submission and lifecycle control run over the bus, not HTTP,
// in this build.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"project-tachyon/internal/config"
	"project-tachyon/internal/dlinfo"
	"project-tachyon/internal/runqueue"
	"project-tachyon/internal/taskstore"
)

// TaskStore is the subset of taskstore.Store this surface reads.
type TaskStore interface {
	Get(taskID uint32) (taskstore.Task, error)
	QueryByStates(states ...taskstore.State) ([]taskstore.Task, error)
	QueryTasksForUID(uid uint64) ([]taskstore.Task, error)
}

// RunQueue is the subset of runqueue.Queue this surface reads.
type RunQueue interface {
	RunningCount() int
	Handles() []runqueue.Key
}

// CacheEngine is the subset of cache.Engine this surface reads.
type CacheEngine interface {
	Contains(url string) bool
}

// Server is the debug introspection HTTP surface.
type Server struct {
	store  TaskStore
	queue  RunQueue
	cache  CacheEngine
	dlinfo *dlinfo.Store
	cfg    *config.Manager
	logger *slog.Logger
	router *chi.Mux
}

func New(store TaskStore, queue RunQueue, cacheEngine CacheEngine, infoStore *dlinfo.Store, cfg *config.Manager, logger *slog.Logger) *Server {
	s := &Server{store: store, queue: queue, cache: cacheEngine, dlinfo: infoStore, cfg: cfg, logger: logger}
	s.router = chi.NewRouter()
	s.setupRoutes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Serve binds to loopback-only on port and serves until the listener
// errors or is closed. Call in its own goroutine.
func (s *Server) Serve(port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api: bind %s: %w", addr, err)
	}
	if s.logger != nil {
		s.logger.Info("debug api listening", "addr", addr)
	}
	return http.Serve(ln, s.router)
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.loopbackAndTokenMiddleware)

	s.router.Get("/v1/tasks/{id}", s.handleGetTask)
	s.router.Get("/v1/tasks", s.handleListTasksForUID)
	s.router.Get("/v1/queue", s.handleGetQueue)
	s.router.Get("/v1/cache/{url}", s.handleCacheContains)
	s.router.Get("/v1/dlinfo/{id}", s.handleGetDLInfo)
	s.router.Get("/v1/status", s.handleGetStatus)
}

// loopbackAndTokenMiddleware rejects non-loopback callers and callers
// without the configured debug token, the same two gates the teacher
// applies to its control surface.
func (s *Server) loopbackAndTokenMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sourceIP, _, _ := net.SplitHostPort(r.RemoteAddr)
		if sourceIP != "127.0.0.1" && sourceIP != "::1" && sourceIP != "" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		if token := s.cfg.GetAPIToken(); token != "" {
			if r.Header.Get("X-Agent-Token") != token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var taskID uint32
	if _, err := fmt.Sscanf(id, "%d", &taskID); err != nil {
		http.Error(w, "invalid task id", http.StatusBadRequest)
		return
	}

	task, err := s.store.Get(taskID)
	if err != nil {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}
	writeJSON(w, task)
}

func (s *Server) handleListTasksForUID(w http.ResponseWriter, r *http.Request) {
	var uid uint64
	if _, err := fmt.Sscanf(r.URL.Query().Get("uid"), "%d", &uid); err != nil {
		http.Error(w, "missing or invalid uid query param", http.StatusBadRequest)
		return
	}

	tasks, err := s.store.QueryTasksForUID(uid)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, tasks)
}

type queueSnapshot struct {
	RunningCount int            `json:"running_count"`
	Handles      []runqueue.Key `json:"handles"`
}

func (s *Server) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, queueSnapshot{
		RunningCount: s.queue.RunningCount(),
		Handles:      s.queue.Handles(),
	})
}

func (s *Server) handleCacheContains(w http.ResponseWriter, r *http.Request) {
	url := chi.URLParam(r, "url")
	writeJSON(w, map[string]bool{"cached": s.cache.Contains(url)})
}

func (s *Server) handleGetDLInfo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var taskID uint32
	if _, err := fmt.Sscanf(id, "%d", &taskID); err != nil {
		http.Error(w, "invalid task id", http.StatusBadRequest)
		return
	}
	if s.dlinfo == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	info, ok := s.dlinfo.Get(taskID)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, info)
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "running"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
