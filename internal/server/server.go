package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hp77-creator/clipkeep/internal/logging"
	"github.com/hp77-creator/clipkeep/internal/service"
)

type Server struct {
	clipService *service.ClipboardService
	srv         *http.Server
	hub         *Hub
	router      chi.Router
	config      Config
	log         *slog.Logger
	cancel      context.CancelFunc
}

type Config struct {
	Port int
}

// tagsRequest is the body of PUT /api/clips/{id}/tags
type tagsRequest struct {
	Tags []string `json:"tags"`
}

func New(clipService *service.ClipboardService, config Config) *Server {
	log := logging.ForComponent(logging.CompHTTP)
	s := &Server{
		clipService: clipService,
		hub:         newHub(log),
		config:      config,
		log:         log,
	}
	hubCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.hub.run(hubCtx)

	clipService.RegisterHandler(s.hub)
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.serveWs)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Second))

		r.Get("/status", s.handleStatus)
		r.Route("/api", func(r chi.Router) {
			r.Get("/search", s.handleSearch)
			r.Get("/clips", s.handleGetClips)
			r.Delete("/clips", s.handleClearClips)
			r.Route("/clips/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetClip)
				r.Delete("/", s.handleDeleteClip)
				r.Post("/pin", s.handlePin(true))
				r.Post("/unpin", s.handlePin(false))
				r.Put("/tags", s.handleSetTags)
			})
		})
	})
	return r
}

// Handler returns the HTTP handler without starting a listener
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	// Try different addresses if one fails
	addresses := []string{
		fmt.Sprintf("localhost:%d", s.config.Port),
		fmt.Sprintf("127.0.0.1:%d", s.config.Port),
	}

	var lastErr error
	for _, addr := range addresses {
		s.srv = &http.Server{
			Addr:              addr,
			Handler:           s.router,
			ReadHeaderTimeout: 5 * time.Second,
		}

		s.log.Info("starting http server", "addr", addr)
		serverErr := make(chan error, 1)
		go func(srv *http.Server) {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				serverErr <- fmt.Errorf("http server error on %s: %w", srv.Addr, err)
			}
		}(s.srv)

		// Wait a moment to see if the server starts successfully
		select {
		case err := <-serverErr:
			lastErr = err
			s.log.Warn("failed to start http server", "addr", addr, "error", err)
			continue
		case <-time.After(100 * time.Millisecond):
			s.log.Info("http server started", "addr", addr)
			return nil
		}
	}

	return fmt.Errorf("failed to start server on any address: %w", lastErr)
}

func (s *Server) Stop() error {
	s.cancel()
	if s.srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	addr := ""
	if s.srv != nil {
		addr = s.srv.Addr
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"time":    time.Now().Format(time.RFC3339),
		"addr":    addr,
		"history": s.clipService.Status(),
	})
}

func (s *Server) handleGetClips(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.clipService.GetClips(limit))
}

func (s *Server) handleGetClip(w http.ResponseWriter, r *http.Request) {
	clip, err := s.clipService.GetClip(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, clip)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var threshold float64
	if raw := q.Get("threshold"); raw != "" {
		threshold, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid threshold %q", raw))
			return
		}
	}

	results := s.clipService.Search(service.SearchParams{
		Query:     q.Get("q"),
		Mode:      q.Get("mode"),
		Threshold: threshold,
		Limit:     limit,
	})
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handlePin(pinned bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.clipService.SetPinned(r.Context(), chi.URLParam(r, "id"), pinned); err != nil {
			s.writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleSetTags(w http.ResponseWriter, r *http.Request) {
	var req tagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := s.clipService.SetTags(r.Context(), chi.URLParam(r, "id"), req.Tags); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteClip(w http.ResponseWriter, r *http.Request) {
	if err := s.clipService.DeleteClip(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearClips(w http.ResponseWriter, r *http.Request) {
	if err := s.clipService.ClearClips(r.Context()); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	s.log.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, err)
}

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// requestLogger logs each request through slog
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"took", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}
