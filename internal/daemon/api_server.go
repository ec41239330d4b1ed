package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"videopipe/internal/api"
	"videopipe/internal/ingest"
	"videopipe/internal/jobs"
	"videopipe/internal/logging"
	"videopipe/internal/notify"
	"videopipe/internal/services"
)

const maxSubmitBody = 64 << 10

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	router *mux.Router

	listener net.Listener
	server   *http.Server
}

func newAPIServer(bind string, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(bind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	r := mux.NewRouter()
	r.Use(srv.requestID)
	r.HandleFunc("/api/status", srv.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/categories", srv.handleCategories).Methods(http.MethodGet)
	r.HandleFunc("/api/storage/stats", srv.handleStorageStats).Methods(http.MethodGet)
	r.HandleFunc("/api/jobs", srv.handleListJobs).Methods(http.MethodGet)
	r.HandleFunc("/api/jobs", srv.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/api/jobs/{id}", srv.handleGetJob).Methods(http.MethodGet)
	r.HandleFunc("/api/jobs/{id}", srv.handleDeleteJob).Methods(http.MethodDelete)
	r.HandleFunc("/api/jobs/{id}/resubmit", srv.handleResubmit).Methods(http.MethodPost)
	r.HandleFunc("/api/jobs/{id}/events", srv.handleEvents).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		srv.writeError(w, http.StatusNotFound, "not found", "")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		srv.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
	})
	srv.router = r

	srv.server = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Long polls hold responses for up to maxEventWait.
		WriteTimeout: maxEventWait + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv
}

// Handler exposes the router, for embedding and tests.
func (d *Daemon) Handler() http.Handler {
	return d.api.router
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_server_failed", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.String(logging.FieldEventType, "api_listening"),
	)
	return nil
}

func (s *apiServer) stop() {
	if s.listener == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *apiServer) address() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.bind
}

func (s *apiServer) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		DBPath:       status.DBPath,
		LockFilePath: status.LockFilePath,
		LogPath:      status.LogPath,
		Pipeline:     api.FromStatusSummary(status.Pipeline),
		Dependencies: status.Dependencies,
	})
}

func (s *apiServer) handleCategories(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.CategoriesResponse{Categories: s.daemon.Categories()})
}

func (s *apiServer) handleStorageStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.daemon.StorageStats(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.StorageStatsResponse{Bucket: s.daemon.bucketName(), Stats: stats})
}

func (s *apiServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var statuses []jobs.Status
	for _, value := range r.URL.Query()["status"] {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, ok := jobs.ParseStatus(part)
			if !ok {
				s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", part), "validation")
				return
			}
			statuses = append(statuses, status)
		}
	}
	list, err := s.daemon.ListJobs(r.Context(), statuses)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: api.FromJobs(list)})
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSubmitBody))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read request body", "validation")
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body", "validation")
		return
	}
	job, err := s.daemon.Submit(r.Context(), ingest.Request{
		Filename:      req.Filename,
		SourceRef:     req.SourcePath,
		Category:      req.Category,
		CropBottomPx:  req.CropBottomPx,
		AspectVariant: req.AspectVariant,
		Move:          req.Move,
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.JobResponse{Job: api.FromJob(job)})
}

func (s *apiServer) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.daemon.GetJob(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromJob(job)})
}

func (s *apiServer) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleResubmit(w http.ResponseWriter, r *http.Request) {
	job, err := s.daemon.Resubmit(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.JobResponse{Job: api.FromJob(job)})
}

func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var since uint64
	if raw := strings.TrimSpace(query.Get("since")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "since must be a non-negative integer", "validation")
			return
		}
		since = parsed
	}
	wait := query.Get("wait") == "1" || strings.EqualFold(query.Get("wait"), "true")

	events, next, err := s.daemon.Events(r.Context(), mux.Vars(r)["id"], since, wait)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.writeFailure(w, r, err)
		return
	}
	resp := api.EventsResponse{Events: events, Next: next}
	if resp.Events == nil {
		resp.Events = []notify.Event{}
	}
	for _, evt := range events {
		if evt.Terminal() {
			resp.Terminal = true
		}
	}
	if !resp.Terminal {
		if last, ok := s.daemon.deps.Hub.Last(mux.Vars(r)["id"]); ok && last.Terminal() && last.Sequence <= next {
			resp.Terminal = true
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// writeFailure maps error classes to HTTP statuses. Only the short summary
// reaches the client; the full chain is logged.
func (s *apiServer) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	kind := string(services.Classify(err))
	switch {
	case errors.Is(err, jobs.ErrNotFound), errors.Is(err, services.ErrNotFound), errors.Is(err, notify.ErrForgotten):
		status = http.StatusNotFound
		kind = "not_found"
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrConfiguration):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "api request failed", "api_request_failed",
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
	}
	s.writeError(w, status, services.Summary(err, 240), kind)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message, kind string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message, Kind: kind})
}
