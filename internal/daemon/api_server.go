package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"loom/internal/api"
	"loom/internal/config"
	"loom/internal/logging"
	"loom/internal/queue"
	"loom/internal/stage"
)

// apiServer exposes a read-only HTTP view of the daemon (status, queue,
// scenes, log stream) when workflow.api_bind is set. Mutations stay on the
// unix socket.
type apiServer struct {
	bind     string
	logger   *slog.Logger
	daemon   *Daemon
	queueSvc *api.QueueService

	listener net.Listener
	server   *http.Server
}

// newAPIServer returns nil when no bind address is configured; a nil
// apiServer is safe to start and stop.
func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Workflow.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:     bind,
		logger:   logger,
		daemon:   d,
		queueSvc: api.NewQueueService(d.store),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/api/queue", srv.handleQueue)
	mux.HandleFunc("/api/queue/", srv.handleQueueItem)
	mux.HandleFunc("/api/logs", srv.handleLogs)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// requireGet rejects everything except GET; the HTTP surface is read-only.
func (s *apiServer) requireGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet {
		return true
	}
	s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	status := s.daemon.Status(r.Context())
	deps := make([]api.DependencyStatus, len(status.Dependencies))
	for i, dep := range status.Dependencies {
		deps[i] = api.DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		QueueDBPath:  status.QueueDBPath,
		LockFilePath: status.LockFilePath,
		Workflow:     workflowStatusDTO(status),
		Dependencies: deps,
	})
}

func workflowStatusDTO(status Status) api.WorkflowStatus {
	out := api.WorkflowStatus{
		Running:    status.Workflow.Running,
		QueueStats: api.FromStatusSummary(status.Workflow.QueueStats),
		LastError:  status.Workflow.LastError,
	}
	if status.Workflow.LastItem != nil {
		item := api.FromQueueItem(status.Workflow.LastItem)
		out.LastItem = &item
	}
	health := make([]stage.Health, 0, len(status.Workflow.StageHealth))
	for name, h := range status.Workflow.StageHealth {
		h.Name = name
		health = append(health, h)
	}
	sort.Slice(health, func(i, j int) bool { return health[i].Name < health[j].Name })
	out.StageHealth = api.StageHealthSlice(health)
	return out
}

func (s *apiServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	if s.queueSvc == nil {
		s.writeJSON(w, http.StatusOK, api.QueueListResponse{Items: nil})
		return
	}
	var statuses []queue.Status
	for _, value := range r.URL.Query()["status"] {
		if parsed, ok := queue.ParseStatus(value); ok {
			statuses = append(statuses, parsed)
		}
	}

	resp, err := s.queueSvc.List(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleQueueItem serves /api/queue/{id} and /api/queue/{id}/scenes.
func (s *apiServer) handleQueueItem(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	if s.queueSvc == nil {
		s.writeError(w, http.StatusNotFound, "queue item not found")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/queue/")
	idStr, sub, hasSub := strings.Cut(rest, "/")
	if idStr == "" || (hasSub && sub != "scenes") {
		s.writeError(w, http.StatusNotFound, "queue item not found")
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid queue item id")
		return
	}

	if hasSub {
		scenes, err := s.queueSvc.Scenes(r.Context(), id)
		if err != nil {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, scenes)
		return
	}

	item, err := s.queueSvc.Describe(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, item)
}

// logsQuery is the parsed /api/logs query string.
type logsQuery struct {
	since     uint64
	limit     int
	follow    bool
	tail      bool
	itemID    int64
	component string
}

func parseLogsQuery(r *http.Request) logsQuery {
	values := r.URL.Query()
	q := logsQuery{
		follow:    boolQuery(values.Get("follow")),
		tail:      boolQuery(values.Get("tail")),
		component: strings.TrimSpace(values.Get("component")),
	}
	q.since, _ = strconv.ParseUint(values.Get("since"), 10, 64)
	q.limit, _ = strconv.Atoi(values.Get("limit"))
	if q.limit <= 0 {
		q.limit = 200
	}
	if value := strings.TrimSpace(values.Get("item")); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			q.itemID = parsed
		}
	}
	return q
}

func (q logsQuery) keep(evt api.LogEvent) bool {
	if q.itemID != 0 && evt.ItemID != q.itemID {
		return false
	}
	if q.component != "" && !strings.EqualFold(q.component, evt.Component) {
		return false
	}
	return true
}

func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	hub := s.daemon.LogStream()
	archive := s.daemon.LogArchive()
	if hub == nil && archive == nil {
		s.writeJSON(w, http.StatusOK, api.LogStreamResponse{Events: nil, Next: 0})
		return
	}

	q := parseLogsQuery(r)

	var (
		events []api.LogEvent
		next   uint64
	)

	// A cursor older than the hub's ring buffer means the events have been
	// evicted from memory; serve them from the on-disk archive instead.
	if archive != nil && q.since > 0 {
		firstSeq := uint64(0)
		if hub != nil {
			firstSeq = hub.FirstSequence()
		}
		if hub == nil || (firstSeq > 0 && q.since < firstSeq) {
			archived, cursor, archErr := archive.ReadSince(q.since, q.limit)
			if archErr != nil {
				s.log().Warn("log archive read failed", logging.Error(archErr))
			} else if len(archived) > 0 {
				events = api.FromLogEvents(archived)
				next = cursor
			}
		}
	}
	if q.tail && q.since == 0 && !q.follow && hub != nil {
		raw, cursor := hub.Tail(q.limit)
		events = api.FromLogEvents(raw)
		next = cursor
	} else if len(events) == 0 && hub != nil {
		raw, cursor, fetchErr := hub.Fetch(r.Context(), q.since, q.limit, q.follow)
		if fetchErr != nil && !errors.Is(fetchErr, context.Canceled) && !errors.Is(fetchErr, context.DeadlineExceeded) {
			s.writeError(w, http.StatusInternalServerError, fetchErr.Error())
			return
		}
		events = api.FromLogEvents(raw)
		next = cursor
	}

	filtered := make([]api.LogEvent, 0, len(events))
	for _, evt := range events {
		if q.keep(evt) {
			filtered = append(filtered, evt)
		}
	}

	s.writeJSON(w, http.StatusOK, api.LogStreamResponse{
		Events: filtered,
		Next:   next,
	})
}

func boolQuery(value string) bool {
	return value == "1" || strings.EqualFold(value, "true")
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String("component", "api-server"))
	}
	return logging.NewNop()
}
