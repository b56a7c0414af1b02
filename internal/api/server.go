package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"sshguard/internal/alerts"
	"sshguard/internal/config"
	"sshguard/internal/engine"
	"sshguard/internal/metrics"
	"sshguard/internal/model"
	"sshguard/internal/storage"
)

type EngineControl interface {
	Reset()
	ClearAttempts()
	Stats() engine.Stats
	GetRecentAttempts(minutes int) []model.ConnectionAttempt
}

type Resetter interface {
	Reset()
}

type Server struct {
	cfg     *config.Manager
	engine  EngineControl
	monitor Resetter
	alerts  *alerts.Store
	tally   *metrics.Tally
	metrics *metrics.Collectors
	sink    storage.Store
	logger  *slog.Logger
	version string
}

// Deps groups what the API reads from. Only Config and Engine are required.
type Deps struct {
	Config  *config.Manager
	Engine  EngineControl
	Monitor Resetter
	Alerts  *alerts.Store
	Tally   *metrics.Tally
	Metrics *metrics.Collectors
	Sink    storage.Store
	Version string
}

type statusResponse struct {
	Status     string       `json:"status"`
	Time       string       `json:"time"`
	Version    string       `json:"version"`
	ConfigPath string       `json:"config_path"`
	Engine     engine.Stats `json:"engine"`
	Ingest     ingestStatus `json:"ingest"`
	GeoIP      bool         `json:"geoip"`
	Storage    string       `json:"storage,omitempty"`
	Alerts     int          `json:"alerts"`
}

type ingestStatus struct {
	FileTail bool `json:"file_tail"`
	Syslog   bool `json:"syslog"`
	Journal  bool `json:"journal"`
	Kafka    bool `json:"kafka"`
	REST     bool `json:"rest"`
}

func NewServer(deps Deps, logger *slog.Logger) *Server {
	return &Server{
		cfg:     deps.Config,
		engine:  deps.Engine,
		monitor: deps.Monitor,
		alerts:  deps.Alerts,
		tally:   deps.Tally,
		metrics: deps.Metrics,
		sink:    deps.Sink,
		logger:  logger,
		version: deps.Version,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/status", s.handleStatus)
	r.Get("/alerts", s.handleAlerts)
	r.Get("/attempts", s.handleAttempts)
	r.Get("/summary", s.handleSummary)
	r.Post("/admin/clear", s.handleClear)
	r.Post("/admin/reset", s.handleReset)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	return r
}

func Start(ctx context.Context, cfg *config.Manager, server *Server, logger *slog.Logger) *http.Server {
	if cfg == nil || server == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	httpServer := &http.Server{
		Addr:              current.Addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Engine:     s.engine.Stats(),
		Ingest: ingestStatus{
			FileTail: cfg.Ingest.FileTail.Enabled,
			Syslog:   cfg.Ingest.Syslog.Enabled,
			Journal:  cfg.Ingest.Journal.Enabled,
			Kafka:    cfg.Ingest.Kafka.Enabled,
			REST:     cfg.Ingest.REST.Enabled,
		},
		GeoIP: cfg.GeoIP.Enabled,
	}
	if cfg.Storage.Enabled {
		resp.Storage = cfg.Storage.Driver
	}
	if s.alerts != nil {
		resp.Alerts = s.alerts.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAlerts serves the in-memory ring, or the SQL sink when
// ?persisted=true and storage is configured.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	var since time.Time
	if v := q.Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid since, want RFC 3339", http.StatusBadRequest)
			return
		}
		since = ts
	}

	var list []model.Alert
	switch {
	case q.Get("persisted") == "true":
		if s.sink == nil {
			http.Error(w, "storage disabled", http.StatusNotFound)
			return
		}
		stored, err := s.sink.ListAlerts(r.Context(), since, limit)
		if err != nil {
			if s.logger != nil {
				s.logger.Error("list stored alerts failed", "err", err)
			}
			http.Error(w, "storage error", http.StatusInternalServerError)
			return
		}
		list = stored
	case s.alerts == nil:
	case !since.IsZero():
		list = s.alerts.Since(since)
		if limit > 0 && len(list) > limit {
			list = list[len(list)-limit:]
		}
	default:
		list = s.alerts.List(limit)
	}
	if list == nil {
		list = []model.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": list,
		"count":  len(list),
	})
}

func (s *Server) handleAttempts(w http.ResponseWriter, r *http.Request) {
	minutes := 60
	if v := r.URL.Query().Get("minutes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid minutes", http.StatusBadRequest)
			return
		}
		minutes = n
	}
	list := s.engine.GetRecentAttempts(minutes)
	if list == nil {
		list = []model.ConnectionAttempt{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"attempts": list,
		"count":    len(list),
		"minutes":  minutes,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if s.tally == nil {
		writeJSON(w, http.StatusOK, metrics.Summary{})
		return
	}
	top := 10
	if v := r.URL.Query().Get("top"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			top = n
		}
	}
	writeJSON(w, http.StatusOK, s.tally.Summary(top))
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	var req struct {
		Target string `json:"target"`
	}
	_ = json.Unmarshal(body, &req)
	target := strings.ToLower(strings.TrimSpace(req.Target))
	if target == "" {
		target = "all"
	}
	switch target {
	case "all":
		s.clearAlerts()
		s.clearSummary()
	case "alerts":
		s.clearAlerts()
	case "summary":
		s.clearSummary()
	case "attempts":
		s.engine.ClearAttempts()
	default:
		http.Error(w, "unknown target", http.StatusBadRequest)
		return
	}
	if s.logger != nil {
		s.logger.Info("admin clear", "target", target)
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "target": target})
}

// handleReset drops every piece of runtime state: attempts, time-anomaly
// history, cooldowns, alerts and the summary.
func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.engine.Reset()
	if s.monitor != nil {
		s.monitor.Reset()
	}
	s.clearAlerts()
	s.clearSummary()
	if s.logger != nil {
		s.logger.Info("admin reset")
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) clearAlerts() {
	if s.alerts != nil {
		s.alerts.Clear()
	}
}

func (s *Server) clearSummary() {
	if s.tally != nil {
		s.tally.Clear()
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
