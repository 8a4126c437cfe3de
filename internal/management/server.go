// ABOUTME: Management API for health monitoring, effective config and the call journal
// ABOUTME: Serves /api/health, /api/config, /api/sessions and /api/calls as JSON

package management

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/harper/ksc-bridge/internal/config"
	"github.com/harper/ksc-bridge/internal/db"
	"github.com/harper/ksc-bridge/internal/logger"
	"github.com/harper/ksc-bridge/internal/session"
)

var log = logger.Named("management")

// Pinger checks the KSC server; *service.Service implements it.
type Pinger interface {
	Ping(ctx context.Context) (string, error)
}

// Journal is the read side of the call journal; *db.DB implements it.
type Journal interface {
	RecentCalls(limit int) ([]db.Call, error)
	GetAllSessions() ([]db.Session, error)
}

const (
	defaultCallLimit = 100
	pingTimeout      = 10 * time.Second
)

type Server struct {
	config     *config.Config
	sessionMgr *session.Manager
	pinger     Pinger
	journal    Journal
	mux        *http.ServeMux
}

// NewServer wires the endpoints; pinger and journal may be nil.
func NewServer(cfg *config.Config, mgr *session.Manager, pinger Pinger, journal Journal) *Server {
	s := &Server{
		config:     cfg,
		sessionMgr: mgr,
		pinger:     pinger,
		journal:    journal,
		mux:        http.NewServeMux(),
	}

	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/config", s.handleConfig)
	s.mux.HandleFunc("/api/sessions", s.handleSessions)
	s.mux.HandleFunc("/api/calls", s.handleCalls)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Health is the /api/health document.
type Health struct {
	Status   string         `json:"status"`
	Server   string         `json:"server"`
	Sessions []session.Info `json:"sessions"`
	Ping     string         `json:"ping,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// handleHealth reports session state; ?ping=true also checks the KSC server.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := Health{
		Status:   "healthy",
		Server:   s.config.KSC.Host,
		Sessions: s.sessionMgr.List(),
	}

	status := http.StatusOK
	if ping, _ := strconv.ParseBool(r.URL.Query().Get("ping")); ping && s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()
		pong, err := s.pinger.Ping(ctx)
		if err != nil {
			health.Status = "degraded"
			health.Error = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			health.Ping = pong
		}
	}

	writeJSON(w, status, health)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.config.Redacted())
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.journal == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}

	sessions, err := s.journal.GetAllSessions()
	if err != nil {
		log.Error("failed to get sessions: %v", err)
		http.Error(w, "failed to get sessions", http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []db.Session{}
	}

	// Enable CORS for web interface
	w.Header().Set("Access-Control-Allow-Origin", "*")
	writeJSON(w, http.StatusOK, sessions)
}

// handleCalls returns the newest journal entries; ?limit=n caps the count.
func (s *Server) handleCalls(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.journal == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}

	limit := defaultCallLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	calls, err := s.journal.RecentCalls(limit)
	if err != nil {
		log.Error("failed to get calls: %v", err)
		http.Error(w, "failed to get calls", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")
	writeJSON(w, http.StatusOK, calls)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("error encoding response: %v", err)
	}
}
