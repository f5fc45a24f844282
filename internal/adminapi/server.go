// Package adminapi exposes a read-only HTTP surface for operators: audit
// tail and per-application grant inspection. It never accepts a request
// that mutates the Grant Store — that is the request loop's job alone,
// reached only through the kernel IPC endpoint.
package adminapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/kozo-systems/policyd/internal/obslog"
	"github.com/kozo-systems/policyd/internal/policy"
)

// Server is the admin HTTP API.
type Server struct {
	store  *policy.GrantStore
	logger *obslog.Logger
	router *mux.Router
}

// NewServer builds a Server backed by store.
func NewServer(store *policy.GrantStore, logger *obslog.Logger) *Server {
	s := &Server{store: store, logger: logger, router: mux.NewRouter()}
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/audit/recent", s.handleAuditRecent).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/apps/{identity}/grants", s.handleAppGrants).Methods(http.MethodGet)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type auditEventDTO struct {
	Timestamp string `json:"timestamp"`
	Identity  uint64 `json:"identity"`
	Action    string `json:"action"`
	ClearName string `json:"clear_name"`
	Success   bool   `json:"success"`
}

func (s *Server) handleAuditRecent(w http.ResponseWriter, r *http.Request) {
	count := 50
	if v := r.URL.Query().Get("count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			count = n
		}
	}

	events := s.store.Recent(count)
	dtos := make([]auditEventDTO, len(events))
	for i, ev := range events {
		dtos[i] = auditEventDTO{
			Timestamp: ev.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
			Identity:  ev.Identity.Raw(),
			Action:    string(ev.Action),
			ClearName: string(ev.ClearName),
			Success:   ev.Success,
		}
	}

	writeJSON(w, http.StatusOK, dtos)
}

func (s *Server) handleAppGrants(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	raw, err := strconv.ParseUint(vars["identity"], 10, 64)
	if err != nil {
		http.Error(w, "invalid identity", http.StatusBadRequest)
		return
	}

	identity := policy.FromBadge(raw)
	names := s.store.ListGranted(identity)
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
