package remote

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/roach88/yatra/internal/model"
)

// maxRequestBytes bounds a request body. Larger bodies get 413.
const maxRequestBytes = 8 << 20

// Server exposes an Adapter over HTTP.
type Server struct {
	backend Adapter
	secret  []byte
	logger  *slog.Logger
	handler http.Handler
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithSecret requires an HS256 bearer token signed with secret on every
// /v1 request.
func WithSecret(secret []byte) ServerOption {
	return func(s *Server) { s.secret = secret }
}

// WithServerLogger sets the request logger.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// NewServer returns a handler serving backend.
func NewServer(backend Adapter, opts ...ServerOption) *Server {
	s := &Server{backend: backend, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+PathHealth, s.health)
	mux.Handle("GET "+PathParticipants, s.auth(http.HandlerFunc(s.listParticipants)))
	mux.Handle("GET "+PathScans, s.auth(http.HandlerFunc(s.listScans)))
	mux.Handle("POST "+PathScans, s.auth(http.HandlerFunc(s.createScan)))
	mux.Handle("POST "+PathScansBulk, s.auth(http.HandlerFunc(s.bulkCreateScans)))
	mux.Handle("POST "+PathCompletions, s.auth(http.HandlerFunc(s.createCompletion)))
	s.handler = s.logging(mux)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.secret) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		h := r.Header.Get("Authorization")
		tok, ok := strings.CutPrefix(h, "Bearer ")
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
			return
		}
		device, err := VerifyToken(s.secret, strings.TrimSpace(tok))
		if err != nil {
			s.logger.Warn("rejected token", "path", r.URL.Path, "error", err)
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid token"})
			return
		}
		s.logger.Debug("authenticated", "device_id", device)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) listParticipants(w http.ResponseWriter, r *http.Request) {
	roster, err := s.backend.ListParticipants(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, participantsResponse{Participants: roster})
}

func (s *Server) listScans(w http.ResponseWriter, r *http.Request) {
	scans, err := s.backend.ListScanRecords(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scansResponse{Scans: scans})
}

func (s *Server) createScan(w http.ResponseWriter, r *http.Request) {
	var rec model.ScanRecord
	if !readJSON(w, r, &rec) {
		return
	}
	if !validScan(rec) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "id and participant_id are required"})
		return
	}
	ok, err := s.backend.CreateScanRecord(r.Context(), rec)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, createResponse{Accepted: ok})
}

func (s *Server) bulkCreateScans(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if !readJSON(w, r, &req) {
		return
	}
	valid := make([]model.ScanRecord, 0, len(req.Scans))
	for _, rec := range req.Scans {
		if validScan(rec) {
			valid = append(valid, rec)
		}
	}
	res, err := s.backend.BulkCreateScanRecords(r.Context(), valid)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.logger.Info("bulk create", "received", len(req.Scans), "invalid", len(req.Scans)-len(valid), "accepted", res.AcceptedCount)
	writeJSON(w, http.StatusOK, res)
}

// validScan reports whether rec carries the fields the store keys on.
func validScan(rec model.ScanRecord) bool {
	return rec.ID != "" && rec.ParticipantID != ""
}

func (s *Server) createCompletion(w http.ResponseWriter, r *http.Request) {
	var ev model.CompletionEvent
	if !readJSON(w, r, &ev) {
		return
	}
	if err := s.backend.CreateCompletionEvent(r.Context(), ev); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	var re *RejectedError
	if errors.As(err, &re) {
		writeJSON(w, re.Status, errorResponse{Error: re.Message})
		return
	}
	s.logger.Error("backend failure", "error", err)
	writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "backend unavailable"})
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
