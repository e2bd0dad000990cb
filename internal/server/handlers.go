package server

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/armlab/ulftrack/pkg/analysis"
	"github.com/armlab/ulftrack/pkg/journal"
)

// sessionSummary is one history entry in the sessions listing.
type sessionSummary struct {
	Key         string          `json:"key"`
	AnalysisKey string          `json:"analysis_key,omitempty"`
	Params      analysis.Params `json:"analysis_params"`
	Subjects    int             `json:"subjects"`
}

// planResponse is the latest committed session with its history key.
type planResponse struct {
	Key     string          `json:"key"`
	Session journal.Session `json:"session"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.version)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	j, ok := s.openJournal(w, r)
	if !ok {
		return
	}

	keys := j.SessionKeys()
	sessions := make([]sessionSummary, 0, len(keys))
	for _, k := range keys {
		sess, _ := j.SessionAt(k)
		sessions = append(sessions, sessionSummary{
			Key:         k,
			AnalysisKey: sess.Key,
			Params:      sess.Params,
			Subjects:    len(sess.Subjects),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	j, ok := s.openJournal(w, r)
	if !ok {
		return
	}

	key := chi.URLParam(r, "key")
	sess, found := j.SessionAt(key)
	if !found {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "no session recorded under that key")
		return
	}

	writeJSON(w, http.StatusOK, planResponse{Key: key, Session: sess})
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	j, ok := s.openJournal(w, r)
	if !ok {
		return
	}

	keys := j.SessionKeys()
	if len(keys) == 0 {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "journal has no committed sessions")
		return
	}

	latest := keys[len(keys)-1]
	sess, _ := j.SessionAt(latest)
	writeJSON(w, http.StatusOK, planResponse{Key: latest, Session: sess})
}

// openJournal reads the journal for a request, translating load
// failures into API errors. The journal must already exist; the server
// never creates one.
func (s *Server) openJournal(w http.ResponseWriter, r *http.Request) (*journal.Journal, bool) {
	if s.journalPath == "" {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "no journal configured")
		return nil, false
	}
	if _, err := os.Stat(s.journalPath); errors.Is(err, os.ErrNotExist) {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "journal not found; run a scan first")
		return nil, false
	}

	j, err := journal.Inspect(s.journalPath)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return nil, false
	}
	return j, true
}
