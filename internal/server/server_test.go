package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armlab/ulftrack/pkg/analysis"
	"github.com/armlab/ulftrack/pkg/journal"
)

// seedJournal writes a journal with two committed sessions and returns
// its path.
func seedJournal(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), journal.Filename)

	j, err := journal.Load(path)
	require.NoError(t, err)

	params := analysis.Params{InstRate: 1, AvgWindow: 60, AvgShift: 15, SummaryWindows: []int{7}}
	key, err := params.Key()
	require.NoError(t, err)
	j.Append(time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC), journal.Session{
		Key:      key,
		Params:   params,
		Subjects: map[string]journal.SubjectEntry{"subj01": {}},
	})
	j.Append(time.Date(2024, 1, 6, 10, 0, 0, 0, time.UTC), journal.Session{
		Key:      key,
		Params:   params,
		Subjects: map[string]journal.SubjectEntry{"subj01": {}, "subj02": {}},
	})
	require.NoError(t, j.Save())
	return path
}

func TestServerErrorEnvelopes(t *testing.T) {
	srv := New("127.0.0.1", 0)

	t.Run("unknown route returns JSON 404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
		rec := httptest.NewRecorder()

		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusNotFound, rec.Code)

		var body ErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "NOT_FOUND", body.Error.Code)
	})

	t.Run("wrong method returns JSON 405", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/version", nil)
		rec := httptest.NewRecorder()

		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

		var body ErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "METHOD_NOT_ALLOWED", body.Error.Code)
	})
}

func TestServer_Port(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"default port", 8080},
		{"custom port", 9000},
		{"zero port", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New("127.0.0.1", tt.port)
			assert.Equal(t, tt.port, srv.Port())
		})
	}
}

func TestServer_Handler(t *testing.T) {
	srv := New("127.0.0.1", 8080)
	assert.NotNil(t, srv.Handler())
}

func TestServer_Health(t *testing.T) {
	srv := New("127.0.0.1", 0)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestServer_Version(t *testing.T) {
	srv := New("127.0.0.1", 0, WithVersionInfo(VersionInfo{
		Version:   "1.2.3",
		Commit:    "abc123",
		BuildDate: "2024-01-15",
	}))

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body VersionInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "1.2.3", body.Version)
	assert.Equal(t, "abc123", body.Commit)
}

func TestServer_Sessions(t *testing.T) {
	srv := New("127.0.0.1", 0, WithJournal(seedJournal(t)))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Sessions []sessionSummary `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Sessions, 2)

	// Ascending key order; latest session saw both subjects.
	assert.Equal(t, "2024-01-05T10:00:00Z", body.Sessions[0].Key)
	assert.Equal(t, "2024-01-06T10:00:00Z", body.Sessions[1].Key)
	assert.Equal(t, 1, body.Sessions[0].Subjects)
	assert.Equal(t, 2, body.Sessions[1].Subjects)

	// Both sessions expose the same parameter digest.
	assert.NotEmpty(t, body.Sessions[0].AnalysisKey)
	assert.Equal(t, body.Sessions[0].AnalysisKey, body.Sessions[1].AnalysisKey)
}

func TestServer_SessionDetail(t *testing.T) {
	srv := New("127.0.0.1", 0, WithJournal(seedJournal(t)))

	t.Run("known key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/2024-01-06T10:00:00Z", nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var body planResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Contains(t, body.Session.Subjects, "subj02")
	})

	t.Run("unknown key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/2020-01-01T00:00:00Z", nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServer_Plan(t *testing.T) {
	t.Run("returns latest session", func(t *testing.T) {
		srv := New("127.0.0.1", 0, WithJournal(seedJournal(t)))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/plan", nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var body planResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "2024-01-06T10:00:00Z", body.Key)
		assert.Len(t, body.Session.Subjects, 2)
	})

	t.Run("missing journal", func(t *testing.T) {
		srv := New("127.0.0.1", 0, WithJournal(filepath.Join(t.TempDir(), journal.Filename)))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/plan", nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusNotFound, rec.Code)

		var body ErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "NOT_FOUND", body.Error.Code)
	})

	t.Run("no journal configured", func(t *testing.T) {
		srv := New("127.0.0.1", 0)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/plan", nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRecovery(t *testing.T) {
	srv := New("127.0.0.1", 0)

	t.Run("no panic passes through", func(t *testing.T) {
		handler := srv.recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("success"))
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "success", rec.Body.String())
	})

	t.Run("panic becomes JSON 500", func(t *testing.T) {
		handler := srv.recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		rec := httptest.NewRecorder()

		assert.NotPanics(t, func() {
			handler.ServeHTTP(rec, req)
		})

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
		assert.Contains(t, body.Error.Message, "panic: test panic")
	})
}

func TestRequestID(t *testing.T) {
	t.Run("echoes incoming header", func(t *testing.T) {
		var seen string
		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = GetRequestID(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("X-Request-ID", "test-req-123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, "test-req-123", seen)
		assert.Equal(t, "test-req-123", rec.Header().Get("X-Request-ID"))
	})

	t.Run("generates one when absent", func(t *testing.T) {
		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	})
}
