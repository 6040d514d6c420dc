package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandwichfarm/herdwatch/internal/models"
)

type staticBatch []models.Record

func (b staticBatch) Batch() []models.Record { return b }

func TestServerRoutes(t *testing.T) {
	m := NewMetrics()
	m.ObserveRoot()
	batch := staticBatch{{DisplayName: "bob", Pubkey: "bb", Kinds: []int{6}, Payouts: 0.1}}

	s := NewServer("127.0.0.1:0", m, batch, Discard())
	router := s.Router()

	t.Run("healthz", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("batch", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/batch", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var records []models.Record
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
		require.Len(t, records, 1)
		assert.Equal(t, "bob", records[0].DisplayName)
		assert.False(t, records[0].Notified)
	})

	t.Run("metrics", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "herdwatch_root_notes_total 1")
	})

	t.Run("method not allowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/batch", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestServerEmptyBatch(t *testing.T) {
	s := NewServer("127.0.0.1:0", nil, nil, Discard())

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/batch", nil))
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestServerStartStop(t *testing.T) {
	s := NewServer("127.0.0.1:0", NewMetrics(), staticBatch{}, Discard())
	require.NoError(t, s.Start())

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.NoError(t, s.Stop(context.Background()))
}

func TestServerDiagnostics(t *testing.T) {
	batch := staticBatch{{Pubkey: "a", Kinds: []int{6}, Payouts: 0.1}}
	s := NewServer("127.0.0.1:0", nil, batch, Discard())

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/diagnostics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s.SetDiagnostics(NewDiagnosticsCollector("dev", "unknown", nil, nil, batch))

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/diagnostics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Records: 1")

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/diagnostics?format=json", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var diag Diagnostics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &diag))
	assert.Equal(t, 1, diag.Attribution.Records)
}
