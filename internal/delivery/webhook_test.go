package delivery

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandwichfarm/herdwatch/internal/config"
	"github.com/sandwichfarm/herdwatch/internal/models"
	"github.com/sandwichfarm/herdwatch/internal/ops"
)

func sampleRecords() []models.Record {
	return []models.Record{
		{DisplayName: "bob", EventID: "r1", Kinds: []int{6}, Pubkey: "bb", Nprofile: "nprofile1x", LUD16: "b@x.com", Payouts: 0.1},
		{DisplayName: "Anon", EventID: "r1", Kinds: []int{9735}, Pubkey: "cc", Nprofile: "nprofile1y", LUD16: "c@x.com", Payouts: 0.5},
	}
}

func TestDeliver(t *testing.T) {
	var (
		mu   sync.Mutex
		got  []map[string]any
		reqs int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, err := uuid.Parse(r.Header.Get("X-Request-ID"))
		assert.NoError(t, err)

		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		defer mu.Unlock()
		reqs++
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	wh := New(&config.Webhook{URL: srv.URL, TimeoutMs: 1000}, ops.Discard())
	defer wh.Close()

	require.NoError(t, wh.Deliver(context.Background(), sampleRecords()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, reqs)
	require.Len(t, got, 2)
	assert.Equal(t, "bob", got[0]["display_name"])
	assert.Equal(t, false, got[0]["notified"])
	assert.Equal(t, []any{float64(9735)}, got[1]["kinds"])
	assert.Equal(t, 0.5, got[1]["payouts"])
	assert.Equal(t, "", got[1]["nip05"])
}

func TestDeliverNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	wh := New(&config.Webhook{URL: srv.URL, TimeoutMs: 1000}, ops.Discard())
	err := wh.Deliver(context.Background(), sampleRecords())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestDeliverTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	wh := New(&config.Webhook{URL: srv.URL, TimeoutMs: 50}, ops.Discard())

	start := time.Now()
	err := wh.Deliver(context.Background(), sampleRecords())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDeliverEmpty(t *testing.T) {
	wh := New(&config.Webhook{URL: "http://127.0.0.1:1"}, ops.Discard())
	assert.ErrorIs(t, wh.Deliver(context.Background(), nil), ErrEmptyBatch)
}
