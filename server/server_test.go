package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/knotx-labs/knotx-relayer/core"
	"github.com/knotx-labs/knotx-relayer/server"
	"github.com/knotx-labs/knotx-relayer/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sepolia = core.ChainInfo{Name: "sepolia", NumericID: 11155111, Kind: core.ChainKindEVM}
	casper  = core.ChainInfo{Name: "casper-test", NumericID: 3, Kind: core.ChainKindCasper}
)

func seed(t *testing.T) (*memory.Store, []*core.CanonicalMessage) {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	var msgs []*core.CanonicalMessage
	for n := uint64(0); n < 3; n++ {
		msg := core.NewCanonicalMessage(sepolia, casper, n, []byte{1}, []byte{2}, []byte("hi"), now)
		_, inserted, err := st.InsertPending(ctx, core.NewPendingMessage(msg, now.Add(time.Duration(n)*time.Second)))
		require.NoError(t, err)
		require.True(t, inserted)
		msgs = append(msgs, msg)
	}
	require.NoError(t, st.CompleteMessage(ctx, core.SuccessOutcome(msgs[0].MessageID, "0xaa", now)))
	require.NoError(t, st.AdvanceCursor(ctx, sepolia.Name, 42))
	require.NoError(t, st.PutDeadLetter(ctx, &core.DeadLetter{Chain: casper.Name, Nonce: 7, Error: "short record"}))
	return st, msgs
}

func get(t *testing.T, srv http.Handler, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

func TestHealthz(t *testing.T) {
	st, _ := seed(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, get(t, server.NewAPIServer(st), "/healthz", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestListMessages(t *testing.T) {
	st, msgs := seed(t)
	srv := server.NewAPIServer(st)

	var all []core.PersistedMessage
	require.Equal(t, http.StatusOK, get(t, srv, "/api/v1/messages", &all))
	assert.Len(t, all, 3)

	var pending []core.PersistedMessage
	require.Equal(t, http.StatusOK, get(t, srv, "/api/v1/messages?status=PENDING&source=sepolia", &pending))
	require.Len(t, pending, 2)
	assert.Equal(t, msgs[1].MessageID, pending[0].MessageID)

	var page []core.PersistedMessage
	require.Equal(t, http.StatusOK, get(t, srv, "/api/v1/messages?limit=1&offset=2", &page))
	require.Len(t, page, 1)
	assert.Equal(t, msgs[2].MessageID, page[0].MessageID)

	var none []core.PersistedMessage
	require.Equal(t, http.StatusOK, get(t, srv, "/api/v1/messages?destination=sepolia", &none))
	assert.Empty(t, none)

	var errBody map[string]string
	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/api/v1/messages?status=LOST", &errBody))
	assert.Contains(t, errBody["error"], "LOST")
	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/api/v1/messages?limit=-1", nil))
}

func TestGetMessage(t *testing.T) {
	st, msgs := seed(t)
	srv := server.NewAPIServer(st)

	var m core.PersistedMessage
	require.Equal(t, http.StatusOK, get(t, srv, "/api/v1/messages/"+msgs[0].MessageID, &m))
	assert.Equal(t, core.StatusDelivered, m.Status)
	assert.Equal(t, "0xaa", m.TransactionHash)
	assert.Equal(t, []byte("hi"), m.Payload)

	assert.Equal(t, http.StatusNotFound, get(t, srv, "/api/v1/messages/0xdead", nil))
}

func TestStatsCursorsDeadLetters(t *testing.T) {
	st, _ := seed(t)
	srv := server.NewAPIServer(st)

	var stats struct {
		Counts map[string]int64 `json:"counts"`
		Total  int64            `json:"total"`
	}
	require.Equal(t, http.StatusOK, get(t, srv, "/api/v1/stats", &stats))
	assert.Equal(t, map[string]int64{"PENDING": 2, "DELIVERED": 1, "FAILED": 0}, stats.Counts)
	assert.EqualValues(t, 3, stats.Total)

	var cursors []core.ChainCursor
	require.Equal(t, http.StatusOK, get(t, srv, "/api/v1/cursors", &cursors))
	require.Len(t, cursors, 1)
	assert.Equal(t, sepolia.Name, cursors[0].ChainID)
	assert.EqualValues(t, 42, cursors[0].Position)

	var dls []core.DeadLetter
	require.Equal(t, http.StatusOK, get(t, srv, "/api/v1/deadletters?chain=casper-test&status=OPEN", &dls))
	require.Len(t, dls, 1)
	assert.EqualValues(t, 7, dls[0].Nonce)
	assert.Equal(t, "short record", dls[0].Error)

	require.Equal(t, http.StatusOK, get(t, srv, "/api/v1/deadletters?status=RESOLVED", &dls))
	assert.Empty(t, dls)
}

func TestListMessagesLimitIsBounded(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for n := uint64(0); n < server.MaxListLimit+50; n++ {
		msg := core.NewCanonicalMessage(sepolia, casper, n, []byte{1}, []byte{2}, []byte("hi"), now)
		_, _, err := st.InsertPending(ctx, core.NewPendingMessage(msg, now))
		require.NoError(t, err)
	}
	srv := server.NewAPIServer(st)

	for path, want := range map[string]int{
		"/api/v1/messages":            server.DefaultListLimit,
		"/api/v1/messages?limit=0":    server.DefaultListLimit,
		"/api/v1/messages?limit=5000": server.MaxListLimit,
		"/api/v1/messages?limit=7":    7,
	} {
		var page []core.PersistedMessage
		require.Equal(t, http.StatusOK, get(t, srv, path, &page), path)
		assert.Len(t, page, want, path)
	}
}
