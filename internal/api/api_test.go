package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shaiso/vibeweaver/internal/conductor"
	"github.com/shaiso/vibeweaver/internal/domain"
	"github.com/shaiso/vibeweaver/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	snaps map[uuid.UUID]scheduler.Snapshot
	order []uuid.UUID
	busy  bool
	panic bool
}

func (f *fakeSessions) Sessions() []uuid.UUID { return f.order }

func (f *fakeSessions) Snapshot(_ context.Context, id uuid.UUID) (scheduler.Snapshot, error) {
	if f.panic {
		panic("boom")
	}
	snap, ok := f.snaps[id]
	if !ok {
		return scheduler.Snapshot{}, fmt.Errorf("%w: %s", conductor.ErrSessionNotFound, id)
	}
	return snap, nil
}

func (f *fakeSessions) GPUBusy() bool { return f.busy }

func newTestServer(t *testing.T, sessions *fakeSessions) *httptest.Server {
	t.Helper()
	h := NewHandler(Config{Sessions: sessions, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string, into any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
	return resp.StatusCode
}

func TestListSessions(t *testing.T) {
	id := uuid.New()
	rule := domain.NewRule(id, domain.BeatTrigger(4), domain.PlayAction())
	sessions := &fakeSessions{
		snaps: map[uuid.UUID]scheduler.Snapshot{
			id: {SessionID: id, TempoBPM: 96, Rules: []domain.Rule{rule}},
		},
		// вторая сессия закрылась до Snapshot
		order: []uuid.UUID{id, uuid.New()},
	}
	srv := newTestServer(t, sessions)

	var body struct {
		Data  []SessionSummary `json:"data"`
		Total int              `json:"total"`
	}
	assert.Equal(t, http.StatusOK, get(t, srv.URL+"/api/v1/sessions", &body))
	assert.Equal(t, 1, body.Total)
	require.Len(t, body.Data, 1)
	assert.Equal(t, SessionSummary{SessionID: id, TempoBPM: 96, Rules: 1}, body.Data[0])
}

func TestGetSession(t *testing.T) {
	id := uuid.New()
	sessions := &fakeSessions{
		snaps: map[uuid.UUID]scheduler.Snapshot{id: {SessionID: id, TempoBPM: 120}},
		order: []uuid.UUID{id},
	}
	srv := newTestServer(t, sessions)

	var ok struct {
		Data scheduler.Snapshot `json:"data"`
	}
	assert.Equal(t, http.StatusOK, get(t, srv.URL+"/api/v1/sessions/"+id.String(), &ok))
	assert.Equal(t, id, ok.Data.SessionID)

	var errBody ErrorResponse
	assert.Equal(t, http.StatusNotFound, get(t, srv.URL+"/api/v1/sessions/"+uuid.NewString(), &errBody))
	assert.Equal(t, ErrCodeNotFound, errBody.Error.Code)

	assert.Equal(t, http.StatusBadRequest, get(t, srv.URL+"/api/v1/sessions/nope", &errBody))
	assert.Equal(t, ErrCodeBadRequest, errBody.Error.Code)
}

func TestGetGPU(t *testing.T) {
	srv := newTestServer(t, &fakeSessions{busy: true})

	var body struct {
		Data map[string]bool `json:"data"`
	}
	assert.Equal(t, http.StatusOK, get(t, srv.URL+"/api/v1/gpu", &body))
	assert.True(t, body.Data["busy"])
}

func TestRecovery(t *testing.T) {
	id := uuid.New()
	srv := newTestServer(t, &fakeSessions{panic: true, order: []uuid.UUID{id}})

	var errBody ErrorResponse
	assert.Equal(t, http.StatusInternalServerError, get(t, srv.URL+"/api/v1/sessions/"+id.String(), &errBody))
	assert.Equal(t, ErrCodeInternalError, errBody.Error.Code)
}
