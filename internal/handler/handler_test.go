package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/milenrab97/battleships/internal/events"
	"github.com/milenrab97/battleships/internal/game"
	"github.com/milenrab97/battleships/internal/handler"
	"github.com/milenrab97/battleships/internal/lobby"
	"github.com/milenrab97/battleships/internal/session"
	"github.com/milenrab97/battleships/internal/storage"
	"github.com/milenrab97/battleships/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	reg     *lobby.Registry
	hub     *session.Hub
	results storage.ResultStore
	routes  http.Handler
}

func setup(t *testing.T, results storage.ResultStore) *testServer {
	t.Helper()
	log := logger.Discard()
	reg := lobby.NewRegistry(lobby.DefaultConfig(), log)
	hub := session.NewHub(reg, session.Config{}, log)
	reg.SetNotifier(hub)
	t.Cleanup(hub.Stop)
	t.Cleanup(func() { reg.Stop(context.Background()) })

	if results == nil {
		results = storage.NewMemoryStore(0)
	}
	return &testServer{
		reg:     reg,
		hub:     hub,
		results: results,
		routes:  handler.NewHandler(reg, hub, results, log).Routes(),
	}
}

func (s *testServer) get(t *testing.T, path string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.routes.ServeHTTP(w, req)

	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

// brokenStore 永遠失敗的結果存儲
type brokenStore struct{}

var errBroken = errors.New("connection refused")

func (brokenStore) Record(context.Context, events.GameResult) error { return errBroken }
func (brokenStore) Recent(context.Context, int) ([]events.GameResult, error) {
	return nil, errBroken
}
func (brokenStore) Totals(context.Context) (storage.Totals, error) { return storage.Totals{}, errBroken }
func (brokenStore) Ping(context.Context) error                   { return errBroken }

func TestHandler_Health(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		s := setup(t, nil)
		status, body := s.get(t, "/health")
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("store down", func(t *testing.T) {
		s := setup(t, brokenStore{})
		status, body := s.get(t, "/health")
		assert.Equal(t, http.StatusServiceUnavailable, status)
		assert.Equal(t, "degraded", body["status"])
		assert.Equal(t, "unavailable", body["store"])
	})
}

func TestHandler_GetRoom(t *testing.T) {
	s := setup(t, nil)
	actor, err := s.reg.CreateRoom("alice", "Alice")
	require.NoError(t, err)

	status, body := s.get(t, "/api/v1/rooms/"+strings.ToLower(actor.Code()))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, actor.Code(), body["room_code"])
	assert.Equal(t, string(game.PhaseLobby), body["phase"])
	players, ok := body["players"].([]any)
	require.True(t, ok)
	require.Len(t, players, 1)
	assert.Equal(t, "Alice", players[0].(map[string]any)["name"])
	assert.NotContains(t, body, "own_board")

	status, body = s.get(t, "/api/v1/rooms/ZZZZZZ")
	assert.Equal(t, http.StatusNotFound, status)
	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "NOT_FOUND", errBody["code"])
}

func TestHandler_Results(t *testing.T) {
	store := storage.NewMemoryStore(0)
	ctx := context.Background()
	for _, code := range []string{"AAAAAA", "BBBBBB", "CCCCCC"} {
		require.NoError(t, store.Record(ctx, events.GameResult{RoomCode: code, Reason: "all_sunk", Shots: 30}))
	}
	s := setup(t, store)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantCount  float64
	}{
		{"default limit", "", http.StatusOK, 3},
		{"explicit limit", "?limit=2", http.StatusOK, 2},
		{"zero", "?limit=0", http.StatusBadRequest, 0},
		{"too large", "?limit=1000", http.StatusBadRequest, 0},
		{"not a number", "?limit=abc", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := s.get(t, "/api/v1/results"+tt.query)
			assert.Equal(t, tt.wantStatus, status)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantCount, body["count"])
				first := body["results"].([]any)[0].(map[string]any)
				assert.Equal(t, "CCCCCC", first["room_code"])
			}
		})
	}

	t.Run("store down", func(t *testing.T) {
		broken := setup(t, brokenStore{})
		status, body := broken.get(t, "/api/v1/results")
		assert.Equal(t, http.StatusServiceUnavailable, status)
		assert.Equal(t, "UNAVAILABLE", body["error"].(map[string]any)["code"])
	})
}

func TestHandler_Stats(t *testing.T) {
	store := storage.NewMemoryStore(0)
	require.NoError(t, store.Record(context.Background(),
		events.GameResult{RoomCode: "AAAAAA", Reason: "forfeit_leave", Shots: 12}))
	s := setup(t, store)

	_, err := s.reg.CreateRoom("alice", "Alice")
	require.NoError(t, err)

	status, body := s.get(t, "/stats")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["rooms"])
	assert.Equal(t, float64(1), body["players"])
	assert.Equal(t, float64(1), body["by_phase"].(map[string]any)["LOBBY"])

	results := body["results"].(map[string]any)
	assert.Equal(t, float64(1), results["games"])
	assert.Equal(t, float64(12), results["shots"])

	// 存儲失敗時仍返回即時統計
	broken := setup(t, brokenStore{})
	status, body = broken.get(t, "/stats")
	assert.Equal(t, http.StatusOK, status)
	assert.NotContains(t, body, "results")
}

func TestHandler_WebSocketThroughMiddleware(t *testing.T) {
	s := setup(t, nil)
	srv := httptest.NewServer(s.routes)
	defer srv.Close()

	ws, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer ws.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.NoError(t, ws.WriteJSON(map[string]any{
		"type":       session.MsgCreateRoom,
		"request_id": "1",
		"data":       session.CreateRoomData{PlayerName: "Alice"},
	}))
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))

	var reply struct {
		Success bool                 `json:"success"`
		Data    session.CreatedReply `json:"data"`
	}
	require.NoError(t, ws.ReadJSON(&reply))
	require.True(t, reply.Success)

	status, body := s.get(t, "/api/v1/rooms/"+reply.Data.RoomCode)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, reply.Data.RoomCode, body["room_code"])

	_, body = s.get(t, "/stats")
	assert.Equal(t, float64(1), body["connections"])
	assert.Equal(t, float64(1), body["sessions"])
}

func TestHandler_UnknownRoute(t *testing.T) {
	s := setup(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	w := httptest.NewRecorder()
	s.routes.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
