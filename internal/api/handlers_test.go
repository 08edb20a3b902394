package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-watchparty/internal/config"
	"github.com/npezzotti/go-watchparty/internal/testutil"
	"github.com/npezzotti/go-watchparty/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSyncService struct {
	mock.Mock
}

func (m *mockSyncService) ServeConn(id string, conn *websocket.Conn) {
	m.Called(id, conn)
}

func (m *mockSyncService) RoomInfo(id string) (types.RoomInfo, bool) {
	args := m.Called(id)
	return args.Get(0).(types.RoomInfo), args.Bool(1)
}

func (m *mockSyncService) RoomCount() int {
	args := m.Called()
	return args.Int(0)
}

func (m *mockSyncService) ConnectionCount() int {
	args := m.Called()
	return args.Int(0)
}

func newTestApp(t *testing.T, cs SyncService) *WatchPartyApp {
	t.Helper()

	cfg, err := config.NewConfig("localhost:3001", []string{"http://localhost:3000"})
	require.NoError(t, err, "failed to create test config")

	return NewWatchPartyApp(http.NewServeMux(), testutil.TestLogger(t), cs, cfg)
}

func Test_health(t *testing.T) {
	cs := &mockSyncService{}
	defer cs.AssertExpectations(t)
	cs.On("RoomCount").Return(3)
	cs.On("ConnectionCount").Return(7)

	s := newTestApp(t, cs)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	s.health(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code, "expected 200 from health endpoint")

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp), "expected valid JSON body")
	assert.Equal(t, "ok", resp.Status, "expected ok status")
	assert.Equal(t, 3, resp.ActiveRooms, "expected active room count")
	assert.Equal(t, 7, resp.ActiveUsers, "expected active user count")
	assert.False(t, resp.Timestamp.IsZero(), "expected a timestamp")
}

func Test_getRoom(t *testing.T) {
	t.Run("returns room info", func(t *testing.T) {
		cs := &mockSyncService{}
		defer cs.AssertExpectations(t)
		cs.On("RoomInfo", "movie-night").Return(types.RoomInfo{
			Id:        "movie-night",
			UserCount: 2,
			Users: []types.RoomUser{
				{Name: "alice", IsHost: true},
				{Name: "bob", IsHost: false},
			},
		}, true)

		s := newTestApp(t, cs)

		req := httptest.NewRequest(http.MethodGet, "/api/rooms/movie-night", nil)
		req.SetPathValue("roomId", "movie-night")
		rr := httptest.NewRecorder()
		s.getRoom(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected 200 for existing room")

		var info types.RoomInfo
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&info), "expected valid JSON body")
		assert.Equal(t, "movie-night", info.Id, "expected room id")
		assert.Equal(t, 2, info.UserCount, "expected user count")
		require.Len(t, info.Users, 2, "expected both users")
		assert.True(t, info.Users[0].IsHost, "expected host flag preserved")
	})

	t.Run("room not found", func(t *testing.T) {
		cs := &mockSyncService{}
		defer cs.AssertExpectations(t)
		cs.On("RoomInfo", "missing").Return(types.RoomInfo{}, false)

		s := newTestApp(t, cs)

		req := httptest.NewRequest(http.MethodGet, "/api/rooms/missing", nil)
		req.SetPathValue("roomId", "missing")
		rr := httptest.NewRecorder()
		s.getRoom(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code, "expected 404 for unknown room")

		var apiErr ApiError
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&apiErr), "expected error body")
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode, "expected status code in body")
	})

	t.Run("missing room id", func(t *testing.T) {
		cs := &mockSyncService{}
		s := newTestApp(t, cs)

		req := httptest.NewRequest(http.MethodGet, "/api/rooms/", nil)
		rr := httptest.NewRecorder()
		s.getRoom(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected 400 for empty room id")
	})
}

func Test_serveWs_httpRequest(t *testing.T) {
	// a plain GET without an upgrade handshake must not reach the sync
	// server
	cs := &mockSyncService{}
	defer cs.AssertExpectations(t)

	s := newTestApp(t, cs)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rr := httptest.NewRecorder()
	s.serveWs(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code, "expected 400 for a non-websocket request")
	cs.AssertNotCalled(t, "ServeConn", mock.Anything, mock.Anything)
}
