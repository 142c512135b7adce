package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/adwski/roomchat/backend/model"
	"github.com/adwski/roomchat/backend/server/http/mocks"
	"github.com/adwski/roomchat/backend/service"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestServer(t *testing.T) (*Server, *mocks.MockRoomService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockRoomService(ctrl)
	logger := zerolog.Nop()
	return NewServer(Config{
		Logger:      &logger,
		RoomService: svc,
		ListenAddr:  ":0",
	}), svc
}

func TestServer_ListRooms(t *testing.T) {
	req := require.New(t)
	srv, svc := newTestServer(t)

	svc.EXPECT().Rooms().Return([]service.RoomSummary{
		{ID: "General", Members: 2},
		{ID: "C Group", Members: 0},
	})

	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))

	req.Equal(http.StatusOK, w.Code)
	req.Equal("application/json", w.Header().Get("Content-Type"))
	req.JSONEq(`{"data":[{"id":"General","members":2},{"id":"C Group","members":0}]}`, w.Body.String())
}

func TestServer_ListMembers(t *testing.T) {
	req := require.New(t)
	srv, svc := newTestServer(t)

	svc.EXPECT().Members("Readers Chat").Return([]model.Identity{"alice", "bob"})

	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/rooms/Readers%20Chat/members", nil))

	req.Equal(http.StatusOK, w.Code)
	var resp struct {
		Data model.ActiveUsersPayload `json:"data"`
	}
	req.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	req.Equal("Readers Chat", resp.Data.Room)
	req.Equal([]model.Identity{"alice", "bob"}, resp.Data.Users)
}

func TestServer_ListMembers_NotFound(t *testing.T) {
	req := require.New(t)
	srv, svc := newTestServer(t)

	svc.EXPECT().Members("empty").Return(nil)

	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/rooms/empty/members", nil))

	req.Equal(http.StatusNotFound, w.Code)
	req.JSONEq(`{"error":"room not found"}`, w.Body.String())
}

func TestServer_CORS(t *testing.T) {
	req := require.New(t)
	srv, _ := newTestServer(t)

	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/rooms", nil))

	req.Equal(http.StatusNoContent, w.Code)
	req.Equal("*", w.Header().Get("Access-Control-Allow-Origin"))
}
