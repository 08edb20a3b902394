package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"
)

type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	ActiveRooms int       `json:"activeRooms"`
	ActiveUsers int       `json:"activeUsers"`
}

func (s *WatchPartyApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *WatchPartyApp) health(w http.ResponseWriter, r *http.Request) {
	s.writeJson(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		Timestamp:   time.Now().UTC(),
		ActiveRooms: s.cs.RoomCount(),
		ActiveUsers: s.cs.ConnectionCount(),
	})
}

func (s *WatchPartyApp) getRoom(w http.ResponseWriter, r *http.Request) {
	roomId := r.PathValue("roomId")
	if roomId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	info, ok := s.cs.RoomInfo(roomId)
	if !ok {
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, info)
}

func (s *WatchPartyApp) serveWs(w http.ResponseWriter, r *http.Request) {
	connId, err := shortid.Generate()
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	s.cs.ServeConn(connId, conn)
}
