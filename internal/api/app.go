package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-watchparty/internal/config"
	"github.com/npezzotti/go-watchparty/internal/types"
)

// SyncService is the surface of the sync server the HTTP app needs:
// the websocket attach point and the read-only query operations.
type SyncService interface {
	ServeConn(id string, conn *websocket.Conn)
	RoomInfo(id string) (types.RoomInfo, bool)
	RoomCount() int
	ConnectionCount() int
}

type WatchPartyApp struct {
	log            *log.Logger
	mux            *http.Server
	cs             SyncService
	allowedOrigins []string
}

func NewWatchPartyApp(mux *http.ServeMux, logger *log.Logger, cs SyncService, cfg *config.Config) *WatchPartyApp {
	s := &WatchPartyApp{
		log:            logger,
		cs:             cs,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /api/rooms/{roomId}", s.getRoom)
	mux.HandleFunc("GET /ws", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *WatchPartyApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *WatchPartyApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
