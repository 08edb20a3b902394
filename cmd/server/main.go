package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/npezzotti/go-watchparty/internal/api"
	"github.com/npezzotti/go-watchparty/internal/config"
	"github.com/npezzotti/go-watchparty/internal/server"
	"github.com/npezzotti/go-watchparty/internal/stats"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	allowedOrigins stringSliceFlag
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:3001", "server address")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[watchparty] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	syncServer, err := server.NewSyncServer(logger, statsUpdater, cfg)
	if err != nil {
		logger.Fatal("new sync server:", err)
	}

	srv := api.NewWatchPartyApp(mux, logger, syncServer, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go syncServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down sync server...")
	if err := syncServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("sync server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
