// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/villeneuve-games/fortyone/internal/auth"
	"github.com/villeneuve-games/fortyone/internal/cache"
	"github.com/villeneuve-games/fortyone/internal/database"
	"github.com/villeneuve-games/fortyone/internal/handlers"
	"github.com/villeneuve-games/fortyone/internal/middleware"
)

const (
	sweepInterval = 1 * time.Minute
	idleAfter     = 30 * time.Minute
	purgeInterval = 1 * time.Minute
)

func main() {
	auth.Init()

	logger := logrus.New()
	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logrus.DebugLevel)
	}

	if os.Getenv("PG_HOST") != "" {
		database.ConnectDB()
		defer database.DB.Close()
	} else {
		logger.Warn("PG_HOST not set, running without persistence")
	}

	if err := cache.ConnectRedis(); err != nil {
		logger.Warnf("running without achievements queue: %v", err)
		cache.Rdb = nil
	}

	srv := handlers.NewGameServer(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Background maintenance is owned by the process, not by any session.
	go srv.Sessions.RunSweeper(ctx, srv.Orch, sweepInterval, idleAfter, logger)
	go srv.Resume.RunPurger(ctx, purgeInterval)

	mux := http.NewServeMux()
	// The WS endpoint hijacks the connection and logs its own lifecycle, so it
	// stays outside the request-logging wrapper.
	mux.Handle("/ws", http.HandlerFunc(handlers.GameWSHandler(logger, srv)))
	mux.Handle("/", middleware.LogMiddleware(logger)(srv))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Infof("Running on %s", addr)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		log.Fatalf("server exited: %v", err)
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
}
