// Command gatewayd runs the plugin engine's HTTP boundary: it loads
// config, brings up every configured plugin, and serves the reverse-proxy
// and operational endpoints until signaled to stop. Grounded on
// apps/backend/cmd/api/main.go in the teacher: the same
// signal.NotifyContext-driven graceful shutdown, generalized from the
// gateway's own http.Server lifecycle to this engine's Manager lifecycle
// running alongside it.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/latchmesh/pluginchain/internal/config"
	"github.com/latchmesh/pluginchain/internal/manager"
	"github.com/latchmesh/pluginchain/internal/plugins/denylist"
	"github.com/latchmesh/pluginchain/internal/plugins/jwtauth"
	"github.com/latchmesh/pluginchain/internal/plugins/ratelimiter"
	"github.com/latchmesh/pluginchain/internal/plugins/regexmatch"
	"github.com/latchmesh/pluginchain/internal/server"
	"github.com/latchmesh/pluginchain/internal/store"
	"github.com/latchmesh/pluginchain/internal/transport"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to configuration file")
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	_ = godotenv.Load()

	logger := log.New(os.Stdout, "pluginchain: ", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	mgr := manager.New(logger)
	mgr.RegisterFactory(regexmatch.Factory{})
	mgr.RegisterFactory(denylist.Factory{})
	mgr.RegisterFactory(jwtauth.Factory{})
	mgr.RegisterFactory(ratelimiter.Factory{})

	ctx := context.Background()

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		db, err := store.Open(ctx, dsn)
		if err != nil {
			logger.Fatalf("failed to connect to database: %v", err)
		}
		defer db.Close()
		mgr.SetViolationStore(store.NewViolationStore(db))
		logger.Println("violation persistence enabled")
	} else {
		logger.Println("DATABASE_URL not set, violations will not be persisted")
	}

	if err := mgr.Initialize(ctx, cfg); err != nil {
		logger.Fatalf("failed to initialize plugin manager: %v", err)
	}

	hub := transport.NewHub(logger)
	srv := server.New(mgr, hub, server.CORSConfig{
		AllowOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
	})

	httpServer := &http.Server{
		Addr:    *addr,
		Handler: srv.Handler(),
	}

	done := make(chan bool, 1)
	go gracefulShutdown(httpServer, mgr, logger, done)

	logger.Printf("listening on %s", *addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("http server error: %v", err)
	}

	<-done
	logger.Println("graceful shutdown complete")
}

func gracefulShutdown(httpServer *http.Server, mgr *manager.Manager, logger *log.Logger, done chan bool) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Println("shutting down gracefully, press Ctrl+C again to force")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http server forced to shutdown: %v", err)
	}

	if err := mgr.Shutdown(shutdownCtx); err != nil {
		logger.Printf("plugin manager shutdown error: %v", err)
	}

	done <- true
}
