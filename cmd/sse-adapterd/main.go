// Command sse-adapterd runs the SSE protocol adapter: an HTTP front
// door backed by a Postgres route table, bridging subscriber requests
// to application-side event streams.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ssegate.io/internal/bufpool"
	"ssegate.io/internal/httpfront"
	"ssegate.io/internal/ids"
	"ssegate.io/internal/migrate"
	"ssegate.io/internal/obs"
	"ssegate.io/internal/router"
	"ssegate.io/internal/sse"
)

var version = "0.1.0"

const maxFrameSize = 4096

func main() {
	obs.Init()
	obs.InitSSE()
	obs.InitBuildInfo(version, os.Getenv("GIT_COMMIT"))

	dsn := os.Getenv("SSE_ROUTE_DSN")
	if dsn == "" {
		log.Fatal("SSE_ROUTE_DSN is required")
	}
	rtr, err := router.Open(dsn)
	if err != nil {
		log.Fatalf("open route table: %v", err)
	}

	if dir := os.Getenv("SSE_MIGRATIONS_DIR"); dir != "" {
		mgr := migrate.NewManager(rtr.DB(), dir, "")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := mgr.Up(ctx); err != nil {
			cancel()
			log.Fatalf("apply migrations: %v", err)
		}
		cancel()
	}

	config := sse.Config{
		ChallengeEventType: os.Getenv("SSE_CHALLENGE_EVENT_TYPE"),
	}
	if comment := os.Getenv("SSE_INITIAL_COMMENT"); comment != "" {
		config.InitialComment = []byte(comment)
	}

	supplier := ids.New()
	pool := bufpool.New(maxFrameSize, 256)
	correlations := sse.NewCorrelations()
	factory := sse.NewFactory(rtr, supplier, pool, correlations, config, obs.SSEMetrics{})

	handler := httpfront.NewHandler(factory, rtr, supplier)

	addr := os.Getenv("SSE_LISTEN_ADDR")
	if addr == "" {
		addr = ":8090"
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", obs.Handler())
	mux.Handle("/", handler)

	srv := &http.Server{
		Addr:              addr,
		Handler:           obs.Instrument(mux),
		ReadHeaderTimeout: 15 * time.Second,
		// No WriteTimeout: SSE connections are long-lived.
		IdleTimeout: 5 * time.Minute,
	}

	log.Printf("Starting sse-adapterd %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	_ = rtr.Close()
	log.Println("Stopped")
}
