package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"opsdesk.org/internal/auth"
	"opsdesk.org/internal/directory"
	"opsdesk.org/internal/httpapi"
	"opsdesk.org/internal/obs"
	"opsdesk.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	secret := os.Getenv("OPSDESK_AUTH_SECRET")
	if secret == "" {
		log.Fatal("OPSDESK_AUTH_SECRET is required")
	}

	issuerOpts := []auth.IssuerOption{}
	if ttl := envDuration("OPSDESK_ACCESS_TTL"); ttl > 0 {
		issuerOpts = append(issuerOpts, auth.WithAccessTTL(ttl))
	}
	if ttl := envDuration("OPSDESK_REFRESH_TTL"); ttl > 0 {
		issuerOpts = append(issuerOpts, auth.WithRefreshTTL(ttl))
	}
	issuer, err := auth.NewIssuer(secret, issuerOpts...)
	if err != nil {
		log.Fatalf("issuer: %v", err)
	}

	throttle := auth.DefaultThrottlePolicy()
	if n := envInt("OPSDESK_ACCOUNT_LOCK_THRESHOLD"); n > 0 {
		throttle.AccountThreshold = n
	}
	if n := envInt("OPSDESK_SOURCE_LOCK_THRESHOLD"); n > 0 {
		throttle.SourceThreshold = n
	}
	if d := envDuration("OPSDESK_ACCOUNT_LOCK_WINDOW"); d > 0 {
		throttle.AccountWindow = d
	}
	if d := envDuration("OPSDESK_SOURCE_LOCK_WINDOW"); d > 0 {
		throttle.SourceWindow = d
	}

	// Full persistence when a DSN is configured; in-memory dev mode
	// otherwise.
	var (
		authStore auth.Store
		dir       directory.Service
		probe     httpapi.ReadyProbe
		closeFn   = func() {}
	)
	if dsn := os.Getenv("OPSDESK_PG_DSN"); dsn != "" {
		pgDir, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		authStore = auth.NewPGStore(pgDir.DB())
		dir = pgDir
		probe = httpapi.ReadyProbe{DB: pgDir.DB()}
		closeFn = func() { _ = pgDir.Close() }
	} else {
		log.Print("OPSDESK_PG_DSN not set, using in-memory stores")
		authStore = auth.NewMemoryStore()
		dir = directory.NewInMemory()
	}

	svc, err := auth.NewService(authStore, issuer, auth.WithThrottle(throttle))
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	api := httpapi.New(probe, version, svc, httpapi.DefaultRequirements(), dir)

	addr := os.Getenv("OPSDESK_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting opsdesk-api %s on %s", version, srv.Addr)
	obs.SetReady(true)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	closeFn()
	log.Println("Stopped")
}

func envDuration(name string) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Fatalf("%s: %v", name, err)
	}
	return d
}

func envInt(name string) int {
	raw := os.Getenv(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Fatalf("%s: %v", name, err)
	}
	return n
}
