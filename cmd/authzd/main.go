package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"gradia.org/internal/audit"
	"gradia.org/internal/authz"
	"gradia.org/internal/config"
	"gradia.org/internal/httpapi"
	"gradia.org/internal/obs"
	"gradia.org/internal/svcauth"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo("authzd", version, commit)

	cfg, err := config.Load(":8082")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var (
		db         *sql.DB
		authzStore authz.Store
		auditStore audit.Store
	)
	if cfg.Database.DSN != "" {
		db, err = sql.Open("pgx", cfg.Database.DSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		authzStore = authz.NewPGStore(db)
		auditStore = audit.NewPGStore(db)
	} else {
		log.Println("no DSN configured, using in-memory stores")
		authzStore = authz.NewMemoryStore()
		auditStore = audit.NewMemoryStore()
	}

	recorder := audit.NewRecorder(auditStore, "authzd", cfg.Authz.AuditQueueSize)

	engine, err := authz.NewEngine(authzStore,
		authz.WithPolicyCacheTTL(cfg.Authz.PolicyCacheTTL),
		authz.WithRecorder(recorder),
	)
	if err != nil {
		log.Fatalf("authz engine: %v", err)
	}
	stopJanitor := engine.StartCacheJanitor(time.Minute)

	verifier, err := svcauth.New(cfg.ServiceAuth.Secret, cfg.ServiceAuth.Issuer, cfg.ServiceAuth.TTL)
	if err != nil {
		log.Fatalf("service auth: %v", err)
	}

	api := httpapi.NewAuthzAPI(engine, auditStore, httpapi.ReadyProbe{DB: db}, version)
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpapi.Wrap(api.Mux(), verifier, cfg.HTTP.RateBurst, cfg.HTTP.RatePerSec, cfg.HTTP.MaxBody),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting authzd %s on %s", version, srv.Addr)
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
	stopJanitor()
	recorder.Close()
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
