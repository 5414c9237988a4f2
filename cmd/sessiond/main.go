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
	"gradia.org/internal/config"
	"gradia.org/internal/httpapi"
	"gradia.org/internal/obs"
	"gradia.org/internal/session"
	"gradia.org/internal/svcauth"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo("sessiond", version, commit)

	cfg, err := config.Load(":8081")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var (
		db           *sql.DB
		sessionStore session.Store
		auditStore   audit.Store
	)
	if cfg.Database.DSN != "" {
		db, err = sql.Open("pgx", cfg.Database.DSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		sessionStore = session.NewPGStore(db)
		auditStore = audit.NewPGStore(db)
	} else {
		log.Println("no DSN configured, using in-memory stores")
		sessionStore = session.NewMemoryStore()
		auditStore = audit.NewMemoryStore()
	}

	recorder := audit.NewRecorder(auditStore, "sessiond", cfg.Authz.AuditQueueSize)

	sessions, err := session.NewService(sessionStore,
		session.WithTTL(cfg.Session.TTL),
		session.WithRecorder(recorder),
	)
	if err != nil {
		log.Fatalf("session service: %v", err)
	}
	stopJanitor := sessions.StartCacheJanitor(time.Minute)

	verifier, err := svcauth.New(cfg.ServiceAuth.Secret, cfg.ServiceAuth.Issuer, cfg.ServiceAuth.TTL)
	if err != nil {
		log.Fatalf("service auth: %v", err)
	}

	api := httpapi.NewSessionAPI(sessions, httpapi.ReadyProbe{DB: db}, version)
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpapi.Wrap(api.Mux(), verifier, cfg.HTTP.RateBurst, cfg.HTTP.RatePerSec, cfg.HTTP.MaxBody),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting sessiond %s on %s", version, srv.Addr)
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
