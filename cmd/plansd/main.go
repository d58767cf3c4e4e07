package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/RobinAyzit/share-plans-done-together/internal/api"
	"github.com/RobinAyzit/share-plans-done-together/internal/auth"
	"github.com/RobinAyzit/share-plans-done-together/internal/config"
	"github.com/RobinAyzit/share-plans-done-together/internal/friends"
	"github.com/RobinAyzit/share-plans-done-together/internal/invite"
	"github.com/RobinAyzit/share-plans-done-together/internal/metrics"
	"github.com/RobinAyzit/share-plans-done-together/internal/notify"
	"github.com/RobinAyzit/share-plans-done-together/internal/plan"
	"github.com/RobinAyzit/share-plans-done-together/internal/store"
	"github.com/RobinAyzit/share-plans-done-together/internal/store/mongo"
	"github.com/RobinAyzit/share-plans-done-together/internal/store/postgres"
	"github.com/RobinAyzit/share-plans-done-together/internal/sweeper"
	"github.com/RobinAyzit/share-plans-done-together/pkg/logger"
)

func main() {
	// Local development convenience; a missing .env file is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l := logger.New(cfg.LogLevel)
	l.Info("Starting share-plans server...")

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		l.Info("Received shutdown signal...")
		cancel()
	}()

	// Document store
	var st store.Store
	switch cfg.StoreDriver {
	case "postgres":
		pg, err := postgres.New(cfg.DatabaseURL, l)
		if err != nil {
			l.Fatalf("Failed to connect to database: %v", err)
		}
		if err := pg.Migrate("migrations"); err != nil {
			l.Fatalf("Failed to run migrations: %v", err)
		}
		st = pg
	default:
		mg, err := mongo.New(ctx, cfg.MongoURI, cfg.MongoDatabase, l)
		if err != nil {
			l.Fatalf("Failed to connect to mongodb: %v", err)
		}
		st = mg
	}
	defer st.Close(context.Background())

	// Firebase: token verification plus push messaging. The credential
	// variable holds either a path to the service account file or the JSON
	// itself.
	creds := []byte(cfg.FirebaseCreds)
	if fileCreds, err := os.ReadFile(cfg.FirebaseCreds); err == nil {
		creds = fileCreds
	}
	app, err := auth.NewFirebaseApp(ctx, creds)
	if err != nil {
		l.Fatalf("Failed to initialize firebase: %v", err)
	}
	verifier, err := auth.NewFirebaseVerifier(ctx, app)
	if err != nil {
		l.Fatalf("Failed to initialize token verifier: %v", err)
	}

	var push notify.PushSender
	if cfg.PushEnabled {
		sender, err := notify.NewFCMSender(ctx, app)
		if err != nil {
			l.Fatalf("Failed to initialize push sender: %v", err)
		}
		push = sender
	} else {
		l.Warn("Push delivery disabled, notifications go to the inbox only")
	}

	// Service layer
	notifier := notify.NewDispatcher(st, push, l)
	authSvc := auth.New(st, verifier, l)
	planSvc := plan.New(st, notifier, l)
	inviteSvc := invite.New(st, l)
	friendsSvc := friends.New(st, notifier, l)

	// Recurrence sweeper
	sw := sweeper.New(st, planSvc, l, cfg.SweepInterval)
	go sw.Run(ctx)

	// Metrics endpoint
	metricsServer := &http.Server{
		Addr:    ":" + cfg.PrometheusPort,
		Handler: metrics.Handler(),
	}
	go func() {
		l.Infof("Metrics server listening on :%s", cfg.PrometheusPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Errorf("Metrics server error: %v", err)
		}
	}()

	// HTTP API
	apiServer := api.NewServer(authSvc, planSvc, inviteSvc, friendsSvc, st, l)
	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: apiServer.Handler(),
	}

	go func() {
		l.Infof("HTTP server listening on :%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Errorf("HTTP server error: %v", err)
		}
	}()

	l.Info("share-plans server started successfully")

	<-ctx.Done()

	l.Info("Shutting down HTTP server...")
	httpServer.Close()
	metricsServer.Close()

	l.Info("share-plans server stopped")
}
