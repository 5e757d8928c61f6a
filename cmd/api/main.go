package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"starledger/internal/account"
	"starledger/internal/app"
	"starledger/internal/auth"
	"starledger/internal/catalog"
	"starledger/internal/channel"
	"starledger/internal/config"
	"starledger/internal/engine"
	"starledger/internal/history"
	"starledger/internal/ledger"
	"starledger/internal/localstore"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	local, err := localstore.Open(cfg.LocalDBPath)
	if err != nil {
		log.Fatalf("local store open failed: %v", err)
	}
	defer local.Close()

	// The history archive is optional: without DATABASE_URL, settlements
	// still happen but nothing is archived and /api/history reports it.
	var archive history.Archive = history.DisabledArchive{}
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		db, err := history.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("archive database connection failed: %v", err)
		}
		defer db.Close()
		if err := history.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
			log.Fatalf("archive migrations failed: %v", err)
		}
		archive = history.NewPostgresArchive(db)
	} else {
		log.Printf("WARNING: DATABASE_URL not set; history archive disabled")
	}

	var ch *channel.Channel
	if strings.TrimSpace(cfg.RedisURL) != "" {
		ch, err = channel.New(cfg.RedisURL, cfg.Room)
		if err != nil {
			log.Fatalf("realtime store connection failed: %v", err)
		}
	} else {
		log.Printf("WARNING: REDIS_URL not set; submissions and score sync disabled")
		ch = channel.NewUnconfigured(cfg.Room)
	}
	defer ch.Close()

	books := ledger.New(local, ch.Client(), cfg.Room)
	cat := catalog.NewService(local)
	eng := engine.New(cat, ch, ch, books, archive)
	tokens := auth.NewTokenService(cfg.TokenSecret, cfg.AccessTTL)
	accounts := account.NewService(local, tokens, books)
	if err := accounts.Bootstrap(cfg.AdminUsername, cfg.AdminPassword); err != nil {
		log.Printf("WARNING: admin bootstrap error (will retry on next restart): %v", err)
	}

	// Keep the in-memory snapshot warm for dedup and reject lookups.
	if sub, err := ch.Subscribe(ctx, nil); err != nil {
		log.Printf("WARNING: submission feed unavailable: %v", err)
	} else {
		defer sub.Unsubscribe()
	}

	service := app.NewService(cat, eng, accounts, books, ch, archive, local)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Starledger API listening on %s (room %s)", cfg.Addr, cfg.Room)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
