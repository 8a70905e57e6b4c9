package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"datapipe/console/internal/catalog"
	"datapipe/console/internal/config"
	"datapipe/console/internal/settings"
)

func main() {
	configPath := flag.String("config", "", "path to console.conf")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("connect to redis: %v", err)
	}

	var store *settings.Store
	if cfg.SettingsDSN != "" {
		store, err = settings.Open(cfg.SettingsDSN)
		if err != nil {
			log.Fatalf("open settings store: %v", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			log.Printf("settings schema: %v", err)
		}
	}

	var cat *catalog.Catalog
	if cfg.CatalogDSN != "" {
		cat, err = catalog.Open(cfg.CatalogDSN)
		if err != nil {
			log.Fatalf("open catalog: %v", err)
		}
		defer cat.Close()
	}

	server := newServer(cfg, rdb, store, cat)
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.routes(),
		// No write timeout: /stream responses stay open for the lifetime
		// of the viewer connection.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Printf("websvc listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Fatalf("websvc failed: %v", err)
	}
	log.Printf("websvc shutdown")
}
