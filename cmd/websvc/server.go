package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"datapipe/console/internal/bus"
	"datapipe/console/internal/catalog"
	"datapipe/console/internal/config"
	"datapipe/console/internal/queue"
	"datapipe/console/internal/settings"
)

// server holds the handles behind the console API. settings and catalog are
// optional collaborators; handlers degrade to empty responses when they are
// absent or failing.
type server struct {
	cfg      config.Config
	bus      *bus.Bus
	queue    *queue.Client
	settings *settings.Store
	catalog  *catalog.Catalog
}

func newServer(cfg config.Config, rdb *redis.Client, store *settings.Store, cat *catalog.Catalog) *server {
	return &server{
		cfg:      cfg,
		bus:      bus.New(rdb),
		queue:    queue.New(rdb, cfg.Queue, "", cfg.ClaimTimeout),
		settings: store,
		catalog:  cat,
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/task", s.handleSubmit)
	r.Get("/stream", s.handleStream)
	r.Get("/settings", s.handleSettings)
	r.Get("/databases", s.handleDatabases)
	r.Get("/tables", s.handleTables)
	r.Get("/dates", s.handleDates)
	r.Get("/count", s.handleCount)
	return r
}
