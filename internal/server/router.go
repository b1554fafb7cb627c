// Package server assembles the HTTP router.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"

	"github.com/filedrop/service/internal/config"
	"github.com/filedrop/service/internal/files"
	appMiddleware "github.com/filedrop/service/internal/middleware"

	_ "github.com/filedrop/service/docs/swagger"
)

// NewRouter mounts the gateway endpoints and one read-only route per public subdir.
func NewRouter(cfg *config.Config, h *files.Handler, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger(log))
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Get("/", h.Root)
	r.Post("/upload", h.Upload)
	r.Get("/delete", h.Delete)

	for _, subdir := range cfg.Subdirs() {
		r.Get("/"+subdir+"/*", h.Serve(subdir))
		r.Head("/"+subdir+"/*", h.Serve(subdir))
	}

	return r
}
