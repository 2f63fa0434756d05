package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", app.HomeHandler)
	r.Get("/health", app.HealthHandler)
	r.Get("/status", app.StatusHandler)
	r.Post("/analyze", app.AnalyzeHandler)
	r.Post("/crawler/trigger", app.TriggerCrawlerHandler)
	r.Get("/video/*", app.MetadataHandler)
	r.Get("/runs", app.RunsHandler)
	r.Handle("/metrics", promhttp.Handler())

	if app.Hub != nil {
		r.Get("/ws/events", app.Hub.ServeWS)
	}

	return r
}
