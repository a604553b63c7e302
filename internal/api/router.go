package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ping", PingHandler)
	r.Handle("/metrics", app.Metrics.Handler())

	r.Route("/annotations", func(r chi.Router) {
		r.Post("/", app.CreateAnnotationHandler)
		r.Get("/", app.ListAnnotationsHandler)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", app.GetAnnotationHandler)
			r.Delete("/", app.DeleteAnnotationHandler)

			r.Get("/chart", app.ChartHandler)
			r.Get("/chart.png", app.ChartImageHandler)
			r.Get("/chart.svg", app.ChartImageHandler)
			r.Post("/chart/export", app.ExportChartHandler)
			r.Get("/chart/tooltip", app.TooltipHandler)
			r.Post("/chart/click", app.ClickHandler)

			r.Get("/position", app.PositionHandler)
			r.Get("/position/stream", app.PositionStreamHandler)
		})
	})

	r.Get("/exports/{name}", app.ServeExportHandler)

	return r
}
