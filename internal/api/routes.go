package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tripdispatch/internal/metrics"
)

// Routes builds the HTTP handler for the whole service.
func (s *Server) Routes() http.Handler {
	metrics.RegisterDefault()

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(s.logMiddleware)
	mux.Use(middleware.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.Cfg.AllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Tenant-Id", "X-Role", "X-Driver-Id", "X-User-Id"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	mux.Use(middleware.Heartbeat("/ping"))

	mux.Get("/healthz", s.HealthHandler)
	mux.Get("/readyz", s.ReadyHandler)
	mux.Get("/debug/vars", s.DebugJSON)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	mux.Route("/v1", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.rateLimit)

		r.Route("/trips", func(r chi.Router) {
			r.Get("/", s.listTrips)
			r.Post("/", s.createTrip)
			r.Route("/{tripID}", func(r chi.Router) {
				r.Get("/", s.getTrip)
				r.Put("/", s.updateTrip)
				r.Delete("/", s.deleteTrip)
				r.Put("/assign", s.assignTrip)
				r.Put("/transfer", s.transferTrip)
				r.Put("/status", s.updateTripStatus)
				r.Get("/photos", s.listPhotos)
				r.Post("/photos", s.recordPhotos)
				r.Delete("/photos/{photoID}", s.deletePhoto)
			})
		})

		r.Route("/drivers", func(r chi.Router) {
			r.Get("/", s.listDrivers)
			r.Post("/", s.createDriver)
			r.Get("/me", s.getMe)
			r.Put("/me/status", s.setMyStatus)
			r.Put("/me/location", s.setMyLocation)
			r.Route("/{driverID}", func(r chi.Router) {
				r.Get("/", s.getDriver)
				r.Put("/", s.updateDriver)
				r.Delete("/", s.deleteDriver)
				r.Put("/status", s.setDriverStatus)
			})
		})

		r.Get("/events/stream", s.streamEvents)
		r.Get("/events/ws", s.eventsWS)
	})
	return mux
}
