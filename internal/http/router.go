package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/merchpit/internal/idempotency"
	"github.com/robertarktes/merchpit/internal/observability"
	"github.com/robertarktes/merchpit/internal/rateLimit"
)

type RouterConfig struct {
	JWTSecret   string
	UserRate    int
	IPRate      int
	RateLimiter *rateLimit.RateLimiter
	Idempotency *idempotency.Idempotency
	Logger      observability.Logger
}

func SetupRouter(h *Handlers, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(cfg.Logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(JWTMiddleware(cfg.JWTSecret))
		r.Use(RateLimitMiddleware(cfg.RateLimiter, cfg.UserRate, cfg.IPRate))
		r.Use(IdempotencyMiddleware(cfg.Idempotency, cfg.Logger))

		r.Get("/v1/products/{id}", h.GetProduct)
		r.Get("/v1/merchants/{id}/products", h.ListMerchantProducts)
		r.Get("/v1/merchants/{id}/events", h.ListMerchantEvents)
		r.Get("/v1/events", h.ListEvents)
		r.Get("/v1/events/nearby", h.ListNearbyEvents)
		r.Get("/v1/events/{id}", h.GetEvent)
		r.Get("/v1/events/{id}/products", h.ListEventProducts)

		r.Get("/v1/orders", h.ListOrders)
		r.Get("/v1/orders/{id}", h.GetOrder)
		r.Get("/v1/orders/{id}/pickup-code.png", h.PickupCodeQR)
		r.Post("/v1/orders/{id}/cancel", h.CancelOrder)

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(RoleFan))
			r.Post("/v1/checkout", h.Checkout)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(RoleMerchant, RoleAdmin))
			r.Delete("/v1/events/{id}", h.DeleteEvent)
			r.Get("/v1/merchants/{id}/orders", h.ListMerchantOrders)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(RoleMerchant))
			r.Post("/v1/products", h.CreateProduct)
			r.Put("/v1/products/{id}", h.UpdateProduct)
			r.Put("/v1/products/{id}/inventory", h.SetInventory)
			r.Put("/v1/products/{id}/image", h.UploadProductImage)
			r.Post("/v1/events", h.CreateEvent)
			r.Put("/v1/events/{id}", h.UpdateEvent)
			r.Put("/v1/events/{id}/image", h.UploadEventImage)
			r.Post("/v1/pickups/scan", h.ScanPickup)
		})
	})

	return r
}
