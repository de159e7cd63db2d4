package routes

import (
	"github.com/gofiber/fiber/v2"

	"limit-venue/src/config"
	"limit-venue/src/handlers"
	"limit-venue/src/middleware"
)

// Endpoints lists the registered routes for the start-up log.
var Endpoints = []string{
	"POST   /api/v1/orders",
	"DELETE /api/v1/orders/:id",
	"GET    /api/v1/orders/:id",
	"GET    /api/v1/orderbook",
	"GET    /health",
	"GET    /metrics",
}

func SetupRoutes(app *fiber.App, orderHandler *handlers.OrderHandler, cfg config.Settings) *middleware.ServiceAvailability {
	serviceAvailability := middleware.NewServiceAvailability(cfg.MaintenanceOn, cfg.MaxConcurrent)
	app.Use(serviceAvailability.Middleware())
	app.Use(middleware.RequestLogger(cfg.RequestLogging))

	api := app.Group("/api/v1")

	if !cfg.RateLimit.Disabled {
		rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
		api.Use(rateLimiter.Middleware())
	}

	api.Post("/orders", orderHandler.SubmitOrder)
	api.Delete("/orders/:id", orderHandler.CancelOrder)
	api.Get("/orders/:id", orderHandler.GetOrderStatus)
	api.Get("/orderbook", orderHandler.GetOrderBook)

	app.Get("/health", orderHandler.HealthCheck)
	app.Get("/metrics", orderHandler.Metrics)

	return serviceAvailability
}
