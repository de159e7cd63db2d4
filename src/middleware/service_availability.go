package middleware

import (
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// ServiceAvailability answers 503 while the venue is in maintenance or
// already serving maxInFlight requests. /health is never turned away.
type ServiceAvailability struct {
	maintenance atomic.Bool
	maxInFlight int64 // 0 means unlimited
	inFlight    atomic.Int64
}

func NewServiceAvailability(maintenance bool, maxInFlight int64) *ServiceAvailability {
	sa := &ServiceAvailability{maxInFlight: maxInFlight}
	sa.maintenance.Store(maintenance)

	log.Info().
		Bool("maintenance", maintenance).
		Int64("max_in_flight", maxInFlight).
		Msg("Service availability guard configured")
	return sa
}

func (sa *ServiceAvailability) SetMaintenanceMode(enabled bool) {
	sa.maintenance.Store(enabled)
	log.Warn().Bool("maintenance", enabled).Msg("Maintenance mode changed")
}

func (sa *ServiceAvailability) IsMaintenanceMode() bool {
	return sa.maintenance.Load()
}

func (sa *ServiceAvailability) InFlightRequests() int64 {
	return sa.inFlight.Load()
}

func unavailable(c *fiber.Ctx, reason string) error {
	log.Warn().
		Str("method", c.Method()).
		Str("path", c.Path()).
		Str("ip", c.IP()).
		Str("reason", reason).
		Msg("Request rejected: service unavailable")
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": "Service unavailable: " + reason,
	})
}

func (sa *ServiceAvailability) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Path() == "/health" {
			return c.Next()
		}
		if sa.maintenance.Load() {
			return unavailable(c, "venue under maintenance")
		}

		n := sa.inFlight.Add(1)
		defer sa.inFlight.Add(-1)
		if sa.maxInFlight > 0 && n > sa.maxInFlight {
			return unavailable(c, "venue overloaded")
		}
		return c.Next()
	}
}
