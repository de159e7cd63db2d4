package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// clientWindow counts one client's requests in its current window.
type clientWindow struct {
	window int64
	count  int
}

// RateLimiter admits at most limit requests per client in each fixed window.
// Clients are identified by X-Forwarded-For, then X-Real-IP, then the peer IP.
type RateLimiter struct {
	limit   int
	window  time.Duration
	now     func() time.Time
	mu      sync.Mutex
	clients map[string]*clientWindow
	swept   int64 // last window idle clients were evicted in
}

// NewRateLimiter builds a limiter. Windows shorter than a second are raised
// to one second.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  max(window, time.Second),
		now:     time.Now,
		clients: make(map[string]*clientWindow),
	}
}

func clientKey(c *fiber.Ctx) string {
	for _, header := range []string{"X-Forwarded-For", "X-Real-IP"} {
		if v := c.Get(header); v != "" {
			return v
		}
	}
	return c.IP()
}

// Allow records a request from client and reports whether it fits the budget.
func (rl *RateLimiter) Allow(client string) bool {
	current := rl.now().Unix() / int64(rl.window/time.Second)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if current != rl.swept {
		rl.removeIdleClients(current)
	}

	cw, ok := rl.clients[client]
	if !ok {
		cw = &clientWindow{}
		rl.clients[client] = cw
	}
	if cw.window != current {
		cw.window, cw.count = current, 0
	}
	if cw.count >= rl.limit {
		return false
	}
	cw.count++
	return true
}

// removeIdleClients drops every client whose window has passed. It runs
// once per window, so the map holds only clients seen in the current one.
func (rl *RateLimiter) removeIdleClients(current int64) {
	for client, cw := range rl.clients {
		if cw.window < current {
			delete(rl.clients, client)
		}
	}
	rl.swept = current
}

func (rl *RateLimiter) Middleware() fiber.Handler {
	limitHeader := strconv.Itoa(rl.limit)
	windowHeader := rl.window.String()

	return func(c *fiber.Ctx) error {
		client := clientKey(c)
		if rl.Allow(client) {
			c.Set("X-RateLimit-Limit", limitHeader)
			c.Set("X-RateLimit-Window", windowHeader)
			return c.Next()
		}

		log.Warn().
			Str("client_ip", client).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("limit", rl.limit).
			Dur("window", rl.window).
			Msg("Rate limit exceeded")
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error": "Rate limit exceeded: too many requests, retry after the current window",
		})
	}
}
