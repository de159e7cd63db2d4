package handlers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"limit-venue/src/engine"
	"limit-venue/src/models"
	"limit-venue/src/server"
)

const (
	StatusAccepted    = "ACCEPTED"
	StatusPartialFill = "PARTIAL_FILL"
	StatusCancelled   = "CANCELLED"
)

type OrderHandler struct {
	Server       *server.Server
	DefaultDepth int
	MaxDepth     int
	StartTime    time.Time
}

func NewOrderHandler(srv *server.Server, defaultDepth, maxDepth int) *OrderHandler {
	if defaultDepth <= 0 {
		defaultDepth = 10
	}
	if maxDepth < defaultDepth {
		maxDepth = defaultDepth
	}
	return &OrderHandler{
		Server:       srv,
		DefaultDepth: defaultDepth,
		MaxDepth:     maxDepth,
		StartTime:    time.Now(),
	}
}

func (h *OrderHandler) SubmitOrder(c *fiber.Ctx) error {
	var req models.SubmitOrderRequest

	if err := c.BodyParser(&req); err != nil {
		log.Warn().
			Err(err).
			Str("ip", c.IP()).
			Str("path", c.Path()).
			Msg("Invalid request: malformed JSON")
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid request: malformed JSON",
		})
	}

	// unknown sides are rejected (and counted) by the server
	side, _ := engine.ParseSide(req.Side)

	orderID := req.ID
	if orderID == "" {
		orderID = uuid.New().String()
	}

	order := engine.NewOrder(orderID, side, req.Price, req.Quantity)
	// the matching loop owns order once it is in the book
	accepted := *order

	if err := h.Server.SubmitOrder(order); err != nil {
		switch {
		case server.IsValidationError(err):
			return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
				Error: err.Error(),
			})
		case errors.Is(err, engine.ErrDuplicateOrderID):
			return c.Status(fiber.StatusConflict).JSON(models.ErrorResponse{
				Error: "Order id already resting: " + orderID,
			})
		default:
			log.Error().
				Err(err).
				Str("order_id", orderID).
				Msg("Error submitting order")
			return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
				Error: "Internal server error",
			})
		}
	}

	log.Info().
		Str("order_id", orderID).
		Str("ip", c.IP()).
		Msg("Order submitted")

	return c.Status(fiber.StatusCreated).JSON(orderResponse(accepted, StatusAccepted))
}

func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	orderID := c.Params("id")

	order, err := h.Server.CancelOrder(orderID)
	if err != nil {
		if errors.Is(err, engine.ErrOrderNotFound) {
			log.Warn().
				Str("order_id", orderID).
				Str("ip", c.IP()).
				Msg("Cancel order: order not found")
			return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
				Error: "Order not found",
			})
		}
		return err
	}

	return c.Status(fiber.StatusOK).JSON(orderResponse(*order, StatusCancelled))
}

func (h *OrderHandler) GetOrderStatus(c *fiber.Ctx) error {
	order, ok := h.Server.Book().GetOrder(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: "Order not found",
		})
	}

	status := StatusAccepted
	if order.FilledQuantity > 0 {
		status = StatusPartialFill
	}
	return c.Status(fiber.StatusOK).JSON(orderResponse(order, status))
}

func (h *OrderHandler) GetOrderBook(c *fiber.Ctx) error {
	depth, err := strconv.Atoi(c.Query("depth", strconv.Itoa(h.DefaultDepth)))
	if err != nil || depth <= 0 {
		depth = h.DefaultDepth
	}

	// edge case: enforce maximum depth limit
	if depth > h.MaxDepth {
		depth = h.MaxDepth
	}

	book := h.Server.Book()
	bidLevels, askLevels := book.Snapshot(depth)

	resp := models.OrderBookResponse{
		Timestamp: time.Now().UnixMilli(),
		Bids:      levelInfo(bidLevels),
		Asks:      levelInfo(askLevels),
	}
	if len(bidLevels) > 0 {
		best := bidLevels[0].Price.String()
		resp.BestBid = &best
	}
	if len(askLevels) > 0 {
		best := askLevels[0].Price.String()
		resp.BestAsk = &best
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *OrderHandler) HealthCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(models.HealthResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.StartTime).Seconds()),
		Matching:      h.Server.Running(),
		OrdersInBook:  int64(h.Server.Book().Len()),
	})
}

func (h *OrderHandler) Metrics(c *fiber.Ctx) error {
	stats := h.Server.Stats()

	return c.Status(fiber.StatusOK).JSON(models.MetricsResponse{
		OrdersAccepted:    stats.OrdersAccepted,
		OrdersRejected:    stats.OrdersRejected,
		OrdersCancelled:   stats.OrdersCancelled,
		OrdersInBook:      stats.OrdersInBook,
		MatchingPasses:    stats.Passes,
		TradesExecuted:    stats.TradesExecuted,
		PassLatencyP50Ms:  millis(stats.PassLatencyP50),
		PassLatencyP99Ms:  millis(stats.PassLatencyP99),
		PassLatencyP999Ms: millis(stats.PassLatencyP999),
	})
}

func orderResponse(order engine.Order, status string) models.OrderResponse {
	return models.OrderResponse{
		OrderID:           order.ID,
		Side:              string(order.Side),
		Price:             order.Price.String(),
		Quantity:          order.Quantity,
		FilledQuantity:    order.FilledQuantity,
		RemainingQuantity: order.RemainingQuantity(),
		Status:            status,
		Timestamp:         order.Timestamp.UnixMilli(),
	}
}

func levelInfo(levels []engine.OrderBookSnapshot) []models.PriceLevelInfo {
	out := make([]models.PriceLevelInfo, 0, len(levels))
	for _, level := range levels {
		out = append(out, models.PriceLevelInfo{
			Price:    level.Price.String(),
			Quantity: level.Quantity,
			Orders:   level.Orders,
		})
	}
	return out
}

func millis(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}
