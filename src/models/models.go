package models

import "github.com/shopspring/decimal"

type SubmitOrderRequest struct {
	ID       string          `json:"id"` // optional, generated when empty
	Side     string          `json:"side"`
	Price    decimal.Decimal `json:"price"` // accepts "100.25" or 100.25
	Quantity int64           `json:"quantity"`
}

type OrderResponse struct {
	OrderID           string `json:"order_id"`
	Side              string `json:"side"`
	Price             string `json:"price"`
	Quantity          int64  `json:"quantity"`
	FilledQuantity    int64  `json:"filled_quantity"`
	RemainingQuantity int64  `json:"remaining_quantity"`
	Status            string `json:"status"`
	Timestamp         int64  `json:"timestamp"` // unix timestamp in milliseconds
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type OrderBookResponse struct {
	Timestamp int64            `json:"timestamp"` // unix timestamp in milliseconds
	Bids      []PriceLevelInfo `json:"bids"`      // sorted descending (highest first)
	Asks      []PriceLevelInfo `json:"asks"`      // sorted ascending (lowest first)
	BestBid   *string          `json:"best_bid"`
	BestAsk   *string          `json:"best_ask"`
}

type PriceLevelInfo struct {
	Price    string `json:"price"`
	Quantity int64  `json:"quantity"` // aggregated remaining quantity at this price
	Orders   int    `json:"orders"`
}

type HealthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Matching      bool   `json:"matching"`
	OrdersInBook  int64  `json:"orders_in_book"`
}

type MetricsResponse struct {
	OrdersAccepted    int64   `json:"orders_accepted"`
	OrdersRejected    int64   `json:"orders_rejected"`
	OrdersCancelled   int64   `json:"orders_cancelled"`
	OrdersInBook      int64   `json:"orders_in_book"`
	MatchingPasses    int64   `json:"matching_passes"`
	TradesExecuted    int64   `json:"trades_executed"`
	PassLatencyP50Ms  float64 `json:"pass_latency_p50_ms"`
	PassLatencyP99Ms  float64 `json:"pass_latency_p99_ms"`
	PassLatencyP999Ms float64 `json:"pass_latency_p999_ms"`
}
