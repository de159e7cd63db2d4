package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"limit-venue/src/engine"
)

const deliveryTimeout = 10 * time.Second

// TradeConsumer receives the trades of every matching pass that produced any.
type TradeConsumer interface {
	ConsumeTrades(ctx context.Context, trades []engine.Trade) error
}

type Options struct {
	MaxOrderSize  int64
	MinPrice      decimal.Decimal
	MatchInterval time.Duration
	LatencyWindow int
	VerifyBook    bool
}

// Server owns one book and its matcher. It validates orders before they reach
// the book and runs matching passes on a fixed interval between Start and Stop.
type Server struct {
	opts      Options
	book      *engine.OrderBook
	matcher   *engine.Matcher
	consumers []TradeConsumer
	stats     *stats

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(opts Options, consumers ...TradeConsumer) *Server {
	if opts.MatchInterval <= 0 {
		opts.MatchInterval = 100 * time.Millisecond
	}
	book := engine.NewOrderBook()
	return &Server{
		opts:      opts,
		book:      book,
		matcher:   engine.NewMatcher(book),
		consumers: consumers,
		stats:     newStats(opts.LatencyWindow),
	}
}

func (s *Server) Book() *engine.OrderBook {
	return s.book
}

func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start launches the matching loop. Starting a running server is a no-op.
// A loop still draining after a timed-out Stop is waited for first.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	prev := s.done
	s.mu.Unlock()

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	log.Info().
		Dur("match_interval", s.opts.MatchInterval).
		Int64("max_order_size", s.opts.MaxOrderSize).
		Str("min_price", s.opts.MinPrice.String()).
		Msg("Starting matching loop")

	go s.matchingLoop(loopCtx, s.done)
	return nil
}

// Stop cancels the matching loop and waits for the pass in flight to finish,
// or for ctx to expire. Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	log.Info().Msg("Stopping matching loop...")
	cancel()

	select {
	case <-done:
		log.Info().Msg("Matching loop stopped")
		return nil
	case <-ctx.Done():
		log.Warn().Msg("Timeout exceeded waiting for matching loop")
		return ctx.Err()
	}
}

func (s *Server) matchingLoop(ctx context.Context, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		if s.done == done {
			s.running = false
		}
		s.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(s.opts.MatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Matching loop cancelled")
			return
		case <-ticker.C:
			s.RunPass(ctx)
		}
	}
}

// RunPass runs one matching pass and hands its trades to the consumers.
func (s *Server) RunPass(ctx context.Context) []engine.Trade {
	start := time.Now()
	trades := s.matcher.Match()
	s.stats.recordPass(time.Since(start), len(trades))

	if s.opts.VerifyBook {
		if err := s.book.Verify(); err != nil {
			panic(fmt.Sprintf("order book inconsistent after matching pass: %v", err))
		}
	}

	if len(trades) == 0 {
		return nil
	}

	log.Info().
		Int("trades", len(trades)).
		Msgf("Executed %d trades", len(trades))

	// the book already reflects these trades, so delivery outlives a Stop
	deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
	defer cancel()

	for _, consumer := range s.consumers {
		if err := consumer.ConsumeTrades(deliverCtx, trades); err != nil {
			log.Error().
				Err(err).
				Str("consumer", fmt.Sprintf("%T", consumer)).
				Int("trades", len(trades)).
				Msg("Trade consumer failed")
		}
	}
	return trades
}

// SubmitOrder validates order against the venue limits and rests it in the
// book. Matching happens on the next pass.
func (s *Server) SubmitOrder(order *engine.Order) error {
	if err := s.validate(order); err != nil {
		s.stats.ordersRejected.Add(1)
		log.Warn().
			Err(err).
			Str("order_id", order.ID).
			Msg("Order rejected")
		return err
	}

	if err := s.book.AddOrder(order); err != nil {
		s.stats.ordersRejected.Add(1)
		log.Warn().
			Err(err).
			Str("order_id", order.ID).
			Msg("Order rejected")
		return err
	}

	s.stats.ordersAccepted.Add(1)
	log.Info().
		Str("order_id", order.ID).
		Str("side", string(order.Side)).
		Str("price", order.Price.String()).
		Int64("quantity", order.Quantity).
		Msg("Order accepted")
	return nil
}

// CancelOrder removes a resting order. It returns engine.ErrOrderNotFound for
// ids that are not resting, including orders already filled.
func (s *Server) CancelOrder(orderID string) (*engine.Order, error) {
	order, err := s.book.CancelOrder(orderID)
	if err != nil {
		return nil, err
	}

	s.stats.ordersCancelled.Add(1)
	log.Info().
		Str("order_id", orderID).
		Int64("filled_quantity", order.FilledQuantity).
		Msg("Cancelled order")
	return order, nil
}

func (s *Server) validate(order *engine.Order) error {
	switch {
	case order.ID == "":
		return &ValidationError{Message: "Invalid order: id is required"}
	case !order.Side.Valid():
		return &ValidationError{Message: "Invalid order: side must be BUY or SELL"}
	case order.Quantity <= 0:
		return &ValidationError{Message: "Invalid order: quantity must be positive"}
	case !order.Price.IsPositive():
		return &ValidationError{Message: "Invalid order: price must be positive"}
	case order.Quantity > s.opts.MaxOrderSize:
		return &ValidationError{Message: fmt.Sprintf("Invalid order: quantity %d exceeds maximum size %d", order.Quantity, s.opts.MaxOrderSize)}
	case order.Price.LessThan(s.opts.MinPrice):
		return &ValidationError{Message: fmt.Sprintf("Invalid order: price %s below minimum %s", order.Price, s.opts.MinPrice)}
	}
	return nil
}

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsValidationError reports whether err was produced by order validation.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Stats returns a snapshot of the venue counters.
func (s *Server) Stats() Stats {
	return s.stats.snapshot(s.book.Len())
}

type Stats struct {
	OrdersAccepted  int64
	OrdersRejected  int64
	OrdersCancelled int64
	OrdersInBook    int64
	Passes          int64
	TradesExecuted  int64
	PassLatencyP50  time.Duration
	PassLatencyP99  time.Duration
	PassLatencyP999 time.Duration
	Uptime          time.Duration
}

type stats struct {
	startTime       time.Time
	ordersAccepted  atomic.Int64
	ordersRejected  atomic.Int64
	ordersCancelled atomic.Int64
	passes          atomic.Int64
	tradesExecuted  atomic.Int64
	latencies       *latencyWindow
}

func newStats(window int) *stats {
	return &stats{
		startTime: time.Now(),
		latencies: newLatencyWindow(window),
	}
}

func (st *stats) recordPass(latency time.Duration, trades int) {
	st.passes.Add(1)
	st.tradesExecuted.Add(int64(trades))
	st.latencies.record(latency)
}

func (st *stats) snapshot(ordersInBook int) Stats {
	p50, p99, p999 := st.latencies.percentiles()
	return Stats{
		OrdersAccepted:  st.ordersAccepted.Load(),
		OrdersRejected:  st.ordersRejected.Load(),
		OrdersCancelled: st.ordersCancelled.Load(),
		OrdersInBook:    int64(ordersInBook),
		Passes:          st.passes.Load(),
		TradesExecuted:  st.tradesExecuted.Load(),
		PassLatencyP50:  p50,
		PassLatencyP99:  p99,
		PassLatencyP999: p999,
		Uptime:          time.Since(st.startTime),
	}
}
