package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"limit-venue/src/engine"
)

// TradeEvent is the wire form of a trade on the trades topic.
type TradeEvent struct {
	TradeID     string `json:"trade_id"`
	BuyOrderID  string `json:"buy_order_id"`
	SellOrderID string `json:"sell_order_id"`
	Price       string `json:"price"`
	Quantity    int64  `json:"quantity"`
	Timestamp   int64  `json:"timestamp"` // unix timestamp in milliseconds
}

func NewTradeEvent(t engine.Trade) TradeEvent {
	return TradeEvent{
		TradeID:     t.TradeID,
		BuyOrderID:  t.BuyOrder.ID,
		SellOrderID: t.SellOrder.ID,
		Price:       t.Price.String(),
		Quantity:    t.Quantity,
		Timestamp:   t.Timestamp.UnixMilli(),
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher streams executed trades to Kafka, one batch per matching pass.
type Publisher struct {
	writer messageWriter
	topic  string
}

func New(brokers []string, topic string) *Publisher {
	return newWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
	}, topic)
}

func newWithWriter(w messageWriter, topic string) *Publisher {
	return &Publisher{writer: w, topic: topic}
}

func (p *Publisher) ConsumeTrades(ctx context.Context, trades []engine.Trade) error {
	msgs := make([]kafka.Message, 0, len(trades))
	for _, t := range trades {
		value, err := json.Marshal(NewTradeEvent(t))
		if err != nil {
			return fmt.Errorf("encode trade %s: %w", t.TradeID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(t.TradeID),
			Value: value,
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		log.Error().
			Err(err).
			Str("topic", p.topic).
			Int("trades", len(trades)).
			Msg("Failed to publish trades")
		return fmt.Errorf("publish %d trades to %s: %w", len(trades), p.topic, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
