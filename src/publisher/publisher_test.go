package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"limit-venue/src/engine"
)

type fakeWriter struct {
	msgs   []kafka.Message
	calls  int
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.calls++
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func trades(t *testing.T) []engine.Trade {
	t.Helper()
	book := engine.NewOrderBook()
	require.NoError(t, book.AddOrder(engine.NewOrder("B1", engine.SideBuy, decimal.RequireFromString("100.0"), 10)))
	require.NoError(t, book.AddOrder(engine.NewOrder("S1", engine.SideSell, decimal.RequireFromString("99.5"), 4)))
	require.NoError(t, book.AddOrder(engine.NewOrder("S2", engine.SideSell, decimal.RequireFromString("99.75"), 4)))
	out := engine.NewMatcher(book).Match()
	require.Len(t, out, 2)
	return out
}

func TestPublisherWritesOneBatchPerPass(t *testing.T) {
	w := &fakeWriter{}
	p := newWithWriter(w, "venue.trades")

	executed := trades(t)
	require.NoError(t, p.ConsumeTrades(context.Background(), executed))

	assert.Equal(t, 1, w.calls)
	require.Len(t, w.msgs, 2)
	assert.Equal(t, executed[0].TradeID, string(w.msgs[0].Key))

	var event TradeEvent
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &event))
	assert.Equal(t, "B1", event.BuyOrderID)
	assert.Equal(t, "S2", event.SellOrderID)
	assert.Equal(t, "99.75", event.Price)
	assert.Equal(t, int64(4), event.Quantity)
	assert.Equal(t, executed[1].Timestamp.UnixMilli(), event.Timestamp)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublisherReportsWriteFailure(t *testing.T) {
	brokerDown := errors.New("broker down")
	p := newWithWriter(&fakeWriter{err: brokerDown}, "venue.trades")

	err := p.ConsumeTrades(context.Background(), trades(t))
	assert.ErrorIs(t, err, brokerDown)
}
