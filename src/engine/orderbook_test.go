package engine_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"limit-venue/src/engine"
)

func px(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestOrderBookAddOrder(t *testing.T) {
	book := engine.NewOrderBook()

	order := engine.NewOrder("B1", engine.SideBuy, px("100.0"), 10)
	require.NoError(t, book.AddOrder(order))

	retrieved, ok := book.GetOrder("B1")
	require.True(t, ok)
	assert.Equal(t, "B1", retrieved.ID)
	assert.Equal(t, 1, book.Len())

	orders := book.OrdersAt(engine.SideBuy, px("100"))
	require.Len(t, orders, 1)
	assert.Equal(t, "B1", orders[0].ID)
	assert.NoError(t, book.Verify())
}

func TestOrderBookRejectsDuplicateID(t *testing.T) {
	book := engine.NewOrderBook()
	require.NoError(t, book.AddOrder(engine.NewOrder("X", engine.SideBuy, px("100"), 10)))

	// same id on the other side is still a duplicate
	err := book.AddOrder(engine.NewOrder("X", engine.SideSell, px("105"), 3))
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrDuplicateOrderID))

	assert.Equal(t, 1, book.Len())
	_, _, hasAsk := book.BestAsk()
	assert.False(t, hasAsk)
	assert.Empty(t, book.OrdersAt(engine.SideSell, px("105")))

	resting, ok := book.GetOrder("X")
	require.True(t, ok)
	assert.Equal(t, engine.SideBuy, resting.Side)
	assert.Equal(t, int64(10), resting.Quantity)
	assert.NoError(t, book.Verify())
}

func TestOrderBookBestBidAsk(t *testing.T) {
	book := engine.NewOrderBook()

	_, _, ok := book.BestBid()
	assert.False(t, ok, "empty book has no best bid")
	_, _, ok = book.BestAsk()
	assert.False(t, ok, "empty book has no best ask")

	require.NoError(t, book.AddOrder(engine.NewOrder("B1", engine.SideBuy, px("100.0"), 10)))
	require.NoError(t, book.AddOrder(engine.NewOrder("B2", engine.SideBuy, px("101.0"), 10)))
	require.NoError(t, book.AddOrder(engine.NewOrder("B3", engine.SideBuy, px("101.00"), 5)))
	require.NoError(t, book.AddOrder(engine.NewOrder("S1", engine.SideSell, px("102.0"), 10)))
	require.NoError(t, book.AddOrder(engine.NewOrder("S2", engine.SideSell, px("103.0"), 10)))

	price, qty, ok := book.BestBid()
	require.True(t, ok)
	assert.True(t, price.Equal(px("101")), "got %s", price)
	assert.Equal(t, int64(15), qty, "101.0 and 101.00 share one level")

	price, qty, ok = book.BestAsk()
	require.True(t, ok)
	assert.True(t, price.Equal(px("102")), "got %s", price)
	assert.Equal(t, int64(10), qty)
}

func TestOrderBookCancelOrder(t *testing.T) {
	book := engine.NewOrderBook()
	order := engine.NewOrder("S1", engine.SideSell, px("100.0"), 10)
	require.NoError(t, book.AddOrder(order))

	cancelled, err := book.CancelOrder("S1")
	require.NoError(t, err)
	assert.Same(t, order, cancelled)
	assert.Equal(t, "S1", cancelled.ID)
	assert.Equal(t, engine.SideSell, cancelled.Side)
	assert.True(t, cancelled.Price.Equal(px("100")))
	assert.Equal(t, int64(10), cancelled.Quantity)
	assert.Equal(t, int64(0), cancelled.FilledQuantity)

	_, ok := book.GetOrder("S1")
	assert.False(t, ok)
	assert.Empty(t, book.OrdersAt(engine.SideSell, px("100")))
	_, _, hasAsk := book.BestAsk()
	assert.False(t, hasAsk, "emptied level must be deleted")

	// second cancel of the same id
	_, err = book.CancelOrder("S1")
	assert.True(t, errors.Is(err, engine.ErrOrderNotFound))
	assert.NoError(t, book.Verify())
}

func TestOrderBookCancelUnknown(t *testing.T) {
	book := engine.NewOrderBook()
	_, err := book.CancelOrder("nope")
	assert.ErrorIs(t, err, engine.ErrOrderNotFound)
}

func TestOrderBookCancelKeepsLevelFIFO(t *testing.T) {
	book := engine.NewOrderBook()
	for _, id := range []string{"B1", "B2", "B3"} {
		require.NoError(t, book.AddOrder(engine.NewOrder(id, engine.SideBuy, px("100"), 1)))
	}

	_, err := book.CancelOrder("B2")
	require.NoError(t, err)

	orders := book.OrdersAt(engine.SideBuy, px("100"))
	require.Len(t, orders, 2)
	assert.Equal(t, "B1", orders[0].ID)
	assert.Equal(t, "B3", orders[1].ID)

	// a resubmitted order goes to the back of the queue
	require.NoError(t, book.AddOrder(engine.NewOrder("B2", engine.SideBuy, px("100"), 1)))
	orders = book.OrdersAt(engine.SideBuy, px("100"))
	require.Len(t, orders, 3)
	assert.Equal(t, "B2", orders[2].ID)
	assert.NoError(t, book.Verify())
}

func TestOrderBookCancelThenReaddSameID(t *testing.T) {
	book := engine.NewOrderBook()
	require.NoError(t, book.AddOrder(engine.NewOrder("B1", engine.SideBuy, px("100.0"), 5)))
	_, err := book.CancelOrder("B1")
	require.NoError(t, err)
	assert.NoError(t, book.AddOrder(engine.NewOrder("B1", engine.SideBuy, px("100.0"), 5)))
	assert.Equal(t, 1, book.Len())
}

func TestOrderBookSnapshot(t *testing.T) {
	book := engine.NewOrderBook()
	require.NoError(t, book.AddOrder(engine.NewOrder("B1", engine.SideBuy, px("100.50"), 100)))
	require.NoError(t, book.AddOrder(engine.NewOrder("B2", engine.SideBuy, px("100.40"), 200)))
	require.NoError(t, book.AddOrder(engine.NewOrder("B3", engine.SideBuy, px("100.50"), 50)))
	require.NoError(t, book.AddOrder(engine.NewOrder("S1", engine.SideSell, px("100.60"), 150)))
	require.NoError(t, book.AddOrder(engine.NewOrder("S2", engine.SideSell, px("100.70"), 250)))

	bids, asks := book.Snapshot(10)
	require.Len(t, bids, 2)
	assert.True(t, bids[0].Price.Equal(px("100.50")))
	assert.Equal(t, int64(150), bids[0].Quantity)
	assert.Equal(t, 2, bids[0].Orders)
	assert.True(t, bids[1].Price.Equal(px("100.40")))

	require.Len(t, asks, 2)
	assert.True(t, asks[0].Price.Equal(px("100.60")))
	assert.True(t, asks[1].Price.Equal(px("100.70")))

	bids, asks = book.Snapshot(1)
	assert.Len(t, bids, 1)
	assert.Len(t, asks, 1)

	bids, asks = book.Snapshot(-1)
	assert.Empty(t, bids)
	assert.Empty(t, asks)
}

func TestOrderBookReturnsCopies(t *testing.T) {
	book := engine.NewOrderBook()
	require.NoError(t, book.AddOrder(engine.NewOrder("B1", engine.SideBuy, px("100"), 10)))

	got, _ := book.GetOrder("B1")
	got.FilledQuantity = 10

	orders := book.OrdersAt(engine.SideBuy, px("100"))
	orders[0].FilledQuantity = 10

	again, _ := book.GetOrder("B1")
	assert.Equal(t, int64(0), again.FilledQuantity)
	assert.NoError(t, book.Verify())
}

func TestParseSide(t *testing.T) {
	side, ok := engine.ParseSide(" sell ")
	assert.True(t, ok)
	assert.Equal(t, engine.SideSell, side)

	side, ok = engine.ParseSide("hold")
	assert.False(t, ok)
	assert.False(t, side.Valid())
}
