package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Matcher crosses the best bid against the best ask of a single book.
type Matcher struct {
	book *OrderBook
	now  func() time.Time
}

func NewMatcher(book *OrderBook) *Matcher {
	return &Matcher{
		book: book,
		now:  time.Now,
	}
}

func (m *Matcher) Book() *OrderBook {
	return m.book
}

// Match runs one matching pass: it keeps crossing the front orders of the
// best bid and best ask levels until one side is empty or the best bid is
// below the best ask. The book is locked for the whole pass, so the returned
// trades describe an uninterrupted sequence of fills.
func (m *Matcher) Match() []Trade {
	ob := m.book
	ob.mu.Lock()
	defer ob.mu.Unlock()

	var trades []Trade
	for {
		bidLevel, hasBid := ob.bestLevel(SideBuy)
		askLevel, hasAsk := ob.bestLevel(SideSell)
		if !hasBid || !hasAsk || bidLevel.Price.LessThan(askLevel.Price) {
			break
		}

		if trade, ok := m.cross(bidLevel.Orders[0], askLevel.Orders[0]); ok {
			trades = append(trades, trade)
		}

		ob.pruneFront(SideBuy)
		ob.pruneFront(SideSell)
	}

	return trades
}

// cross fills both orders by the smaller remaining quantity at the ask's
// limit price. Orders that reached the book with nothing left to fill
// produce no trade; pruneFront drops them.
func (m *Matcher) cross(bid, ask *Order) (Trade, bool) {
	quantity := min(bid.RemainingQuantity(), ask.RemainingQuantity())
	if quantity <= 0 {
		return Trade{}, false
	}
	price := ask.Price

	bid.fill(quantity)
	ask.fill(quantity)

	log.Debug().
		Str("buy_order_id", bid.ID).
		Str("sell_order_id", ask.ID).
		Str("price", price.String()).
		Int64("quantity", quantity).
		Msg("Orders matched")

	return Trade{
		TradeID:   uuid.New().String(),
		BuyOrder:  bid,
		SellOrder: ask,
		Price:     price,
		Quantity:  quantity,
		Timestamp: m.now(),
	}, true
}
