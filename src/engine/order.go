package engine

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// Valid reports whether s is one of the two sides.
func (s OrderSide) Valid() bool {
	return s == SideBuy || s == SideSell
}

// ParseSide normalizes s to upper case and reports whether it names a side.
func ParseSide(s string) (OrderSide, bool) {
	side := OrderSide(strings.ToUpper(strings.TrimSpace(s)))
	return side, side.Valid()
}

// Order is a plain limit order. Only FilledQuantity changes after creation,
// and only the matcher changes it.
type Order struct {
	ID             string
	Side           OrderSide
	Price          decimal.Decimal
	Quantity       int64
	FilledQuantity int64
	Timestamp      time.Time
}

type Trade struct {
	TradeID   string
	BuyOrder  *Order
	SellOrder *Order
	Price     decimal.Decimal
	Quantity  int64
	Timestamp time.Time
}

// PriceLevel holds the orders resting at one price on one side, oldest first.
type PriceLevel struct {
	Price  decimal.Decimal
	Orders []*Order
}

func NewOrder(id string, side OrderSide, price decimal.Decimal, quantity int64) *Order {
	return &Order{
		ID:        id,
		Side:      side,
		Price:     price,
		Quantity:  quantity,
		Timestamp: time.Now(),
	}
}

func (o *Order) RemainingQuantity() int64 {
	return o.Quantity - o.FilledQuantity
}

func (o *Order) IsFilled() bool {
	return o.FilledQuantity >= o.Quantity
}

func (o *Order) fill(quantity int64) {
	o.FilledQuantity += quantity
}

func (pl *PriceLevel) TotalQuantity() int64 {
	var total int64
	for _, order := range pl.Orders {
		total += order.RemainingQuantity()
	}
	return total
}

func (pl *PriceLevel) remove(orderID string) bool {
	for i, o := range pl.Orders {
		if o.ID == orderID {
			pl.Orders = append(pl.Orders[:i], pl.Orders[i+1:]...)
			return true
		}
	}
	return false
}
