package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/btree"
	"github.com/shopspring/decimal"
)

var (
	ErrDuplicateOrderID = errors.New("duplicate order id")
	ErrOrderNotFound    = errors.New("order not found")
)

const btreeDegree = 32

// OrderBook keeps two synchronized views of the resting orders: per-side
// price level trees and a flat id index. Every mutation updates both while
// holding mu.
type OrderBook struct {
	bids   *btree.BTreeG[*PriceLevel] // sorted descending (highest first)
	asks   *btree.BTreeG[*PriceLevel] // sorted ascending (lowest first)
	orders map[string]*Order
	mu     sync.RWMutex
}

func NewOrderBook() *OrderBook {
	return &OrderBook{
		bids: btree.NewG(btreeDegree, func(a, b *PriceLevel) bool {
			return a.Price.GreaterThan(b.Price)
		}),
		asks: btree.NewG(btreeDegree, func(a, b *PriceLevel) bool {
			return a.Price.LessThan(b.Price)
		}),
		orders: make(map[string]*Order),
	}
}

func (ob *OrderBook) levels(side OrderSide) *btree.BTreeG[*PriceLevel] {
	if side == SideBuy {
		return ob.bids
	}
	return ob.asks
}

// AddOrder appends order to the back of its price level. The book is left
// untouched when the id is already resting.
func (ob *OrderBook) AddOrder(order *Order) error {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.addOrder(order)
}

func (ob *OrderBook) addOrder(order *Order) error {
	if _, exists := ob.orders[order.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateOrderID, order.ID)
	}

	tree := ob.levels(order.Side)
	level, found := tree.Get(&PriceLevel{Price: order.Price})
	if !found {
		level = &PriceLevel{
			Price:  order.Price,
			Orders: make([]*Order, 0, 1),
		}
		tree.ReplaceOrInsert(level)
	}

	level.Orders = append(level.Orders, order)
	ob.orders[order.ID] = order
	return nil
}

// CancelOrder removes a resting order and returns it as it was.
func (ob *OrderBook) CancelOrder(orderID string) (*Order, error) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	order, exists := ob.orders[orderID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}

	ob.unlink(order)
	return order, nil
}

// unlink drops order from its level and from the index, deleting the level
// when it becomes empty. A missing level means the two views diverged.
func (ob *OrderBook) unlink(order *Order) {
	tree := ob.levels(order.Side)
	level, found := tree.Get(&PriceLevel{Price: order.Price})
	if !found || !level.remove(order.ID) {
		panic(fmt.Sprintf("engine: order %s indexed but absent from %s level %s",
			order.ID, order.Side, order.Price))
	}

	if len(level.Orders) == 0 {
		tree.Delete(level)
	}
	delete(ob.orders, order.ID)
}

// pruneFront removes filled orders from the front of the best level of side.
// Only front orders can be filled by a matching step.
func (ob *OrderBook) pruneFront(side OrderSide) {
	tree := ob.levels(side)
	level, ok := tree.Min()
	if !ok {
		return
	}

	for len(level.Orders) > 0 && level.Orders[0].IsFilled() {
		filled := level.Orders[0]
		level.Orders[0] = nil
		level.Orders = level.Orders[1:]
		if _, exists := ob.orders[filled.ID]; !exists {
			panic(fmt.Sprintf("engine: order %s resting in %s level %s but not indexed",
				filled.ID, side, level.Price))
		}
		delete(ob.orders, filled.ID)
	}

	if len(level.Orders) == 0 {
		tree.Delete(level)
	}
}

func (ob *OrderBook) bestLevel(side OrderSide) (*PriceLevel, bool) {
	level, ok := ob.levels(side).Min()
	if !ok {
		return nil, false
	}
	if len(level.Orders) == 0 {
		panic(fmt.Sprintf("engine: empty %s level %s left in book", side, level.Price))
	}
	return level, true
}

// BestBid returns the highest bid price and the quantity remaining there.
func (ob *OrderBook) BestBid() (price decimal.Decimal, quantity int64, ok bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.best(SideBuy)
}

// BestAsk returns the lowest ask price and the quantity remaining there.
func (ob *OrderBook) BestAsk() (price decimal.Decimal, quantity int64, ok bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.best(SideSell)
}

func (ob *OrderBook) best(side OrderSide) (decimal.Decimal, int64, bool) {
	level, ok := ob.bestLevel(side)
	if !ok {
		return decimal.Zero, 0, false
	}
	return level.Price, level.TotalQuantity(), true
}

// GetOrder returns a copy of a resting order.
func (ob *OrderBook) GetOrder(orderID string) (Order, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	order, exists := ob.orders[orderID]
	if !exists {
		return Order{}, false
	}
	return *order, true
}

// OrdersAt returns copies of the orders resting at price on side, in
// matching order.
func (ob *OrderBook) OrdersAt(side OrderSide, price decimal.Decimal) []Order {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	level, found := ob.levels(side).Get(&PriceLevel{Price: price})
	if !found {
		return nil
	}

	orders := make([]Order, 0, len(level.Orders))
	for _, o := range level.Orders {
		orders = append(orders, *o)
	}
	return orders
}

func (ob *OrderBook) Len() int {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return len(ob.orders)
}

type OrderBookSnapshot struct {
	Price    decimal.Decimal
	Quantity int64
	Orders   int
}

// Snapshot aggregates up to depth levels per side, best price first.
func (ob *OrderBook) Snapshot(depth int) (bids []OrderBookSnapshot, asks []OrderBookSnapshot) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	depth = max(depth, 0)
	return aggregate(ob.bids, depth), aggregate(ob.asks, depth)
}

func aggregate(tree *btree.BTreeG[*PriceLevel], depth int) []OrderBookSnapshot {
	out := make([]OrderBookSnapshot, 0, min(depth, tree.Len()))
	tree.Ascend(func(level *PriceLevel) bool {
		if len(out) >= depth {
			return false
		}
		out = append(out, OrderBookSnapshot{
			Price:    level.Price,
			Quantity: level.TotalQuantity(),
			Orders:   len(level.Orders),
		})
		return true
	})
	return out
}

// Verify checks that the level trees and the id index describe the same set
// of orders, that no level is empty and that no filled order is resting.
func (ob *OrderBook) Verify() error {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	seen := 0
	var err error
	check := func(side OrderSide) func(*PriceLevel) bool {
		return func(level *PriceLevel) bool {
			if len(level.Orders) == 0 {
				err = fmt.Errorf("empty %s level %s", side, level.Price)
				return false
			}
			for _, o := range level.Orders {
				switch {
				case o.Side != side || !o.Price.Equal(level.Price):
					err = fmt.Errorf("order %s (%s %s) in %s level %s", o.ID, o.Side, o.Price, side, level.Price)
				case ob.orders[o.ID] != o:
					err = fmt.Errorf("order %s in %s level %s is not indexed", o.ID, side, level.Price)
				case o.FilledQuantity > 0 && o.IsFilled():
					err = fmt.Errorf("filled order %s still resting", o.ID)
				}
				if err != nil {
					return false
				}
				seen++
			}
			return true
		}
	}

	ob.bids.Ascend(check(SideBuy))
	if err != nil {
		return err
	}
	ob.asks.Ascend(check(SideSell))
	if err != nil {
		return err
	}
	if seen != len(ob.orders) {
		return fmt.Errorf("index holds %d orders, levels hold %d", len(ob.orders), seen)
	}
	return nil
}
