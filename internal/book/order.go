package book

import "github.com/shopspring/decimal"

// Side identifies which half of the book an order rests on.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Order is a single resting limit order. The price level's FIFO queue owns
// the order; the book's id index aliases the same pointer, so a size update
// is visible through both views.
type Order struct {
	ID    string
	Side  Side
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Fill describes a trade executed against a resting maker order. Side and
// Price address the maker's level; MakerOrderID must name the order at the
// front of that level's queue.
type Fill struct {
	Side         Side
	Price        decimal.Decimal
	Size         decimal.Decimal
	MakerOrderID string
}

// Resize is an in-place size update of a resting order (price never moves).
// OldSize carries the size the feed believes the order had before the
// change, which the book checks before applying.
type Resize struct {
	OrderID string
	NewSize decimal.Decimal
	OldSize decimal.Decimal
}
