package book

import (
	"errors"
	"fmt"

	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"
	"github.com/shopspring/decimal"
)

var (
	// ErrLevelMissing means a fill addressed a price level the book does not
	// hold. Not explainable by ordinary gaps; the caller should resync.
	ErrLevelMissing = errors.New("price level missing")
	// ErrMakerMismatch means the maker order named by a fill is not at the
	// front of its level's queue. The feed reports maker fills in strict
	// queue order, so this signals upstream desynchronization.
	ErrMakerMismatch = errors.New("maker order not at front of queue")
	// ErrSizeMismatch means a size change carried a prior size that
	// disagrees with the resting order's current size.
	ErrSizeMismatch = errors.New("order size does not match expected prior size")
)

// Book is an in-memory level-3 order book: two price-sorted level trees
// (bids descending-best, asks ascending-best) plus an id index shared
// across both sides. Book is not safe for concurrent use; a single
// goroutine must own all mutations (the synchronizer's processing loop).
type Book struct {
	bids   *redblacktree.Tree // int64 price key -> *Level
	asks   *redblacktree.Tree
	orders map[string]*Order
}

// New returns an empty book.
func New() *Book {
	return &Book{
		bids:   redblacktree.NewWith(utils.Int64Comparator),
		asks:   redblacktree.NewWith(utils.Int64Comparator),
		orders: make(map[string]*Order),
	}
}

func (b *Book) tree(s Side) *redblacktree.Tree {
	if s == Buy {
		return b.bids
	}
	return b.asks
}

// Len reports the number of resting orders across both sides.
func (b *Book) Len() int { return len(b.orders) }

// Get looks up an order by id in O(1). The returned value is a copy.
func (b *Book) Get(id string) (Order, bool) {
	o, ok := b.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Add inserts a new resting order, creating its price level if this is the
// first order at that price. Arrival order within a level is preserved.
func (b *Book) Add(o Order) {
	key := PriceKey(o.Price)
	t := b.tree(o.Side)

	var lvl *Level
	if v, ok := t.Get(key); ok {
		lvl = v.(*Level)
	} else {
		lvl = &Level{Price: LevelPrice(o.Price)}
		t.Put(key, lvl)
	}

	resting := &o
	lvl.append(resting)
	b.orders[o.ID] = resting
}

// Remove deletes an order by id. Unknown ids are a no-op: the order may
// already have been consumed by a fill racing the cancel.
func (b *Book) Remove(id string) {
	o, ok := b.orders[id]
	if !ok {
		return
	}

	t := b.tree(o.Side)
	key := PriceKey(o.Price)
	if v, found := t.Get(key); found {
		lvl := v.(*Level)
		lvl.remove(id)
		if len(lvl.Orders) == 0 {
			t.Remove(key)
		}
	}
	delete(b.orders, id)
}

// Match applies a trade against the resting maker order at the front of the
// addressed level. The maker's remaining size is decremented by the fill
// size; the order is removed once nothing remains.
func (b *Book) Match(f Fill) error {
	v, ok := b.tree(f.Side).Get(PriceKey(f.Price))
	if !ok {
		return fmt.Errorf("%w: %s %s", ErrLevelMissing, f.Side, f.Price)
	}
	lvl := v.(*Level)

	maker := lvl.front()
	if maker.ID != f.MakerOrderID {
		return fmt.Errorf("%w: queue head %s, fill names %s", ErrMakerMismatch, maker.ID, f.MakerOrderID)
	}

	maker.Size = maker.Size.Sub(f.Size)
	if maker.Size.Sign() <= 0 {
		b.Remove(maker.ID)
	}
	return nil
}

// Change updates an order's size in place after checking the expected prior
// size. Unknown ids are a no-op, matching Remove.
func (b *Book) Change(r Resize) error {
	o, ok := b.orders[r.OrderID]
	if !ok {
		return nil
	}
	if !o.Size.Equal(r.OldSize) {
		return fmt.Errorf("%w: order %s has %s, change expected %s", ErrSizeMismatch, r.OrderID, o.Size, r.OldSize)
	}
	o.Size = r.NewSize
	return nil
}

// DepthLevel is one aggregated level: its price and the total resting size.
type DepthLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// Depth aggregates up to maxLevels levels per side, best price first
// (highest bid, lowest ask). maxLevels <= 0 returns every level.
func (b *Book) Depth(maxLevels int) (bids, asks []DepthLevel) {
	it := b.bids.Iterator()
	it.End()
	for it.Prev() {
		if maxLevels > 0 && len(bids) >= maxLevels {
			break
		}
		lvl := it.Value().(*Level)
		bids = append(bids, DepthLevel{Price: lvl.Price, Size: lvl.TotalSize()})
	}

	it = b.asks.Iterator()
	for it.Next() {
		if maxLevels > 0 && len(asks) >= maxLevels {
			break
		}
		lvl := it.Value().(*Level)
		asks = append(asks, DepthLevel{Price: lvl.Price, Size: lvl.TotalSize()})
	}
	return bids, asks
}
