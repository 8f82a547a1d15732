package book

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SnapshotEntry is one resting order in the exchange's level-3 book
// payload: [price, size, order_id], price and size as decimal strings.
type SnapshotEntry [3]string

// Snapshot is the flat form of a book, wire-compatible with the exchange's
// level-3 REST response. Sequence is the feed sequence number the snapshot
// reflects.
type Snapshot struct {
	Sequence int64           `json:"sequence"`
	Bids     []SnapshotEntry `json:"bids"`
	Asks     []SnapshotEntry `json:"asks"`
}

// Load seeds the book with every order in the snapshot. It is meant for a
// freshly constructed book; entries are appended in the order given, which
// the snapshot provider guarantees is time priority within a level.
func (b *Book) Load(s *Snapshot) error {
	for _, e := range s.Bids {
		o, err := entryOrder(e, Buy)
		if err != nil {
			return err
		}
		b.Add(o)
	}
	for _, e := range s.Asks {
		o, err := entryOrder(e, Sell)
		if err != nil {
			return err
		}
		b.Add(o)
	}
	return nil
}

// Snapshot exports the current book as flat entries, bids best-first and
// asks best-first. Sequence is left zero; the synchronizer stamps it.
func (b *Book) Snapshot() *Snapshot {
	s := &Snapshot{}

	it := b.bids.Iterator()
	it.End()
	for it.Prev() {
		for _, o := range it.Value().(*Level).Orders {
			s.Bids = append(s.Bids, orderEntry(o))
		}
	}

	it = b.asks.Iterator()
	for it.Next() {
		for _, o := range it.Value().(*Level).Orders {
			s.Asks = append(s.Asks, orderEntry(o))
		}
	}
	return s
}

func entryOrder(e SnapshotEntry, side Side) (Order, error) {
	price, err := decimal.NewFromString(e[0])
	if err != nil {
		return Order{}, fmt.Errorf("snapshot entry price %q: %w", e[0], err)
	}
	size, err := decimal.NewFromString(e[1])
	if err != nil {
		return Order{}, fmt.Errorf("snapshot entry size %q: %w", e[1], err)
	}
	return Order{ID: e[2], Side: side, Price: price, Size: size}, nil
}

func orderEntry(o *Order) SnapshotEntry {
	return SnapshotEntry{o.Price.String(), o.Size.String(), o.ID}
}
