package feed

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"booksync/internal/book"
)

// Kind is the feed message kind. The feed adds kinds over time; anything
// this package does not recognize decodes as KindUnknown and is skipped by
// the synchronizer.
type Kind int

const (
	KindUnknown Kind = iota
	KindReceived
	KindOpen
	KindDone
	KindMatch
	KindChange
	KindActivate
)

var kindNames = map[string]Kind{
	"received": KindReceived,
	"open":     KindOpen,
	"done":     KindDone,
	"match":    KindMatch,
	"change":   KindChange,
	"activate": KindActivate,
}

func (k Kind) String() string {
	for name, kind := range kindNames {
		if kind == k {
			return name
		}
	}
	return "unknown"
}

// Message is a decoded feed message. Every message carries Sequence and
// Kind; the remaining fields are populated per kind and zero otherwise.
type Message struct {
	Sequence int64
	Kind     Kind
	Side     book.Side

	OrderID      string
	MakerOrderID string
	TakerOrderID string
	TradeID      int64

	Price         decimal.Decimal
	Size          decimal.Decimal
	RemainingSize decimal.Decimal
	NewSize       decimal.Decimal
	OldSize       decimal.Decimal
}

// wireDecimal tolerates both the feed's usual decimal strings and bare JSON
// numbers, which older feed builds emitted for the same fields.
type wireDecimal decimal.Decimal

func (d *wireDecimal) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*d = wireDecimal(decimal.Zero)
		return nil
	}
	v, err := decimal.NewFromString(string(b))
	if err != nil {
		return err
	}
	*d = wireDecimal(v)
	return nil
}

type wireMessage struct {
	Type          string      `json:"type"`
	Sequence      int64       `json:"sequence"`
	Side          string      `json:"side"`
	OrderID       string      `json:"order_id"`
	MakerOrderID  string      `json:"maker_order_id"`
	TakerOrderID  string      `json:"taker_order_id"`
	TradeID       int64       `json:"trade_id"`
	Price         wireDecimal `json:"price"`
	Size          wireDecimal `json:"size"`
	RemainingSize wireDecimal `json:"remaining_size"`
	NewSize       wireDecimal `json:"new_size"`
	OldSize       wireDecimal `json:"old_size"`
}

// Parse decodes a raw feed frame into a Message.
func Parse(raw []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(raw, &w); err != nil {
		return Message{}, fmt.Errorf("decode feed message: %w", err)
	}
	return Message{
		Sequence:      w.Sequence,
		Kind:          kindNames[w.Type], // unmapped types yield KindUnknown
		Side:          book.Side(w.Side),
		OrderID:       w.OrderID,
		MakerOrderID:  w.MakerOrderID,
		TakerOrderID:  w.TakerOrderID,
		TradeID:       w.TradeID,
		Price:         decimal.Decimal(w.Price),
		Size:          decimal.Decimal(w.Size),
		RemainingSize: decimal.Decimal(w.RemainingSize),
		NewSize:       decimal.Decimal(w.NewSize),
		OldSize:       decimal.Decimal(w.OldSize),
	}, nil
}

// Order converts an open message into the resting order it announces.
// Open messages carry the unfilled remainder as remaining_size; seeded
// snapshots and some feed builds use size instead.
func (m Message) Order() book.Order {
	size := m.RemainingSize
	if size.IsZero() {
		size = m.Size
	}
	return book.Order{ID: m.OrderID, Side: m.Side, Price: m.Price, Size: size}
}

// Fill converts a match message into the fill applied to the maker order.
func (m Message) Fill() book.Fill {
	return book.Fill{Side: m.Side, Price: m.Price, Size: m.Size, MakerOrderID: m.MakerOrderID}
}

// Resize converts a change message into the in-place size update.
func (m Message) Resize() book.Resize {
	return book.Resize{OrderID: m.OrderID, NewSize: m.NewSize, OldSize: m.OldSize}
}
