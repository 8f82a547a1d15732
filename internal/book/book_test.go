package book

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAddThenRemove(t *testing.T) {
	b := New()
	b.Add(Order{ID: "a1", Side: Buy, Price: dec("5000.00"), Size: dec("1.5")})

	if _, ok := b.Get("a1"); !ok {
		t.Fatal("order missing after add")
	}
	bids, _ := b.Depth(0)
	if len(bids) != 1 {
		t.Fatalf("bid levels got %d want 1", len(bids))
	}

	b.Remove("a1")
	if _, ok := b.Get("a1"); ok {
		t.Fatal("order still indexed after remove")
	}
	bids, _ = b.Depth(0)
	if len(bids) != 0 {
		t.Fatalf("empty level not deleted, got %d levels", len(bids))
	}
	if b.Len() != 0 {
		t.Fatalf("Len got %d want 0", b.Len())
	}
}

func TestRemoveUnknownIsNoop(t *testing.T) {
	b := New()
	b.Add(Order{ID: "x", Side: Sell, Price: dec("10"), Size: dec("1")})
	b.Remove("nope")
	if b.Len() != 1 {
		t.Fatalf("Len got %d want 1", b.Len())
	}
}

func TestDepthAggregatesAndPreservesTimePriority(t *testing.T) {
	b := New()
	b.Add(Order{ID: "a", Side: Buy, Price: dec("100.00"), Size: dec("1.0")})
	b.Add(Order{ID: "b", Side: Buy, Price: dec("100.00"), Size: dec("2.5")})
	b.Add(Order{ID: "c", Side: Buy, Price: dec("100.00"), Size: dec("0.5")})

	bids, _ := b.Depth(0)
	if len(bids) != 1 {
		t.Fatalf("levels got %d want 1", len(bids))
	}
	if !bids[0].Size.Equal(dec("4")) {
		t.Fatalf("level size got %s want 4", bids[0].Size)
	}

	// Insertion order is the queue order the snapshot exports.
	snap := b.Snapshot()
	want := []string{"a", "b", "c"}
	for i, e := range snap.Bids {
		if e[2] != want[i] {
			t.Fatalf("queue position %d got %s want %s", i, e[2], want[i])
		}
	}
}

func TestPriceQuantizationMergesEqualPrices(t *testing.T) {
	b := New()
	// Numerically equal after rounding to KeyPlaces; must share one level.
	b.Add(Order{ID: "a", Side: Sell, Price: dec("5000.00"), Size: dec("1")})
	b.Add(Order{ID: "b", Side: Sell, Price: dec("5000.000"), Size: dec("1")})
	b.Add(Order{ID: "c", Side: Sell, Price: dec("5000.001"), Size: dec("1")})

	_, asks := b.Depth(0)
	if len(asks) != 1 {
		t.Fatalf("ask levels got %d want 1", len(asks))
	}
	if !asks[0].Size.Equal(dec("3")) {
		t.Fatalf("merged size got %s want 3", asks[0].Size)
	}
}

func TestDepthOrderingBestFirst(t *testing.T) {
	b := New()
	b.Add(Order{ID: "b1", Side: Buy, Price: dec("99"), Size: dec("1")})
	b.Add(Order{ID: "b2", Side: Buy, Price: dec("101"), Size: dec("1")})
	b.Add(Order{ID: "b3", Side: Buy, Price: dec("100"), Size: dec("1")})
	b.Add(Order{ID: "s1", Side: Sell, Price: dec("103"), Size: dec("1")})
	b.Add(Order{ID: "s2", Side: Sell, Price: dec("102"), Size: dec("1")})
	b.Add(Order{ID: "s3", Side: Sell, Price: dec("104"), Size: dec("1")})

	bids, asks := b.Depth(0)
	if !bids[0].Price.Equal(dec("101")) || !bids[1].Price.Equal(dec("100")) || !bids[2].Price.Equal(dec("99")) {
		t.Fatalf("bids not descending: %v", bids)
	}
	if !asks[0].Price.Equal(dec("102")) || !asks[1].Price.Equal(dec("103")) || !asks[2].Price.Equal(dec("104")) {
		t.Fatalf("asks not ascending: %v", asks)
	}

	bids, asks = b.Depth(1)
	if len(bids) != 1 || len(asks) != 1 {
		t.Fatalf("Depth(1) got %d/%d levels want 1/1", len(bids), len(asks))
	}
	if !bids[0].Price.Equal(dec("101")) || !asks[0].Price.Equal(dec("102")) {
		t.Fatalf("Depth(1) best levels got %s/%s want 101/102", bids[0].Price, asks[0].Price)
	}
}

func TestMatchPartialThenFull(t *testing.T) {
	b := New()
	b.Add(Order{ID: "m1", Side: Buy, Price: dec("5000.00"), Size: dec("1.0")})

	if err := b.Match(Fill{Side: Buy, Price: dec("5000.00"), Size: dec("0.4"), MakerOrderID: "m1"}); err != nil {
		t.Fatalf("partial match: %v", err)
	}
	o, ok := b.Get("m1")
	if !ok {
		t.Fatal("order gone after partial fill")
	}
	if !o.Size.Equal(dec("0.6")) {
		t.Fatalf("remaining size got %s want 0.6", o.Size)
	}

	if err := b.Match(Fill{Side: Buy, Price: dec("5000.00"), Size: dec("0.6"), MakerOrderID: "m1"}); err != nil {
		t.Fatalf("full match: %v", err)
	}
	if _, ok := b.Get("m1"); ok {
		t.Fatal("fully filled order still present")
	}
	bids, _ := b.Depth(0)
	if len(bids) != 0 {
		t.Fatal("level not removed after last order filled")
	}
}

func TestMatchMakerMismatch(t *testing.T) {
	b := New()
	b.Add(Order{ID: "first", Side: Sell, Price: dec("10"), Size: dec("1")})
	b.Add(Order{ID: "second", Side: Sell, Price: dec("10"), Size: dec("1")})

	err := b.Match(Fill{Side: Sell, Price: dec("10"), Size: dec("1"), MakerOrderID: "second"})
	if !errors.Is(err, ErrMakerMismatch) {
		t.Fatalf("err got %v want ErrMakerMismatch", err)
	}
	// Book untouched on a rejected fill.
	if o, _ := b.Get("first"); !o.Size.Equal(dec("1")) {
		t.Fatalf("front order mutated by rejected fill: %s", o.Size)
	}
}

func TestMatchMissingLevel(t *testing.T) {
	b := New()
	err := b.Match(Fill{Side: Buy, Price: dec("42"), Size: dec("1"), MakerOrderID: "ghost"})
	if !errors.Is(err, ErrLevelMissing) {
		t.Fatalf("err got %v want ErrLevelMissing", err)
	}
}

func TestChange(t *testing.T) {
	b := New()
	b.Add(Order{ID: "c1", Side: Buy, Price: dec("99"), Size: dec("2.0")})

	if err := b.Change(Resize{OrderID: "c1", OldSize: dec("2.0"), NewSize: dec("1.5")}); err != nil {
		t.Fatalf("change: %v", err)
	}
	if o, _ := b.Get("c1"); !o.Size.Equal(dec("1.5")) {
		t.Fatalf("size got %s want 1.5", o.Size)
	}

	// Stale prior size is a consistency failure.
	err := b.Change(Resize{OrderID: "c1", OldSize: dec("2.0"), NewSize: dec("1.0")})
	if !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("err got %v want ErrSizeMismatch", err)
	}

	// Unknown order is a no-op, not an error.
	if err := b.Change(Resize{OrderID: "ghost", OldSize: dec("1"), NewSize: dec("2")}); err != nil {
		t.Fatalf("unknown order change: %v", err)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	b := New()
	if err := b.Load(&Snapshot{
		Sequence: 7,
		Bids: []SnapshotEntry{
			{"100.00", "1.5", "b1"},
			{"99.50", "2.0", "b2"},
		},
		Asks: []SnapshotEntry{
			{"100.50", "0.7", "a1"},
		},
	}); err != nil {
		t.Fatalf("load: %v", err)
	}

	if b.Len() != 3 {
		t.Fatalf("Len got %d want 3", b.Len())
	}
	out := b.Snapshot()
	if len(out.Bids) != 2 || len(out.Asks) != 1 {
		t.Fatalf("export got %d bids / %d asks", len(out.Bids), len(out.Asks))
	}
	if out.Bids[0][2] != "b1" || out.Asks[0][2] != "a1" {
		t.Fatalf("export order wrong: %v / %v", out.Bids, out.Asks)
	}
}

func TestLoadRejectsBadEntry(t *testing.T) {
	b := New()
	err := b.Load(&Snapshot{Bids: []SnapshotEntry{{"not-a-price", "1", "x"}}})
	if err == nil {
		t.Fatal("expected parse error")
	}
}
