package book

import "github.com/shopspring/decimal"

// KeyPlaces is the number of fractional digits a price keeps when it is
// compared for level membership. Two prices that agree after rounding to
// KeyPlaces digits rest on the same level. This is the book-wide
// quantization contract: every level lookup goes through PriceKey, so the
// rounding can never be applied inconsistently in two places.
const KeyPlaces = 2

// PriceKey maps a price to its fixed-point level key: the price rounded
// half-away-from-zero to KeyPlaces digits, shifted into integer units.
func PriceKey(price decimal.Decimal) int64 {
	return price.Round(KeyPlaces).Shift(KeyPlaces).IntPart()
}

// LevelPrice is the canonical display price for a level key.
func LevelPrice(price decimal.Decimal) decimal.Decimal {
	return price.Round(KeyPlaces)
}
