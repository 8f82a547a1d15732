package state

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// State is the process-level runtime state shared between the feed wiring
// and the HTTP server: connection status, the tracked product, resync
// bookkeeping, the most recent trade, and large-trade alert settings.
// Book data never lives here.
type State struct {
	mu      sync.RWMutex
	product string

	lastTradePrice decimal.Decimal
	lastTradeSize  decimal.Decimal
	lastTradeID    int64
	hasTrade       bool

	alertSize decimal.Decimal

	connected atomic.Bool
	resyncs   atomic.Int64

	alertMu   sync.Mutex
	lastAlert map[string]time.Time // key: "PRODUCT:PRICE"
	cooldown  time.Duration
}

func NewState(cooldown time.Duration, alertSize decimal.Decimal) *State {
	return &State{
		alertSize: alertSize,
		lastAlert: make(map[string]time.Time),
		cooldown:  cooldown,
	}
}

func (s *State) SetProduct(p string) string {
	canon := strings.ToUpper(strings.TrimSpace(p))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.product = canon
	return canon
}

func (s *State) Product() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.product
}

func (s *State) SetConnected(v bool) { s.connected.Store(v) }
func (s *State) Connected() bool     { return s.connected.Load() }

// RecordResync counts a forced resnapshot; surfaced on /api/health.
func (s *State) RecordResync() { s.resyncs.Add(1) }
func (s *State) Resyncs() int64 { return s.resyncs.Load() }

func (s *State) RecordTrade(price, size decimal.Decimal, tradeID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTradePrice = price
	s.lastTradeSize = size
	s.lastTradeID = tradeID
	s.hasTrade = true
}

func (s *State) LastTrade() (price, size decimal.Decimal, tradeID int64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTradePrice, s.lastTradeSize, s.lastTradeID, s.hasTrade
}

// AlertSize is the trade size at or above which a trade rates an alert.
func (s *State) AlertSize() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alertSize
}

func (s *State) SetAlertSize(v decimal.Decimal) {
	if v.Sign() <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alertSize = v
}

func (s *State) key(product string, price decimal.Decimal) string {
	return fmt.Sprintf("%s:%s", strings.ToUpper(product), price.String())
}

// AllowAlert rate-limits alerts per (product, price): at most one inside
// each cooldown window.
func (s *State) AllowAlert(product string, price decimal.Decimal, now time.Time) bool {
	k := s.key(product, price)
	s.alertMu.Lock()
	defer s.alertMu.Unlock()
	last, ok := s.lastAlert[k]
	if !ok || now.Sub(last) >= s.cooldown {
		s.lastAlert[k] = now
		return true
	}
	return false
}
