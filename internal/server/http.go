package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"booksync/internal/book"
	"booksync/internal/config"
	"booksync/internal/state"
)

// HTTPServer exposes the reconstructed book for inspection: JSON queries
// plus a websocket hub pushing depth, trade, and status frames. It never
// touches the live book directly; the sync goroutine hands it immutable
// copies via UpdateBook, which keeps the core single-threaded.
type HTTPServer struct {
	cfg config.Config
	st  *state.State
	hub *hub
	log *slog.Logger
	mux *http.ServeMux

	mu       sync.RWMutex
	snapshot *book.Snapshot
	bids     []book.DepthLevel
	asks     []book.DepthLevel
	sequence int64
	status   string
}

func NewHTTPServer(cfg config.Config, st *state.State, logger *slog.Logger) *HTTPServer {
	s := &HTTPServer{
		cfg:    cfg,
		st:     st,
		hub:    newHub(logger),
		log:    logger,
		mux:    http.NewServeMux(),
		status: "unsynced",
	}
	s.routes()
	go s.hub.run()
	return s
}

func (s *HTTPServer) Router() http.Handler { return s.mux }

// --------- updates from the sync goroutine ----------

// UpdateBook replaces the cached export and pushes the aggregated depth to
// connected clients.
func (s *HTTPServer) UpdateBook(snap *book.Snapshot, bids, asks []book.DepthLevel, sequence int64, status string) {
	s.mu.Lock()
	s.snapshot = snap
	s.bids = bids
	s.asks = asks
	s.sequence = sequence
	s.status = status
	s.mu.Unlock()

	s.hub.broadcast <- marshalFrame("book", map[string]any{
		"bids":     truncate(bids, s.cfg.DepthLevels),
		"asks":     truncate(asks, s.cfg.DepthLevels),
		"sequence": sequence,
	})
}

func (s *HTTPServer) BroadcastTrade(price, size decimal.Decimal, tradeID int64) {
	s.hub.broadcast <- marshalFrame("trade", map[string]any{
		"price":   price,
		"size":    size,
		"tradeId": tradeID,
		"timeISO": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// BroadcastAlert flags a trade at or above the configured alert size.
func (s *HTTPServer) BroadcastAlert(price, size decimal.Decimal, tradeID int64) {
	s.hub.broadcast <- marshalFrame("alert", map[string]any{
		"product": s.st.Product(),
		"price":   price,
		"size":    size,
		"tradeId": tradeID,
		"timeISO": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *HTTPServer) BroadcastStatus() {
	s.mu.RLock()
	seq, status := s.sequence, s.status
	s.mu.RUnlock()
	s.hub.broadcast <- marshalFrame("status", map[string]any{
		"connected": s.st.Connected(),
		"product":   s.st.Product(),
		"status":    status,
		"sequence":  seq,
		"resyncs":   s.st.Resyncs(),
	})
}

func (s *HTTPServer) BroadcastError(msg string) {
	s.hub.broadcast <- marshalFrame("error", map[string]string{"message": msg})
}

// --------- Routes ----------

func (s *HTTPServer) routes() {
	s.mux.HandleFunc("/ws", s.hub.serveWS)

	s.mux.HandleFunc("/api/health", s.apiHealth)
	s.mux.HandleFunc("/api/book", s.apiBook)
	s.mux.HandleFunc("/api/depth", s.apiDepth)
	s.mux.HandleFunc("/api/alertsize", s.apiAlertSize)
}

func (s *HTTPServer) apiHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	seq, status := s.sequence, s.status
	s.mu.RUnlock()

	payload := map[string]any{
		"ok":        true,
		"connected": s.st.Connected(),
		"product":   s.st.Product(),
		"status":    status,
		"sequence":  seq,
		"resyncs":   s.st.Resyncs(),
	}
	if price, size, id, ok := s.st.LastTrade(); ok {
		payload["lastTrade"] = map[string]any{"price": price, "size": size, "tradeId": id}
	}
	writeJSON(w, payload)
}

func (s *HTTPServer) apiBook(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	snap := s.snapshot
	s.mu.RUnlock()
	if snap == nil {
		http.Error(w, "book not loaded yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, snap)
}

func (s *HTTPServer) apiDepth(w http.ResponseWriter, r *http.Request) {
	levels := s.cfg.DepthLevels
	if q := r.URL.Query().Get("levels"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			http.Error(w, "levels must be a non-negative integer", http.StatusBadRequest)
			return
		}
		levels = n
	}

	s.mu.RLock()
	bids, asks, seq := s.bids, s.asks, s.sequence
	s.mu.RUnlock()

	writeJSON(w, map[string]any{
		"bids":     truncate(bids, levels),
		"asks":     truncate(asks, levels),
		"sequence": seq,
	})
}

func (s *HTTPServer) apiAlertSize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Size string `json:"size"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	size, err := decimal.NewFromString(req.Size)
	if err != nil || size.Sign() <= 0 {
		http.Error(w, "size must be a positive decimal", http.StatusBadRequest)
		return
	}
	s.st.SetAlertSize(size)
	writeJSON(w, map[string]any{"ok": true, "size": s.st.AlertSize()})
}

func truncate(levels []book.DepthLevel, n int) []book.DepthLevel {
	if n > 0 && len(levels) > n {
		return levels[:n]
	}
	return levels
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
