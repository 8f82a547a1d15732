package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Feed delivers raw feed frames one at a time, in arrival order. The
// consumer must drain Messages on a single goroutine; relative order is
// what the sync protocol's gap detection runs on.
type Feed interface {
	Run(ctx context.Context, onStatus func(connected bool))
	Messages() <-chan json.RawMessage
	Errors() <-chan error
	Connected() bool
	Close()
}

// WebsocketFeed subscribes to the exchange's full (level-3) channel over a
// persistent websocket, reconnecting with backoff. Frames are forwarded
// undecoded; the synchronizer owns decoding.
type WebsocketFeed struct {
	wsURL   string
	product string
	log     *slog.Logger

	mu        sync.RWMutex
	connected bool

	msgCh chan json.RawMessage
	errCh chan error

	ctx    context.Context
	cancel context.CancelFunc
}

func NewWebsocketFeed(wsURL, product string, logger *slog.Logger) *WebsocketFeed {
	return &WebsocketFeed{
		wsURL:   wsURL,
		product: product,
		log:     logger,
		msgCh:   make(chan json.RawMessage, 1024),
		errCh:   make(chan error, 16),
	}
}

func (f *WebsocketFeed) Messages() <-chan json.RawMessage { return f.msgCh }
func (f *WebsocketFeed) Errors() <-chan error             { return f.errCh }

func (f *WebsocketFeed) Connected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

func (f *WebsocketFeed) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

func (f *WebsocketFeed) Close() {
	if f.cancel != nil {
		f.cancel()
	}
	close(f.errCh)
	close(f.msgCh)
}

// Run owns the connect/subscribe/read cycle until ctx is cancelled.
func (f *WebsocketFeed) Run(ctx context.Context, onStatus func(connected bool)) {
	if f.cancel != nil {
		return
	}
	f.ctx, f.cancel = context.WithCancel(ctx)

	backoff := time.Second
	for {
		select {
		case <-f.ctx.Done():
			return
		default:
		}

		ws, err := f.dialAndSubscribe()
		if err != nil {
			f.setConnected(false)
			onStatus(false)
			f.emitErr(fmt.Errorf("feed connect: %w", err))
			time.Sleep(backoff)
			backoff = minDuration(backoff*2, 30*time.Second)
			continue
		}
		f.setConnected(true)
		onStatus(true)
		backoff = time.Second

		f.log.Info("feed connected", slog.String("product", f.product))

		if err := f.readLoop(ws); err != nil {
			f.setConnected(false)
			onStatus(false)
			f.emitErr(err)
			// loop reconnects; the drop will show up as a sequence gap and
			// the synchronizer resyncs
		}
	}
}

type subscribeRequest struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

func (f *WebsocketFeed) dialAndSubscribe() (*websocket.Conn, error) {
	d := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := d.DialContext(f.ctx, f.wsURL, nil)
	if err != nil {
		return nil, err
	}

	sub := subscribeRequest{
		Type:       "subscribe",
		ProductIDs: []string{f.product},
		Channels:   []string{"full"},
	}
	if err := ws.WriteJSON(sub); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return ws, nil
}

func (f *WebsocketFeed) readLoop(ws *websocket.Conn) error {
	defer func() { _ = ws.Close() }()

	ws.SetReadLimit(1 << 20)
	_ = ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	ws.SetPongHandler(func(string) error {
		_ = ws.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	ping := time.NewTicker(25 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-f.ctx.Done():
			return nil
		case <-ping.C:
			_ = ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
		default:
		}

		_, data, err := ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("ws read: %w", err)
		}

		select {
		case f.msgCh <- json.RawMessage(data):
		case <-f.ctx.Done():
			return nil
		}
	}
}

func (f *WebsocketFeed) emitErr(err error) {
	select {
	case f.errCh <- err:
	default:
		// drop if buffer full
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// ---------- Test/mock feed (handy for offline replay & tests) ----------

type MockFeed struct {
	msgCh     chan json.RawMessage
	errCh     chan error
	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewMockFeed() *MockFeed {
	return &MockFeed{
		msgCh:     make(chan json.RawMessage, 64),
		errCh:     make(chan error, 16),
		connected: true,
	}
}

func (m *MockFeed) Run(ctx context.Context, onStatus func(connected bool)) {
	m.ctx, m.cancel = context.WithCancel(ctx)
	go func() {
		onStatus(m.connected)
		<-m.ctx.Done()
	}()
}

func (m *MockFeed) Messages() <-chan json.RawMessage { return m.msgCh }
func (m *MockFeed) Errors() <-chan error             { return m.errCh }
func (m *MockFeed) Connected() bool                  { return m.connected }

func (m *MockFeed) Close() {
	if m.cancel != nil {
		m.cancel()
	}
	close(m.msgCh)
	close(m.errCh)
}

// Helpers for tests
func (m *MockFeed) Send(raw string)     { m.msgCh <- json.RawMessage(raw) }
func (m *MockFeed) SendError(err error) { m.errCh <- err }
func (m *MockFeed) SetConnected(c bool) { m.connected = c }
