package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"booksync/internal/config"
	"booksync/internal/exchange"
	"booksync/internal/server"
	"booksync/internal/state"
	"booksync/internal/syncer"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load() // best-effort: .env is optional

	cfg, err := config.Load("config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config.yaml: %v\n", err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.LogLevel)

	logger.Info("booksync starting",
		slog.Int("port", cfg.Port),
		slog.String("product", cfg.ProductID),
		slog.String("rest_url", cfg.RESTURL),
		slog.String("websocket_url", cfg.WebsocketURL),
	)

	// State
	st := state.NewState(time.Duration(cfg.AlertCooldownSeconds)*time.Second, cfg.AlertSize())
	st.SetProduct(cfg.ProductID)

	// Exchange collaborators
	client := exchange.NewClient(cfg.RESTURL, cfg.ProductID, logger)
	feed := exchange.NewWebsocketFeed(cfg.WebsocketURL, cfg.ProductID, logger)

	// HTTP server + WS hub
	srv := server.NewHTTPServer(cfg, st, logger)

	// Synchronizer; the pump goroutine below is its sole owner.
	var sn *syncer.Synchronizer
	var lastPush time.Time
	sn = syncer.New(client,
		syncer.OnBookUpdate(func() {
			// Coalesce pushes; a busy feed mutates the book many times a second.
			if time.Since(lastPush) < 100*time.Millisecond {
				return
			}
			lastPush = time.Now()
			snap := sn.Book().Snapshot()
			snap.Sequence = sn.Sequence()
			bids, asks := sn.Book().Depth(0)
			srv.UpdateBook(snap, bids, asks, sn.Sequence(), sn.Status().String())
		}),
		syncer.OnTrade(func(tr syncer.Trade) {
			st.RecordTrade(tr.Price, tr.Size, tr.TradeID)
			srv.BroadcastTrade(tr.Price, tr.Size, tr.TradeID)
			if tr.Size.Cmp(st.AlertSize()) >= 0 && st.AllowAlert(st.Product(), tr.Price, time.Now()) {
				srv.BroadcastAlert(tr.Price, tr.Size, tr.TradeID)
			}
		}),
		syncer.OnResync(func(reason error) {
			st.RecordResync()
			logger.Warn("resync forced", slog.String("reason", reason.Error()))
			srv.BroadcastStatus()
		}),
	)

	// Context & signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start feed (connect loop)
	go feed.Run(ctx, func(connected bool) {
		st.SetConnected(connected)
		srv.BroadcastStatus()
	})

	// Pump: feed → synchronizer → server. One goroutine owns the
	// synchronizer; the protocol depends on strict arrival order.
	go func() {
		loadWithRetry(ctx, sn, logger)
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-feed.Errors():
				if err != nil {
					logger.Error("feed error", slog.String("err", err.Error()))
					srv.BroadcastError(err.Error())
				}
			case raw, ok := <-feed.Messages():
				if !ok {
					return
				}
				if err := sn.OnFeedMessage(ctx, raw); err != nil {
					logger.Error("apply feed message", slog.String("err", err.Error()))
				}
				// A failed resync leaves us unsynced; retry here, where
				// backoff policy lives.
				if sn.Status() == syncer.Unsynced {
					loadWithRetry(ctx, sn, logger)
				}
			}
		}
	}()

	// HTTP serving
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: srv.Router(),
	}

	done := make(chan struct{})
	go func() {
		logger.Info("HTTP server listening", slog.Int("port", cfg.Port))
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", slog.String("err", err.Error()))
			cancel()
		}
		close(done)
	}()

	// Graceful shutdown
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
	case <-ctx.Done():
	}

	logger.Info("shutting down...")
	shCtx, shCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shCancel()

	_ = httpSrv.Shutdown(shCtx)
	cancel()
	feed.Close()
	<-done
	logger.Info("bye")
}

// loadWithRetry keeps requesting a baseline until one lands or ctx ends.
// The core treats a failed fetch as fatal to the attempt; backoff belongs
// out here.
func loadWithRetry(ctx context.Context, sn *syncer.Synchronizer, logger *slog.Logger) {
	backoff := time.Second
	for {
		err := sn.LoadSnapshot(ctx)
		if err == nil || errors.Is(err, syncer.ErrStaleSnapshot) {
			return
		}
		logger.Error("snapshot load failed", slog.String("err", err.Error()))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 30*time.Second)
	}
}
