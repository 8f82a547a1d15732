package exchange

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetchSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/products/BTC-USD/book" {
			t.Errorf("path got %s", r.URL.Path)
		}
		if r.URL.Query().Get("level") != "3" {
			t.Errorf("level got %s want 3", r.URL.Query().Get("level"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"sequence": 42,
			"bids": [["5000.00","1.5","b1"]],
			"asks": [["5001.00","0.5","a1"],["5002.00","2","a2"]]
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "BTC-USD", testLogger())
	snap, err := c.FetchSnapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.Sequence != 42 {
		t.Fatalf("sequence got %d want 42", snap.Sequence)
	}
	if len(snap.Bids) != 1 || len(snap.Asks) != 2 {
		t.Fatalf("entries got %d bids / %d asks", len(snap.Bids), len(snap.Asks))
	}
	if snap.Bids[0][2] != "b1" {
		t.Fatalf("bid entry got %v", snap.Bids[0])
	}
}

func TestFetchSnapshotNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "BTC-USD", testLogger())
	if _, err := c.FetchSnapshot(context.Background()); err == nil {
		t.Fatal("expected error on 503")
	}
}

func TestMockFeed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mock := NewMockFeed()

	statusCh := make(chan bool, 1)
	mock.Run(ctx, func(c bool) { statusCh <- c })

	select {
	case c := <-statusCh:
		if !c {
			t.Fatal("expected connected status")
		}
	case <-time.After(time.Second):
		t.Fatal("no status")
	}

	mock.Send(`{"type":"open","sequence":1}`)
	select {
	case raw := <-mock.Messages():
		if len(raw) == 0 {
			t.Fatal("empty frame")
		}
	case <-time.After(time.Second):
		t.Fatal("no message")
	}

	mock.Close()
}
