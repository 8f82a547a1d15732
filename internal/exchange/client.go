// Package exchange holds the collaborators the sync core treats as black
// boxes: the REST client that fetches level-3 snapshots and the websocket
// transport that delivers the sequenced feed.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"booksync/internal/book"
)

// Client fetches full level-3 book snapshots over the exchange's REST API.
// It implements syncer.SnapshotProvider.
type Client struct {
	baseURL string
	product string
	httpc   *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL, product string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		product: product,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

func (c *Client) Product() string { return c.product }

// FetchSnapshot GETs the product's level-3 book. Any transport error or
// non-200 status fails the attempt; retry policy belongs to the caller.
func (c *Client) FetchSnapshot(ctx context.Context) (*book.Snapshot, error) {
	u := fmt.Sprintf("%s/products/%s/book?level=3", c.baseURL, url.PathEscape(c.product))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "booksync")

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch snapshot: status %d", resp.StatusCode)
	}

	var snap book.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	c.logger.Info("snapshot fetched",
		slog.String("product", c.product),
		slog.Int64("sequence", snap.Sequence),
		slog.Int("bids", len(snap.Bids)),
		slog.Int("asks", len(snap.Asks)),
		slog.Duration("took", time.Since(start)),
	)
	return &snap, nil
}
