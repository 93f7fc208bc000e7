// Package client provides the upstream gateway client used to pull
// revocation batch lists and batch content.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/model"
)

// GatewayClient is the upstream collaborator interface: an iterator
// over batch-list pages since a watermark plus a fetch-by-id operation
// that may report the batch gone.
type GatewayClient interface {
	ListBatches(ctx context.Context, since time.Time) ([]model.BatchListItem, error)
	GetBatch(ctx context.Context, batchID string) (*model.BatchContent, bool, error)
}

// HTTPGatewayClient implements GatewayClient against the gateway's
// batch-list protocol.
type HTTPGatewayClient struct {
	baseURL    string
	httpClient *http.Client
	maxRetries uint64
	logger     *zap.Logger
}

// NewHTTPGatewayClient creates a new gateway client
func NewHTTPGatewayClient(baseURL string, timeout time.Duration, maxRetries int, logger *zap.Logger) *HTTPGatewayClient {
	return &HTTPGatewayClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: uint64(maxRetries),
		logger:     logger,
	}
}

type batchListPage struct {
	More    bool `json:"more"`
	Batches []struct {
		BatchID string    `json:"batchId"`
		Country string    `json:"country"`
		Date    time.Time `json:"date"`
		Deleted bool      `json:"deleted"`
	} `json:"batches"`
}

type batchResponse struct {
	KID      string         `json:"kid"`
	Country  string         `json:"country"`
	Expires  time.Time      `json:"expires"`
	HashType model.HashType `json:"hashType"`
	Entries  []struct {
		Hash string `json:"hash"`
	} `json:"entries"`
}

// ListBatches pages through the upstream batch list since the given
// watermark and returns the flattened item list in event order.
// Pagination is by timestamp, so consecutive pages may overlap on
// batches sharing one date; already-seen ids are skipped, and a page
// that yields nothing new terminates the walk even if the upstream
// still reports more.
func (c *HTTPGatewayClient) ListBatches(ctx context.Context, since time.Time) ([]model.BatchListItem, error) {
	items := make([]model.BatchListItem, 0)
	cursor := since
	seen := make(map[string]struct{})

	for {
		page, err := c.fetchPage(ctx, cursor)
		if err != nil {
			return nil, err
		}
		if len(page.Batches) == 0 {
			break
		}

		progressed := false
		for _, b := range page.Batches {
			if _, ok := seen[b.BatchID]; ok {
				continue
			}
			seen[b.BatchID] = struct{}{}
			progressed = true

			items = append(items, model.BatchListItem{
				BatchID: b.BatchID,
				Deleted: b.Deleted,
				Date:    b.Date,
			})
			if b.Date.After(cursor) {
				cursor = b.Date
			}
		}

		if !page.More {
			break
		}
		if !progressed {
			c.logger.Warn("Batch list pagination stalled, stopping early",
				zap.Time("cursor", cursor),
				zap.Int("items", len(items)))
			break
		}
	}

	return items, nil
}

func (c *HTTPGatewayClient) fetchPage(ctx context.Context, since time.Time) (*batchListPage, error) {
	var page *batchListPage

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/revocation-list", nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("If-Modified-Since", since.UTC().Format(http.TimeFormat))

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			var p batchListPage
			if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
				return backoff.Permanent(fmt.Errorf("failed to decode batch list: %w", err))
			}
			page = &p
			return nil
		case http.StatusNotModified:
			page = &batchListPage{}
			return nil
		default:
			return fmt.Errorf("unexpected batch list status: %d", resp.StatusCode)
		}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("failed to fetch batch list page: %w", err)
	}

	return page, nil
}

// GetBatch fetches full batch content; the second return value is true
// when upstream reports the batch gone.
func (c *HTTPGatewayClient) GetBatch(ctx context.Context, batchID string) (*model.BatchContent, bool, error) {
	var content *model.BatchContent
	var gone bool

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/revocation-list/"+batchID, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			var b batchResponse
			if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
				return backoff.Permanent(fmt.Errorf("failed to decode batch: %w", err))
			}
			entries := make([]model.BatchEntry, 0, len(b.Entries))
			for _, e := range b.Entries {
				entries = append(entries, model.BatchEntry{Hash: e.Hash})
			}
			content = &model.BatchContent{
				KID:      b.KID,
				Country:  b.Country,
				Expires:  b.Expires,
				HashType: b.HashType,
				Entries:  entries,
			}
			return nil
		case http.StatusGone, http.StatusNotFound:
			gone = true
			return nil
		default:
			return fmt.Errorf("unexpected batch status: %d", resp.StatusCode)
		}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, false, fmt.Errorf("failed to fetch batch %s: %w", batchID, err)
	}

	return content, gone, nil
}
