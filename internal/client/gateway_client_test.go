package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(baseURL string) *HTTPGatewayClient {
	return NewHTTPGatewayClient(baseURL, 5*time.Second, 0, zap.NewNop())
}

func TestHTTPGatewayClient_ListBatches_PagesUntilDone(t *testing.T) {
	d1 := time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)
	d2 := time.Date(2023, 5, 2, 10, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		since, err := http.ParseTime(r.Header.Get("If-Modified-Since"))
		assert.NoError(t, err)

		var page map[string]interface{}
		if since.Before(d1) {
			page = map[string]interface{}{
				"more": true,
				"batches": []map[string]interface{}{
					{"batchId": "batch-1", "country": "DE", "date": d1},
				},
			}
		} else {
			page = map[string]interface{}{
				"more": false,
				"batches": []map[string]interface{}{
					{"batchId": "batch-2", "country": "DE", "date": d2, "deleted": true},
				},
			}
		}
		json.NewEncoder(w).Encode(page)
	}))
	defer server.Close()

	items, err := newTestClient(server.URL).ListBatches(context.Background(), time.Time{})

	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "batch-1", items[0].BatchID)
	assert.False(t, items[0].Deleted)
	assert.Equal(t, "batch-2", items[1].BatchID)
	assert.True(t, items[1].Deleted)
}

// A page that claims more results but repeats already-delivered batches
// would refetch the same cursor forever; the walk must stop instead.
func TestHTTPGatewayClient_ListBatches_RepeatedPageTerminates(t *testing.T) {
	date := time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)
	var requests int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&requests, 1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"more": true,
			"batches": []map[string]interface{}{
				{"batchId": "batch-1", "country": "DE", "date": date},
			},
		})
	}))
	defer server.Close()

	items, err := newTestClient(server.URL).ListBatches(context.Background(), time.Time{})

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "batch-1", items[0].BatchID)
	assert.Equal(t, int64(2), atomic.LoadInt64(&requests))
}

func TestHTTPGatewayClient_ListBatches_NotModified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	items, err := newTestClient(server.URL).ListBatches(context.Background(), time.Now())

	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestHTTPGatewayClient_GetBatch_Gone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer server.Close()

	content, gone, err := newTestClient(server.URL).GetBatch(context.Background(), "batch-1")

	require.NoError(t, err)
	assert.True(t, gone)
	assert.Nil(t, content)
}
