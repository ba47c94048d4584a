package models

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/openflow/dictation/internal/resilience"
)

// downloadClient is the narrow HTTP capability the manager needs; swapped
// out in tests.
type downloadClient interface {
	Get(ctx context.Context, url string) (io.ReadCloser, int64, error)
}

// retryableDownloadClient wraps hashicorp/go-retryablehttp for per-request
// retry; the manager additionally wraps every call in a resilience.Breaker
// for queue-wide fail-fast, a distinct concern.
type retryableDownloadClient struct {
	client *retryablehttp.Client
}

func newRetryableDownloadClient() *retryableDownloadClient {
	c := retryablehttp.NewClient()
	c.RetryMax = resilience.DownloadMaxRetries
	c.RetryWaitMin = resilience.DownloadBaseDelay
	c.RetryWaitMax = resilience.DownloadMaxDelay
	c.Logger = nil
	return &retryableDownloadClient{client: c}
}

func (c *retryableDownloadClient) Get(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("download %s: HTTP %d", url, resp.StatusCode)
	}
	return resp.Body, resp.ContentLength, nil
}

// progressReporter throttles Downloading status events to at most once per
// ProgressThrottleInterval or ProgressThrottleBucket percent, whichever
// comes first.
type progressReporter struct {
	lastEmit   time.Time
	lastBucket int
	emit       func(downloaded int64, total *int64, progress float64)
}

func (p *progressReporter) report(downloaded int64, total *int64) {
	progress := 0.0
	bucket := -1
	if total != nil && *total > 0 {
		progress = float64(downloaded) / float64(*total) * 100
		bucket = int(progress / ProgressThrottleBucket)
	}
	now := time.Now()
	if now.Sub(p.lastEmit) < ProgressThrottleInterval && bucket == p.lastBucket {
		return
	}
	p.lastEmit = now
	p.lastBucket = bucket
	p.emit(downloaded, total, progress)
}

// countingReader wraps a reader, invoking onRead after every chunk.
type countingReader struct {
	r      io.Reader
	total  int64
	onRead func(n int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.total += int64(n)
		c.onRead(c.total)
	}
	return n, err
}

func logDownloadStart(name, url string) {
	slog.Info("model download starting", "asset", name, "url", url)
}
