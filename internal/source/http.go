package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/audio-gateway/internal/gateway"
)

const maxRedirects = 5

// HTTPFetcher downloads remote sources over HTTP(S) with a bounded body size.
type HTTPFetcher struct {
	client  *http.Client
	maxSize int64
	logger  *zap.Logger
}

// NewHTTPFetcher builds a fetcher with a total request timeout and a cap on
// downloaded bytes. maxSize <= 0 means unbounded.
func NewHTTPFetcher(timeout time.Duration, maxSize int64, logger *zap.Logger) *HTTPFetcher {
	client := &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	return &HTTPFetcher{client: client, maxSize: maxSize, logger: logger}
}

// Fetch downloads the URL body. Remote 404s map to NotFound so callers can
// distinguish a missing source from a broken upstream.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, gateway.Wrap(gateway.KindBadRequest, err, "build source request: %s", rawURL)
	}
	req.Header.Set("User-Agent", "audio-gateway/"+gateway.Version)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, gateway.Wrap(gateway.KindTimeout, err, "fetch source: %s", rawURL)
		}
		return nil, gateway.Wrap(gateway.KindUpstream, err, "fetch source: %s", rawURL)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, gateway.E(gateway.KindNotFound, "source not found: %s", rawURL)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, gateway.E(gateway.KindUpstream, "fetch source: %s returned %d", rawURL, resp.StatusCode)
	}

	if f.maxSize > 0 && resp.ContentLength > f.maxSize {
		return nil, gateway.E(gateway.KindPayloadTooLarge, "source exceeds %d bytes: %s", f.maxSize, rawURL)
	}

	reader := io.Reader(resp.Body)
	if f.maxSize > 0 {
		reader = io.LimitReader(resp.Body, f.maxSize+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		if ctx.Err() != nil {
			return nil, gateway.Wrap(gateway.KindTimeout, err, "read source body: %s", rawURL)
		}
		return nil, gateway.Wrap(gateway.KindUpstream, err, "read source body: %s", rawURL)
	}
	if f.maxSize > 0 && int64(len(data)) > f.maxSize {
		return nil, gateway.E(gateway.KindPayloadTooLarge, "source exceeds %d bytes: %s", f.maxSize, rawURL)
	}

	f.logger.Debug("fetched remote source",
		zap.String("url", rawURL),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(start)))
	return data, nil
}
