// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/zsyncgo/zsyncgo/pkg/zsync"
)

// Options configures a Client. Zero values pick the same defaults
// APTlantis's internal/downloader.NewDownloader uses for its transport and
// retry settings.
type Options struct {
	Timeout        time.Duration
	Retries        int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	UserAgent      string
	Logger         *slog.Logger
}

// Client is the module's concrete pkg/zsync.HTTPCollaborator.
type Client struct {
	http      *http.Client
	retries   int
	backoff   backoff
	userAgent string
	logger    *slog.Logger
}

var _ zsync.HTTPCollaborator = (*Client)(nil)

// New builds a Client whose transport is tuned for many concurrent range
// requests against one or a few origins, the way
// APTlantis's internal/downloader.NewDownloader configures http.Transport.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	retries := opts.Retries
	if retries <= 0 {
		retries = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "zsyncgo/1.0"
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		http:      &http.Client{Transport: transport, Timeout: timeout},
		retries:   retries,
		backoff:   newBackoff(opts.BackoffInitial, opts.BackoffMax),
		userAgent: userAgent,
		logger:    logger,
	}
}

// Get fetches url with retry on transient failures, optionally teeing the
// raw bytes to savePath as they are read (spec §6.1, used for `-k` and for
// control-document retrieval).
func (c *Client) Get(ctx context.Context, url, savePath string) (io.ReadCloser, string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		resp, err := c.doGet(ctx, url)
		if err == nil {
			body := resp.Body
			postRedirect := url
			if resp.Request != nil && resp.Request.URL != nil {
				postRedirect = resp.Request.URL.String()
			}
			requestsTotal.WithLabelValues("ok").Inc()

			if savePath == "" {
				return body, postRedirect, nil
			}
			f, ferr := os.Create(savePath)
			if ferr != nil {
				body.Close()
				return nil, "", fmt.Errorf("httpfetch: saving control document to %s: %w", savePath, ferr)
			}
			return &teeReadCloser{r: io.TeeReader(body, f), body: body, f: f}, postRedirect, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}
		if attempt < c.retries {
			requestsTotal.WithLabelValues("retry").Inc()
			retriesTotal.Inc()
			d := c.backoff.delay(attempt)
			c.logger.Warn("retrying HTTP GET", "url", url, "attempt", attempt, "error", err, "backoff", d)
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return nil, "", ctx.Err()
			}
		}
	}
	requestsTotal.WithLabelValues("error").Inc()
	return nil, "", fmt.Errorf("httpfetch: GET %s: %w", url, lastErr)
}

func (c *Client) doGet(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return resp, nil
}

// RangeFetchStart begins a multi-range fetch handle against url (spec
// §6.1). Range requests are issued lazily, one per registered byte range,
// as RangeDownloader calls GetRangeBlock.
func (c *Client) RangeFetchStart(ctx context.Context, url, referrer string) (zsync.RangeFetch, error) {
	return &rangeFetch{client: c, url: url}, nil
}

// teeReadCloser tees reads into f while reading from body, closing both on
// Close.
type teeReadCloser struct {
	r    io.Reader
	body io.ReadCloser
	f    *os.File
}

func (t *teeReadCloser) Read(p []byte) (int, error) { return t.r.Read(p) }

func (t *teeReadCloser) Close() error {
	bodyErr := t.body.Close()
	fErr := t.f.Close()
	if bodyErr != nil {
		return bodyErr
	}
	return fErr
}
