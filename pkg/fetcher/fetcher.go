package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/menta2k/cat-tagline/pkg/types"
)

const (
	// DefaultURL serves a random cat image on every GET
	DefaultURL = "https://cataas.com/cat"

	DefaultTimeout  = 10 * time.Second
	DefaultMaxBytes = 20 << 20
	userAgent       = "cat-tagline/1.0 (+https://github.com/menta2k/cat-tagline)"
)

var (
	ErrEmptyBody = errors.New("image service returned an empty body")
	ErrTooLarge  = errors.New("image exceeds size limit")
	ErrNotImage  = errors.New("image service did not return an image")
)

// StatusError is returned when the image service answers with a non-200 status
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("image service returned HTTP %d %s", e.Code, http.StatusText(e.Code))
}

// Fetcher downloads one random image per call
type Fetcher struct {
	url        string
	maxBytes   int64
	httpClient *http.Client
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithHTTPClient replaces the default client
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.httpClient = c }
}

// WithMaxBytes caps the accepted body size
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// New creates a fetcher for imageURL. The default client enforces timeout.
func New(imageURL string, timeout time.Duration, opts ...Option) (*Fetcher, error) {
	if imageURL == "" {
		imageURL = DefaultURL
	}
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	f := &Fetcher{
		url:        imageURL,
		maxBytes:   DefaultMaxBytes,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// URL returns the endpoint the fetcher reads from
func (f *Fetcher) URL() string {
	return f.url
}

// Fetch performs a single GET and returns the image. There is no retry.
func (f *Fetcher) Fetch(ctx context.Context) (*types.CatImage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyBody
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxBytes)
	}

	contentType := detectContentType(resp.Header.Get("Content-Type"), data)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%w (Content-Type: %s)", ErrNotImage, contentType)
	}

	return &types.CatImage{
		Data:        data,
		ContentType: contentType,
		SourceURL:   f.url,
		FetchedAt:   time.Now(),
	}, nil
}

// detectContentType trusts an image/* header and sniffs the bytes otherwise
func detectContentType(header string, data []byte) string {
	if i := strings.Index(header, ";"); i >= 0 {
		header = header[:i]
	}
	header = strings.ToLower(strings.TrimSpace(header))
	if strings.HasPrefix(header, "image/") {
		return header
	}
	return mimetype.Detect(data).String()
}
