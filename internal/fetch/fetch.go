// ABOUTME: HTTP fetcher with support for conditional requests using ETag and Last-Modified headers.
// ABOUTME: Built on resty with retries, SSRF protection and a response size limit; failures surface as *Error.

package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const MaxResponseSize = 10 * 1024 * 1024 // 10MB

// DefaultUserAgent identifies the poller to upstream servers.
const DefaultUserAgent = "syndicate/1.0 (RSS syndication)"

// Result contains the response from an HTTP fetch operation.
type Result struct {
	Body         []byte
	ETag         string
	LastModified string
	NotModified  bool
	StatusCode   int
}

// Error is a failed fetch: transport failure, blocked address, oversized
// body, or a status other than 200/304. StatusCode is zero when no
// response was received.
type Error struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var (
	// ErrPrivateAddress is returned when the feed host resolves to a private range.
	ErrPrivateAddress = errors.New("access to private IP ranges is not allowed")
	// ErrTooLarge is returned when the body exceeds the configured limit.
	ErrTooLarge = errors.New("response too large")
	// ErrUnexpectedStatus is returned for statuses other than 200 and 304.
	ErrUnexpectedStatus = errors.New("unexpected status code")
)

// Options configures a Fetcher. Zero values select the defaults.
type Options struct {
	Timeout      time.Duration
	Retries      int
	RetryWait    time.Duration
	UserAgent    string
	MaxBytes     int
	AllowPrivate bool
	Logger       zerolog.Logger
}

// Fetcher performs conditional GETs of feed URLs.
type Fetcher struct {
	client       *resty.Client
	userAgent    string
	allowPrivate bool
}

// New creates a Fetcher.
func New(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = 500 * time.Millisecond
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = MaxResponseSize
	}

	client := resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.Retries).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(10 * opts.RetryWait).
		SetResponseBodyLimit(opts.MaxBytes).
		SetLogger(restyLogger{opts.Logger}).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, resty.ErrResponseBodyTooLarge)
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})

	return &Fetcher{
		client:       client,
		userAgent:    opts.UserAgent,
		allowPrivate: opts.AllowPrivate,
	}
}

// isPrivateIP checks if an IP address is in a private range (excluding loopback for tests).
func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() {
		return false
	}
	return ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}

// Fetch retrieves a URL with optional conditional request headers.
// If etag is provided, sets If-None-Match header.
// If lastModified is provided, sets If-Modified-Since header.
// Returns NotModified=true for 304 responses.
// Any other failure is returned as *Error.
func (f *Fetcher) Fetch(ctx context.Context, urlStr string, etag, lastModified *string) (*Result, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, &Error{URL: urlStr, Err: fmt.Errorf("invalid URL: %w", err)}
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, &Error{URL: urlStr, Err: fmt.Errorf("unsupported scheme %q", parsedURL.Scheme)}
	}

	if !f.allowPrivate {
		if ips, err := net.DefaultResolver.LookupIP(ctx, "ip", parsedURL.Hostname()); err == nil {
			for _, ip := range ips {
				if isPrivateIP(ip) {
					return nil, &Error{URL: urlStr, Err: ErrPrivateAddress}
				}
			}
		}
	}

	req := f.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", f.userAgent).
		SetHeader("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	if etag != nil && *etag != "" {
		req.SetHeader("If-None-Match", *etag)
	}
	if lastModified != nil && *lastModified != "" {
		req.SetHeader("If-Modified-Since", *lastModified)
	}

	resp, err := req.Get(urlStr)
	if err != nil {
		if errors.Is(err, resty.ErrResponseBodyTooLarge) {
			return nil, &Error{URL: urlStr, Err: fmt.Errorf("%w (exceeds %d bytes)", ErrTooLarge, f.client.ResponseBodyLimit)}
		}
		return nil, &Error{URL: urlStr, Err: err}
	}

	switch resp.StatusCode() {
	case http.StatusNotModified:
		return &Result{NotModified: true, StatusCode: http.StatusNotModified}, nil
	case http.StatusOK:
		return &Result{
			Body:         resp.Body(),
			ETag:         resp.Header().Get("ETag"),
			LastModified: resp.Header().Get("Last-Modified"),
			StatusCode:   http.StatusOK,
		}, nil
	default:
		return nil, &Error{URL: urlStr, StatusCode: resp.StatusCode(), Err: ErrUnexpectedStatus}
	}
}

// restyLogger routes resty's retry and transport messages to zerolog.
type restyLogger struct {
	log zerolog.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) { l.log.Error().Msgf(format, v...) }
func (l restyLogger) Warnf(format string, v ...interface{})  { l.log.Warn().Msgf(format, v...) }
func (l restyLogger) Debugf(format string, v ...interface{}) { l.log.Debug().Msgf(format, v...) }
