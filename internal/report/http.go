package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

// HTTP delivery defaults.
const (
	DefaultRetries    = 3
	DefaultBackoff    = time.Second
	DefaultMaxBackoff = 30 * time.Second
	DefaultTimeout    = 30 * time.Second
)

// StatusError is returned when the collector answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("server returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Retryable reports whether the request may succeed if repeated.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// HTTPSink POSTs documents to a collector endpoint.
type HTTPSink struct {
	url        string
	token      string
	userAgent  string
	gzip       bool
	retries    int
	backoff    time.Duration
	maxBackoff time.Duration
	timeout    time.Duration
	client     *http.Client
	logger     *zap.Logger
}

// HTTPOption configures an HTTPSink.
type HTTPOption func(*HTTPSink)

// WithToken sends "Authorization: Bearer <token>".
func WithToken(token string) HTTPOption { return func(s *HTTPSink) { s.token = token } }

// WithGzip compresses request bodies.
func WithGzip(on bool) HTTPOption { return func(s *HTTPSink) { s.gzip = on } }

// WithRetries sets how many times a failed delivery is repeated.
func WithRetries(n int) HTTPOption { return func(s *HTTPSink) { s.retries = max(n, 0) } }

// WithBackoff sets the initial delay between attempts. It doubles after
// each failure up to DefaultMaxBackoff.
func WithBackoff(d time.Duration) HTTPOption { return func(s *HTTPSink) { s.backoff = d } }

// WithTimeout bounds each attempt, including reading the response.
func WithTimeout(d time.Duration) HTTPOption {
	return func(s *HTTPSink) { s.timeout = d }
}

// WithHTTPClient replaces the default client. WithTimeout is ignored.
func WithHTTPClient(c *http.Client) HTTPOption { return func(s *HTTPSink) { s.client = c } }

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) HTTPOption { return func(s *HTTPSink) { s.userAgent = ua } }

// WithHTTPLogger sets the logger.
func WithHTTPLogger(l *zap.Logger) HTTPOption { return func(s *HTTPSink) { s.logger = l } }

// NewHTTPSink validates rawURL and creates a sink for it.
func NewHTTPSink(rawURL string, opts ...HTTPOption) (*HTTPSink, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse report url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("report url %q must be an absolute http or https URL", rawURL)
	}
	s := &HTTPSink{
		url:        u.String(),
		userAgent:  "hsnap",
		retries:    DefaultRetries,
		backoff:    DefaultBackoff,
		maxBackoff: DefaultMaxBackoff,
		timeout:    DefaultTimeout,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: s.timeout}
	}
	return s, nil
}

// Send POSTs doc, retrying network errors, 5xx and 429 with exponential
// backoff. Other 4xx answers fail immediately.
func (s *HTTPSink) Send(ctx context.Context, doc Document) error {
	body := doc.Body
	if s.gzip {
		var err error
		if body, err = gzipBytes(body); err != nil {
			return fmt.Errorf("compress document: %w", err)
		}
	}

	backoff := s.backoff
	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			wait := backoff
			if ra := retryAfter(lastErr); ra > 0 {
				wait = min(ra, s.maxBackoff)
			}
			s.logger.Warn("snapshot delivery failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", wait),
				zap.Error(lastErr),
			)
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return fmt.Errorf("deliver snapshot: %w (last error: %v)", ctx.Err(), lastErr)
			case <-t.C:
			}
			backoff = time.Duration(math.Min(float64(backoff*2), float64(s.maxBackoff)))
		}

		err := s.post(ctx, doc, body)
		if err == nil {
			s.logger.Info("snapshot delivered",
				zap.String("url", s.url),
				zap.Int("bytes", len(body)),
				zap.Int("attempts", attempt+1),
			)
			return nil
		}
		lastErr = err
		if !retryable(ctx, err) {
			break
		}
	}
	return fmt.Errorf("deliver snapshot to %s: %w", s.url, lastErr)
}

// retryAfterError carries a server-requested delay.
type retryAfterError struct {
	*StatusError
	after time.Duration
}

func (e *retryAfterError) Unwrap() error { return e.StatusError }

func retryAfter(err error) time.Duration {
	var ra *retryAfterError
	if errors.As(err, &ra) {
		return ra.after
	}
	return 0
}

// permanentError marks failures that repeating cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var pe *permanentError
	if errors.As(err, &pe) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}

func (s *HTTPSink) post(ctx context.Context, doc Document, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return &permanentError{err: err}
	}
	req.Header.Set("Content-Type", doc.ContentType)
	req.Header.Set("User-Agent", s.userAgent)
	if s.gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	se := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		return &retryAfterError{StatusError: se, after: time.Duration(secs) * time.Second}
	}
	return se
}

func gzipBytes(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(b); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
