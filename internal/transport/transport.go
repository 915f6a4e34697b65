// Package transport is the single HTTP invocation point for the nottorney
// client: request construction, bearer-token injection, timeout selection,
// and transient-failure retry. It does not decode bodies, does not know
// about pagination cursors, and does not know about snapshots.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Target selects which base URL and auth policy a Request uses.
type Target int

const (
	// TargetService is the nottorney API: gets the Authorization header,
	// joined against the configured service base URL.
	TargetService Target = iota
	// TargetStorage is a signed storage bucket URL: never gets the
	// Authorization header. Path may be a full absolute URL (a signed
	// URL is already absolute) or a suffix joined to the configured
	// bucket base URL.
	TargetStorage
)

const (
	connectTimeout     = 10 * time.Second
	standardReadTimeout = 30 * time.Second
	longReadTimeout     = 600 * time.Second
)

// Metrics is the subset of observability hooks Transport needs. A nil
// Metrics is valid and every method becomes a no-op; see the root
// package's metrics.go for the concrete Prometheus-backed implementation.
type Metrics interface {
	ObserveRequest(target Target, method string, attempts int, statusCode int)
	ObserveRetry()
}

// Transport is the single HTTP invocation point described in spec.md §4.1.
type Transport struct {
	HTTPClient *http.Client
	ServiceURL *url.URL
	StorageURL *url.URL // nil if no bucket URL has been configured
	Logger     *logrus.Entry
	Metrics    Metrics
}

// New builds a Transport against the given service base URL. The storage
// bucket URL may be added later (or never) by setting StorageURL, since it
// is optional per spec.md §6.
func New(serviceURL *url.URL, logger *logrus.Entry) *Transport {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	dialer := &net.Dialer{Timeout: connectTimeout}
	return &Transport{
		HTTPClient: &http.Client{
			Transport: &http.Transport{DialContext: dialer.DialContext},
		},
		ServiceURL: serviceURL,
		Logger:     logger,
	}
}

// Request describes a single logical HTTP call, independent of retries.
type Request struct {
	Method      string
	Target      Target
	Path        string // suffix for TargetService; suffix or absolute URL for TargetStorage
	Token       string // bearer token; only injected when Target == TargetService
	Query       url.Values
	JSONBody    any // marshalled as the request body with Content-Type: application/json
	Stream      bool
	LongRunning bool
}

func (t *Transport) buildURL(req Request) (string, error) {
	switch req.Target {
	case TargetService:
		// A "next" pagination cursor without the "/api" prefix is used
		// verbatim, including scheme and host, per spec.md §9 — it may
		// name a different host than ServiceURL.
		if strings.HasPrefix(req.Path, "http://") || strings.HasPrefix(req.Path, "https://") {
			return req.Path, nil
		}
		if t.ServiceURL == nil {
			return "", fmt.Errorf("nottorney: service base URL not configured")
		}
		u := *t.ServiceURL
		u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(req.Path, "/")
		if req.Query != nil {
			u.RawQuery = req.Query.Encode()
		}
		return u.String(), nil
	case TargetStorage:
		if strings.HasPrefix(req.Path, "http://") || strings.HasPrefix(req.Path, "https://") {
			return req.Path, nil
		}
		if t.StorageURL == nil {
			return "", ErrStorageNotConfigured
		}
		u := *t.StorageURL
		u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(req.Path, "/")
		if req.Query != nil {
			u.RawQuery = req.Query.Encode()
		}
		return u.String(), nil
	default:
		return "", fmt.Errorf("nottorney: unknown transport target %d", req.Target)
	}
}

// ErrStorageNotConfigured mirrors the root package's error of the same
// name; it is re-declared here so Transport can fail fast without
// importing the root package (which would cycle back into transport).
var ErrStorageNotConfigured = fmt.Errorf("nottorney: storage bucket URL not configured")

// Send issues one logical HTTP call, retrying up to MaxAttempts times with
// a fixed RetryDelay between attempts when the underlying failure is a
// connection-establishment error or a read timeout. Non-2xx HTTP responses
// are never retried and are returned to the caller as-is, body unread,
// for the caller to classify against its own accepted status set and
// close. On every other exit path (including all retries failing) Send
// closes any response body it opened itself.
func (t *Transport) Send(ctx context.Context, req Request) (*http.Response, error) {
	rawURL, err := t.buildURL(req)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if req.JSONBody != nil {
		encoded, err := json.Marshal(req.JSONBody)
		if err != nil {
			return nil, fmt.Errorf("nottorney: encoding request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	readTimeout := standardReadTimeout
	if req.LongRunning {
		readTimeout = longReadTimeout
	}

	var lastErr error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, req.Method, rawURL, body)
		if err != nil {
			return nil, fmt.Errorf("nottorney: building request: %w", err)
		}
		if req.JSONBody != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}
		if req.Target == TargetService && req.Token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+req.Token)
		}

		// The dialer enforces the connect timeout; the context deadline
		// here bounds the remainder of the round trip (TLS handshake
		// through response headers). The same deadline keeps running
		// while the caller reads the body, for every response, and its
		// context is released only when the caller closes the body.
		attemptCtx, cancel := context.WithTimeout(ctx, readTimeout)
		httpReq = httpReq.WithContext(attemptCtx)

		resp, err := t.HTTPClient.Do(httpReq)
		if err == nil {
			resp.Body = &cancelOnCloseBody{ReadCloser: resp.Body, cancel: cancel}
			t.observe(req, attempt, resp.StatusCode)
			return resp, nil
		}
		cancel()
		lastErr = err

		if !isTransient(err) || attempt == MaxAttempts {
			break
		}

		t.Logger.WithFields(logrus.Fields{
			"method":  req.Method,
			"attempt": attempt,
			"err":     err,
		}).Warn("transient transport failure, retrying")
		if t.Metrics != nil {
			t.Metrics.ObserveRetry()
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(RetryDelay * time.Second):
		}

		// Rewind the body for the next attempt.
		if req.JSONBody != nil {
			encoded, _ := json.Marshal(req.JSONBody)
			body = bytes.NewReader(encoded)
		}
	}

	t.observe(req, MaxAttempts, 0)
	return nil, fmt.Errorf("nottorney: request to %s failed after retries: %w", rawURL, lastErr)
}

// cancelOnCloseBody ties the attempt's context cancellation to the
// caller's Close, so a streaming download is not cut short by the context
// deadline firing the instant headers arrive, yet the context is still
// released once the caller is done reading (every exit path in the
// reconciler and snapshot loader closes the body it opens).
type cancelOnCloseBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnCloseBody) Close() error {
	defer b.cancel()
	return b.ReadCloser.Close()
}

func (t *Transport) observe(req Request, attempts int, statusCode int) {
	if t.Metrics != nil {
		t.Metrics.ObserveRequest(req.Target, req.Method, attempts, statusCode)
	}
}
