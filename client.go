package nottorney

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/google/uuid"

	"github.com/ankihub/nottorney/internal/transport"
)

// noteTypeCacheSize bounds Client.noteTypeCache at 32 decks' worth of
// schemas — note-type schemas change far less often than notes and are
// refetched on every review-session boot upstream, so a small bounded
// cache avoids a redundant round trip per boot without growing unbounded
// across a long-lived Client.
const noteTypeCacheSize = 32

// Client is a nottorney service client. The zero value is not usable;
// construct one with NewClient. A Client's token is per-instance state: it
// is read on every request and written by Login/Signout. spec.md §5 only
// requires that a token write never race a concurrent read; the Client
// meets that by guarding token/tokenExpiresAt with an internal mutex, so a
// host may call Login/Signout/Token concurrently with other Client methods
// without its own external locking.
type Client struct {
	transport *transport.Transport
	metrics   *Metrics
	logger    *logrus.Entry

	mediaDirFn MediaDirFunc
	storageSet bool

	mu             sync.RWMutex
	token          string
	tokenExpiresAt time.Time

	noteTypeCache *lru.Cache[uuid.UUID, []NoteType]
}

// NewClient builds a Client from the given options. It performs no
// network I/O.
func NewClient(opts ...Option) (*Client, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	logger := cfg.logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	serviceURL, _ := url.Parse(cfg.serviceURL)
	tr := transport.New(serviceURL, logger)
	if cfg.storageURL != "" {
		storageURL, _ := url.Parse(cfg.storageURL)
		tr.StorageURL = storageURL
	}

	metrics := newMetrics(cfg.registerer)
	tr.Metrics = metrics

	cache, err := lru.New[uuid.UUID, []NoteType](noteTypeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("nottorney: building note-type cache: %w", err)
	}

	c := &Client{
		transport:     tr,
		metrics:       metrics,
		logger:        logger,
		mediaDirFn:    cfg.mediaDirFn,
		storageSet:    cfg.storageURL != "",
		token:         cfg.token,
		noteTypeCache: cache,
	}
	if cfg.token != "" {
		c.tokenExpiresAt = jwtExpiry(cfg.token)
	}
	return c, nil
}

// Token returns the Client's current bearer token, or "" if signed out.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// TokenExpiresAt returns the expiry of the current token's "exp" claim, or
// the zero time if the Client has no token or the token carries no
// parseable expiry.
func (c *Client) TokenExpiresAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokenExpiresAt
}

// Login authenticates against the service and stores the resulting
// bearer token on the Client for subsequent calls.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var body struct {
		Token string `json:"access_token"`
	}
	resp, err := c.transport.Send(ctx, transport.Request{
		Method: "POST",
		Target: transport.TargetService,
		Path:   "/login",
		JSONBody: map[string]string{
			"email":    email,
			"password": password,
		},
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return nil, transport.NewHTTPError(resp)
	}
	if err := decodeJSON(resp, &body); err != nil {
		return nil, err
	}

	expiresAt := jwtExpiry(body.Token)

	c.mu.Lock()
	c.token = body.Token
	c.tokenExpiresAt = expiresAt
	c.mu.Unlock()

	c.logger.Info("login succeeded")
	return &LoginResult{Token: Token(body.Token), ExpiresAt: expiresAt}, nil
}

// Signout clears the Client's stored token. It performs no network call —
// the original source's signout is local-only, since the service has no
// session to invalidate server-side.
func (c *Client) Signout() {
	c.mu.Lock()
	c.token = ""
	c.tokenExpiresAt = time.Time{}
	c.mu.Unlock()
	c.logger.Info("signed out")
}

// requireToken returns the current token or ErrNotAuthenticated, without
// issuing any HTTP request — spec.md §7's "not-authenticated" error kind
// fails synchronously.
func (c *Client) requireToken() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" {
		return "", ErrNotAuthenticated
	}
	return c.token, nil
}

// jwtExpiry parses (without verifying signature — the service is the
// verifier) a JWT's "exp" claim via jwt.NewParser().ParseUnverified. An
// unparseable token yields the zero time rather than an error, since a
// Client must still be usable with an opaque, non-JWT token supplied via
// WithToken.
func jwtExpiry(token string) time.Time {
	if token == "" {
		return time.Time{}
	}
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	expUnix, err := claims.GetExpirationTime()
	if err != nil || expUnix == nil {
		return time.Time{}
	}
	return expUnix.Time
}
