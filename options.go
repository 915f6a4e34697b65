package nottorney

import (
	"fmt"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/google/uuid"
)

// defaultServiceURL is the service's production API base, per spec.md §6.
const defaultServiceURL = "https://ankihub.supabase.co/functions/v1/addon-auth"

// MediaDirFunc resolves the local directory DownloadMedia should write a
// deck's media files into. Returning an error aborts the whole batch; this
// is the one configuration a host must supply before calling DownloadMedia.
type MediaDirFunc func(deckID uuid.UUID) (string, error)

type config struct {
	token      string
	serviceURL string
	storageURL string
	mediaDirFn MediaDirFunc
	logger     *logrus.Entry
	registerer prometheus.Registerer
}

// Option configures a Client at construction time. There is deliberately
// no environment-variable or CLI surface (spec.md §6) — every knob is a
// functional option passed to NewClient.
type Option func(*config)

// WithToken preseeds a Client with a bearer token obtained out of band
// (e.g. restored from host-side storage), skipping Login.
func WithToken(token string) Option {
	return func(c *config) { c.token = token }
}

// WithServiceURL overrides the default service API base URL.
func WithServiceURL(rawURL string) Option {
	return func(c *config) { c.serviceURL = rawURL }
}

// WithStorageURL configures the signed-storage bucket base URL. Omitting
// it is valid for a Client that never downloads snapshots or media; calls
// that need it fail fast with ErrStorageNotConfigured.
func WithStorageURL(rawURL string) Option {
	return func(c *config) { c.storageURL = rawURL }
}

// WithMediaDir supplies the local-media-directory resolver DownloadMedia
// uses. Omitting it is valid for a Client that never downloads media.
func WithMediaDir(fn MediaDirFunc) Option {
	return func(c *config) { c.mediaDirFn = fn }
}

// WithLogger overrides the default (package-standard) logrus entry.
func WithLogger(logger *logrus.Entry) Option {
	return func(c *config) { c.logger = logger }
}

// WithMetricsRegisterer registers the Client's Prometheus collectors
// against reg. Omitting it yields a Client whose Metrics methods are all
// no-ops.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(c *config) { c.registerer = reg }
}

func newConfig(opts []Option) (*config, error) {
	c := &config{serviceURL: defaultServiceURL}
	for _, opt := range opts {
		opt(c)
	}
	if _, err := url.Parse(c.serviceURL); err != nil {
		return nil, fmt.Errorf("nottorney: invalid service URL %q: %w", c.serviceURL, err)
	}
	if c.storageURL != "" {
		if _, err := url.Parse(c.storageURL); err != nil {
			return nil, fmt.Errorf("nottorney: invalid storage URL %q: %w", c.storageURL, err)
		}
	}
	return c, nil
}
