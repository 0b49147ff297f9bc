// Package controller implements the offline cache controller: it decides,
// for every intercepted request, whether to go to network, to cache, or to
// fall back between the two, and keeps the cache stores populated and
// pruned.
//
// The controller has three lifecycle phases. Install opens the static store
// and precaches the app-shell manifest. Activate prunes store namespaces
// left behind by prior generations. After that every request is handled
// statelessly by the fetch dispatch in fetch.go.
package controller

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/initiative-app/offline-edge/internal/classify"
	"github.com/initiative-app/offline-edge/internal/logging"
	"github.com/initiative-app/offline-edge/internal/metrics"
	"github.com/initiative-app/offline-edge/internal/store"
	"github.com/initiative-app/offline-edge/internal/upstream"
)

// shellKey is the logical static-store key for the last good navigation
// document.
const shellKey = "index.html"

// Controller routes intercepted requests through the per-class cache
// policies.
type Controller struct {
	classifier atomic.Pointer[classify.Classifier]

	registry   store.Registry
	static     store.Store
	data       store.Store
	staticName string
	dataName   string

	client      *upstream.Client
	collector   *metrics.Collector
	fill        singleflight.Group
	maxBodySize int64
}

// Config holds controller configuration.
type Config struct {
	Classifier *classify.Classifier
	Registry   store.Registry
	Client     *upstream.Client
	Collector  *metrics.Collector

	// CachePrefix and StaticVersion name the two stores:
	// "<prefix>-static-<version>" and "<prefix>-data". Only the static
	// store is versioned; the data store survives app releases.
	CachePrefix   string
	StaticVersion string

	// MaxBodySize bounds what gets written to a store. Larger responses
	// are still relayed, just never cached.
	MaxBodySize int64
}

// New creates a controller and opens its two stores.
func New(cfg Config) (*Controller, error) {
	if cfg.Classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("store registry is required")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("upstream client is required")
	}

	prefix := cfg.CachePrefix
	if prefix == "" {
		prefix = "initiative"
	}
	version := cfg.StaticVersion
	if version == "" {
		version = "v1"
	}

	maxBodySize := cfg.MaxBodySize
	if maxBodySize <= 0 {
		maxBodySize = 1 << 20 // 1MB
	}

	collector := cfg.Collector
	if collector == nil {
		collector = metrics.NewCollector()
	}

	c := &Controller{
		registry:    cfg.Registry,
		staticName:  prefix + "-static-" + version,
		dataName:    prefix + "-data",
		client:      cfg.Client,
		collector:   collector,
		maxBodySize: maxBodySize,
	}
	c.classifier.Store(cfg.Classifier)

	var err error
	if c.static, err = cfg.Registry.Open(c.staticName); err != nil {
		return nil, fmt.Errorf("open static store: %w", err)
	}
	if c.data, err = cfg.Registry.Open(c.dataName); err != nil {
		return nil, fmt.Errorf("open data store: %w", err)
	}
	return c, nil
}

// SwapClassifier atomically replaces the classification patterns, used on
// config reload. In-flight requests finish with the classifier they
// started with.
func (c *Controller) SwapClassifier(cl *classify.Classifier) {
	c.classifier.Store(cl)
}

// StoreNames returns the two current store namespace names.
func (c *Controller) StoreNames() (staticName, dataName string) {
	return c.staticName, c.dataName
}

// Stores returns the static and data stores, for the admin surface.
func (c *Controller) Stores() (static, data store.Store) {
	return c.static, c.data
}

// Install precaches the static asset manifest from the origin. It is
// best-effort and must not gate serving: callers run it in the background
// and the controller answers fetches immediately.
func (c *Controller) Install(ctx context.Context) {
	assets := c.classifier.Load().StaticAssets()
	if len(assets) == 0 {
		return
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, path := range assets {
		path := path
		g.Go(func() error {
			if err := c.precache(ctx, path); err != nil {
				logging.Warn("precache failed",
					zap.String("path", path), zap.Error(err))
			}
			return nil
		})
	}
	g.Wait()

	logging.Info("install complete",
		zap.String("store", c.staticName),
		zap.Int("manifest", len(assets)),
		zap.Int("cached", c.static.Len()))
}

// precache fetches one manifest asset with retry and stores it on success.
func (c *Controller) precache(ctx context.Context, path string) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)

	return backoff.Retry(func() error {
		resp, err := c.client.FetchPath(ctx, path)
		if err != nil {
			return err
		}
		entry, err := snapshot(resp)
		if err != nil {
			return err
		}
		if entry.StatusCode < 200 || entry.StatusCode >= 300 {
			// A 404 asset won't improve with retries.
			return backoff.Permanent(fmt.Errorf("unexpected status %d", entry.StatusCode))
		}
		c.store(c.static, path, entry)
		return nil
	}, policy)
}

// Activate deletes every store namespace that is not one of the two
// current stores, then the controller takes over serving.
func (c *Controller) Activate(ctx context.Context) error {
	names, err := c.registry.Namespaces()
	if err != nil {
		return fmt.Errorf("enumerate store namespaces: %w", err)
	}

	for _, name := range names {
		if name == c.staticName || name == c.dataName {
			continue
		}
		if err := c.registry.Drop(name); err != nil {
			logging.Warn("failed to drop stale store",
				zap.String("store", name), zap.Error(err))
			continue
		}
		logging.Info("dropped stale store", zap.String("store", name))
	}
	return nil
}

// dataKey builds the data-store key for a request: method, path and query,
// hashed for a fixed-length key.
func dataKey(r *http.Request) string {
	var b strings.Builder
	b.WriteString(r.Method)
	b.WriteByte('|')
	b.WriteString(r.URL.Path)
	if r.URL.RawQuery != "" {
		b.WriteByte('?')
		b.WriteString(r.URL.RawQuery)
	}
	hash := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%x", hash)
}

// snapshot drains a response into a store entry. The response body is
// closed.
func snapshot(resp *http.Response) (*store.Entry, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	headers := make(http.Header, len(resp.Header))
	for k, vv := range resp.Header {
		headers[k] = append(vv[:0:0], vv...)
	}
	return &store.Entry{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       body,
		StoredAt:   time.Now(),
	}, nil
}

// store writes an entry if it fits the size bound. Writes are best-effort;
// a failed write never affects the response already in hand.
func (c *Controller) store(s store.Store, key string, entry *store.Entry) {
	if int64(len(entry.Body)) > c.maxBodySize {
		return
	}
	s.Set(key, entry.Clone())
}
