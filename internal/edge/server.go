// Package edge wires the offline cache controller into an HTTP server:
// one listener for intercepted client traffic, one for the admin/ops
// surface.
package edge

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/initiative-app/offline-edge/internal/classify"
	"github.com/initiative-app/offline-edge/internal/config"
	"github.com/initiative-app/offline-edge/internal/controller"
	"github.com/initiative-app/offline-edge/internal/logging"
	"github.com/initiative-app/offline-edge/internal/metrics"
	"github.com/initiative-app/offline-edge/internal/store"
	"github.com/initiative-app/offline-edge/internal/upstream"
)

// Server hosts the controller and admin endpoints.
type Server struct {
	cfg         *config.Config
	controller  *controller.Controller
	registry    store.Registry
	client      *upstream.Client
	probe       *upstream.Probe
	collector   *metrics.Collector
	mainServer  *http.Server
	adminServer *http.Server
	watcher     *config.Watcher
}

// NewServer builds a server from configuration.
func NewServer(cfg *config.Config) (*Server, error) {
	classifier, err := newClassifier(&cfg.Policy)
	if err != nil {
		return nil, err
	}

	registry, err := newRegistry(&cfg.Cache)
	if err != nil {
		return nil, err
	}

	transportCfg := upstream.DefaultTransportConfig
	transportCfg.InsecureSkipVerify = cfg.Upstream.InsecureSkipVerify
	client, err := upstream.New(upstream.Config{
		Origin:    cfg.Upstream.Origin,
		Transport: upstream.NewTransport(transportCfg),
		Timeout:   cfg.Upstream.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("upstream client: %w", err)
	}

	collector := metrics.NewCollector()

	ctrl, err := controller.New(controller.Config{
		Classifier:    classifier,
		Registry:      registry,
		Client:        client,
		Collector:     collector,
		CachePrefix:   cfg.Cache.Prefix,
		StaticVersion: cfg.Cache.StaticVersion,
		MaxBodySize:   cfg.Cache.MaxBodySize,
	})
	if err != nil {
		registry.Close()
		return nil, fmt.Errorf("controller: %w", err)
	}

	probe := upstream.NewProbe(client, cfg.Upstream.HealthPath, cfg.Upstream.ProbeInterval,
		collector.SetUpstreamReachable)

	s := &Server{
		cfg:        cfg,
		controller: ctrl,
		registry:   registry,
		client:     client,
		probe:      probe,
		collector:  collector,
	}

	s.mainServer = &http.Server{
		Addr:              cfg.Listen,
		Handler:           RequestID()(AccessLog()(ctrl)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.adminServer = &http.Server{
		Addr:              cfg.Admin.Listen,
		Handler:           s.adminHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// newClassifier compiles the classification patterns from policy config.
func newClassifier(p *config.PolicyConfig) (*classify.Classifier, error) {
	cl, err := classify.New(p.APIPrefix, p.AuthPatterns, p.CacheablePatterns, p.StaticAssets)
	if err != nil {
		return nil, fmt.Errorf("policy patterns: %w", err)
	}
	return cl, nil
}

// newRegistry builds the configured store backend.
func newRegistry(c *config.CacheConfig) (store.Registry, error) {
	switch c.Backend {
	case "sqlite":
		return store.OpenSQLiteRegistry(c.SQLitePath)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		})
		return store.NewRedisRegistry(client, c.TTL), nil
	default:
		return store.NewMemoryRegistry(c.MaxEntries, c.TTL), nil
	}
}

// WatchConfig wires a config watcher so pattern changes apply without a
// restart. Store and listener settings still require one.
func (s *Server) WatchConfig(path string) error {
	w, err := config.NewWatcher(path)
	if err != nil {
		return err
	}
	w.OnChange(func(cfg *config.Config) {
		cl, err := newClassifier(&cfg.Policy)
		if err != nil {
			logging.Error("reload rejected", zap.Error(err))
			return
		}
		s.controller.SwapClassifier(cl)
		logging.Info("classification patterns reloaded")
	})
	if err := w.Start(); err != nil {
		w.Stop()
		return err
	}
	s.watcher = w
	return nil
}

// Start runs the lifecycle (activate, then background install) and brings
// up both listeners without blocking.
func (s *Server) Start() error {
	ctx := context.Background()

	// Prune stores left behind by prior versions, then take over.
	if err := s.controller.Activate(ctx); err != nil {
		return err
	}

	// Precaching must not delay serving.
	go s.controller.Install(ctx)

	s.probe.Start()

	go func() {
		logging.Info("edge listening", zap.String("addr", s.cfg.Listen))
		if err := s.mainServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("edge server error", zap.Error(err))
		}
	}()
	go func() {
		logging.Info("admin listening", zap.String("addr", s.cfg.Admin.Listen))
		if err := s.adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("admin server error", zap.Error(err))
		}
	}()

	return nil
}

// Run starts the server and blocks until SIGINT/SIGTERM.
func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logging.Info("shutting down", zap.String("signal", sig.String()))

	return s.Shutdown(30 * time.Second)
}

// Shutdown gracefully shuts down the servers.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.watcher != nil {
		s.watcher.Stop()
	}
	s.probe.Stop()

	if err := s.adminServer.Shutdown(ctx); err != nil {
		logging.Warn("admin shutdown error", zap.Error(err))
	}
	if err := s.mainServer.Shutdown(ctx); err != nil {
		return err
	}
	return s.registry.Close()
}
