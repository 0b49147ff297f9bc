package controller

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/initiative-app/offline-edge/internal/classify"
	"github.com/initiative-app/offline-edge/internal/errors"
	"github.com/initiative-app/offline-edge/internal/logging"
	"github.com/initiative-app/offline-edge/internal/store"
)

// ServeHTTP dispatches one intercepted request through the policy table.
// Only GET requests are considered for caching; every other method is
// forwarded to the network untouched.
func (c *Controller) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if r.Method != http.MethodGet {
		status := c.networkOnly(w, r, classify.PassThrough)
		c.collector.RecordRequest(classify.PassThrough.String(), status, time.Since(start))
		return
	}

	class := c.classifier.Load().Classify(r)

	var status int
	switch class {
	case classify.Auth, classify.OtherAPI, classify.PassThrough:
		status = c.networkOnly(w, r, class)
	case classify.CacheableAPI:
		status = c.networkFirstData(w, r)
	case classify.Navigation:
		status = c.networkFirstShell(w, r)
	case classify.StaticAsset:
		status = c.cacheFirst(w, r)
	}

	c.collector.RecordRequest(class.String(), status, time.Since(start))
}

// networkOnly always fetches from the network and never touches a store.
func (c *Controller) networkOnly(w http.ResponseWriter, r *http.Request, class classify.Class) int {
	resp, err := c.client.Fetch(r)
	if err != nil {
		c.collector.RecordNetworkFailure(class.String())
		return writeFetchError(w, err)
	}
	entry, err := snapshot(resp)
	if err != nil {
		c.collector.RecordNetworkFailure(class.String())
		return writeFetchError(w, err)
	}
	return serveEntry(w, entry, false)
}

// networkFirstData attempts the network, writes successful responses
// through to the data store, and falls back to a previously cached
// response when the network fails. With neither, the failure propagates.
func (c *Controller) networkFirstData(w http.ResponseWriter, r *http.Request) int {
	class := classify.CacheableAPI.String()
	key := dataKey(r)

	entry, err := c.fetchSnapshot(r)
	if err == nil {
		c.store(c.data, key, entry)
		return serveEntry(w, entry, false)
	}

	c.collector.RecordNetworkFailure(class)
	if cached, ok := c.data.Get(key); ok {
		c.collector.RecordFallback(class)
		return serveEntry(w, cached, true)
	}

	logging.Debug("network failed with no cached data",
		zap.String("path", r.URL.Path), zap.Error(err))
	errors.ErrNoCachedData.WriteJSON(w)
	return errors.ErrNoCachedData.Code
}

// networkFirstShell attempts the network and keeps the static store's
// app-shell entry current; offline navigations boot from the last good
// shell.
func (c *Controller) networkFirstShell(w http.ResponseWriter, r *http.Request) int {
	class := classify.Navigation.String()

	entry, err := c.fetchSnapshot(r)
	if err == nil {
		c.store(c.static, shellKey, entry)
		return serveEntry(w, entry, false)
	}

	c.collector.RecordNetworkFailure(class)
	if cached, ok := c.static.Get(shellKey); ok {
		c.collector.RecordFallback(class)
		return serveEntry(w, cached, true)
	}
	return writeFetchError(w, err)
}

// cacheFirst serves manifest assets from the static store, filling it on
// miss. Concurrent misses for the same path share one upstream fetch.
func (c *Controller) cacheFirst(w http.ResponseWriter, r *http.Request) int {
	class := classify.StaticAsset.String()
	key := r.URL.Path

	if cached, ok := c.static.Get(key); ok {
		c.collector.RecordCacheHit(class)
		return serveEntry(w, cached, true)
	}
	c.collector.RecordCacheMiss(class)

	v, err, _ := c.fill.Do(key, func() (interface{}, error) {
		entry, err := c.fetchSnapshot(r)
		if err != nil {
			return nil, err
		}
		if entry.StatusCode >= 200 && entry.StatusCode < 300 {
			c.store(c.static, key, entry)
		}
		return entry, nil
	})
	if err != nil {
		c.collector.RecordNetworkFailure(class)
		return writeFetchError(w, err)
	}
	return serveEntry(w, v.(*store.Entry), false)
}

// fetchSnapshot performs the upstream fetch and buffers the full response.
func (c *Controller) fetchSnapshot(r *http.Request) (*store.Entry, error) {
	resp, err := c.client.Fetch(r)
	if err != nil {
		return nil, err
	}
	return snapshot(resp)
}

// serveEntry writes a buffered response to the client. fromCache controls
// the X-Cache header so consumers can distinguish live from cached data.
func serveEntry(w http.ResponseWriter, entry *store.Entry, fromCache bool) int {
	for key, values := range entry.Headers {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	if fromCache {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	w.WriteHeader(entry.StatusCode)
	w.Write(entry.Body)
	return entry.StatusCode
}

// writeFetchError surfaces a failed fetch to the caller. There is no
// silent empty-response fallback.
func writeFetchError(w http.ResponseWriter, err error) int {
	if stderrors.Is(err, context.DeadlineExceeded) {
		errors.ErrGatewayTimeout.WriteJSON(w)
		return errors.ErrGatewayTimeout.Code
	}
	e := errors.ErrBadGateway.WithDetails(err.Error())
	e.WriteJSON(w)
	return e.Code
}
