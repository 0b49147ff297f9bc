// Package classify assigns every intercepted request to exactly one cache
// policy class. Classification is a pure function of the request's method,
// path, and navigation hints; it has no side effects and is total: every
// request maps to exactly one class, evaluated in a fixed order with first
// match winning.
package classify

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// Class is the cache policy class of a request.
type Class int

const (
	// Auth covers authentication endpoints. Network-only; credentials
	// must never be replayed from a stale cache.
	Auth Class = iota
	// CacheableAPI covers list-style domain-data endpoints whose data is
	// safe to show stale. Network-first with cache fallback.
	CacheableAPI
	// OtherAPI covers every other backend API path (writes and
	// non-cacheable reads). Network-only.
	OtherAPI
	// Navigation covers full-page document loads. Network-first with
	// app-shell fallback.
	Navigation
	// PassThrough covers paths that are none of the above and not part of
	// the static asset manifest. Network-only.
	PassThrough
	// StaticAsset covers the fixed app-shell asset manifest. Cache-first.
	StaticAsset
)

func (c Class) String() string {
	switch c {
	case Auth:
		return "auth"
	case CacheableAPI:
		return "cacheable_api"
	case OtherAPI:
		return "other_api"
	case Navigation:
		return "navigation"
	case PassThrough:
		return "pass_through"
	case StaticAsset:
		return "static_asset"
	default:
		return "unknown"
	}
}

// Classes lists all classes, for metric initialization and iteration.
var Classes = []Class{Auth, CacheableAPI, OtherAPI, Navigation, PassThrough, StaticAsset}

// Classifier holds the compiled classification patterns. It is immutable
// after construction; the controller swaps the whole classifier on reload.
type Classifier struct {
	apiPrefix    string
	authPatterns []*regexp.Regexp
	cacheable    []*regexp.Regexp
	staticAssets map[string]bool
}

// New compiles a classifier from the configured patterns. authPatterns and
// cacheablePatterns are regular expressions matched against the URL path;
// staticAssets is the fixed app-shell manifest of exact paths.
func New(apiPrefix string, authPatterns, cacheablePatterns, staticAssets []string) (*Classifier, error) {
	c := &Classifier{
		apiPrefix:    apiPrefix,
		staticAssets: make(map[string]bool, len(staticAssets)),
	}

	for _, p := range authPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid auth pattern %q: %w", p, err)
		}
		c.authPatterns = append(c.authPatterns, re)
	}
	for _, p := range cacheablePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid cacheable pattern %q: %w", p, err)
		}
		c.cacheable = append(c.cacheable, re)
	}
	for _, p := range staticAssets {
		c.staticAssets[p] = true
	}
	return c, nil
}

// StaticAssets returns the manifest paths, for install-time precaching.
func (c *Classifier) StaticAssets() []string {
	paths := make([]string, 0, len(c.staticAssets))
	for p := range c.staticAssets {
		paths = append(paths, p)
	}
	return paths
}

// Classify maps a request to its policy class. First match wins:
// auth, cacheable API, other API, navigation, non-manifest pass-through,
// static asset.
func (c *Classifier) Classify(r *http.Request) Class {
	path := r.URL.Path

	for _, re := range c.authPatterns {
		if re.MatchString(path) {
			return Auth
		}
	}
	for _, re := range c.cacheable {
		if re.MatchString(path) {
			return CacheableAPI
		}
	}
	if strings.HasPrefix(path, c.apiPrefix) {
		return OtherAPI
	}
	if isNavigation(r) {
		return Navigation
	}
	if !c.staticAssets[path] {
		return PassThrough
	}
	return StaticAsset
}

// isNavigation reports whether the request is a full-page document load.
// Browsers send Sec-Fetch-Mode: navigate on navigations; older clients are
// recognized by an Accept header preferring HTML.
func isNavigation(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
