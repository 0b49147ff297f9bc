package edge

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/initiative-app/offline-edge/internal/store"
)

func TestAdminHealth(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.adminHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if _, ok := body["upstream_reachable"]; !ok {
		t.Error("missing upstream_reachable")
	}
}

func TestAdminStatus(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.adminHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Backend string                 `json:"backend"`
		Stores  map[string]store.Stats `json:"stores"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Backend != "memory" {
		t.Errorf("backend = %q", body.Backend)
	}
	if _, ok := body.Stores["initiative-static-v1"]; !ok {
		t.Error("missing static store stats")
	}
	if _, ok := body.Stores["initiative-data"]; !ok {
		t.Error("missing data store stats")
	}
}

func TestAdminMetricsExposition(t *testing.T) {
	s := newTestServer(t)
	s.collector.RecordCacheHit("static_asset")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.adminHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "edge_cache_hits_total") {
		t.Errorf("missing edge_cache_hits_total in:\n%s", rec.Body.String())
	}
}

func TestAdminCacheKeys(t *testing.T) {
	s := newTestServer(t)
	static, _ := s.controller.Stores()
	static.Set("/logo.svg", &store.Entry{StatusCode: 200, Headers: http.Header{}, Body: []byte("x")})

	req := httptest.NewRequest(http.MethodGet, "/cache/keys/initiative-static-v1", nil)
	rec := httptest.NewRecorder()
	s.adminHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Keys []string `json:"keys"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Keys) != 1 || body.Keys[0] != "/logo.svg" {
		t.Errorf("keys = %v", body.Keys)
	}

	req = httptest.NewRequest(http.MethodGet, "/cache/keys/no-such-store", nil)
	rec = httptest.NewRecorder()
	s.adminHandler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown namespace status = %d", rec.Code)
	}
}

func TestAdminCachePurge(t *testing.T) {
	s := newTestServer(t)
	static, data := s.controller.Stores()
	static.Set("/logo.svg", &store.Entry{StatusCode: 200, Headers: http.Header{}, Body: []byte("x")})
	data.Set("k", &store.Entry{StatusCode: 200, Headers: http.Header{}, Body: []byte("y")})

	req := httptest.NewRequest(http.MethodPost, "/cache/purge?store=static", nil)
	rec := httptest.NewRecorder()
	s.adminHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if static.Len() != 0 {
		t.Error("static store not purged")
	}
	if data.Len() != 1 {
		t.Error("data store should be untouched")
	}

	req = httptest.NewRequest(http.MethodPost, "/cache/purge", nil)
	rec = httptest.NewRecorder()
	s.adminHandler().ServeHTTP(rec, req)
	if data.Len() != 0 {
		t.Error("data store not purged")
	}

	req = httptest.NewRequest(http.MethodPost, "/cache/purge?store=bogus", nil)
	rec = httptest.NewRecorder()
	s.adminHandler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bogus store status = %d", rec.Code)
	}
}
