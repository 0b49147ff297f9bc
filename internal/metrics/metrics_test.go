package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRecordRequest(t *testing.T) {
	c := NewCollector()
	c.RecordRequest("cacheable_api", 200, 15*time.Millisecond)
	c.RecordRequest("cacheable_api", 200, 30*time.Millisecond)
	c.RecordRequest("auth", 401, 5*time.Millisecond)

	snap := c.Snapshot()
	if snap.RequestsTotal["cacheable_api|200"] != 2 {
		t.Errorf("cacheable_api|200 = %d", snap.RequestsTotal["cacheable_api|200"])
	}
	if snap.RequestsTotal["auth|401"] != 1 {
		t.Errorf("auth|401 = %d", snap.RequestsTotal["auth|401"])
	}

	hd := snap.RequestDurations["cacheable_api"]
	if hd == nil || hd.Count != 2 {
		t.Fatalf("duration histogram = %+v", hd)
	}
	if hd.Sum <= 0 {
		t.Error("histogram sum not recorded")
	}
}

func TestCacheCounters(t *testing.T) {
	c := NewCollector()
	c.RecordCacheHit("static_asset")
	c.RecordCacheHit("static_asset")
	c.RecordCacheMiss("static_asset")
	c.RecordFallback("cacheable_api")
	c.RecordNetworkFailure("cacheable_api")

	snap := c.Snapshot()
	if snap.CacheHits["static_asset"] != 2 {
		t.Errorf("hits = %d", snap.CacheHits["static_asset"])
	}
	if snap.CacheMisses["static_asset"] != 1 {
		t.Errorf("misses = %d", snap.CacheMisses["static_asset"])
	}
	if snap.CacheFallbacks["cacheable_api"] != 1 {
		t.Errorf("fallbacks = %d", snap.CacheFallbacks["cacheable_api"])
	}
	if snap.NetworkFailures["cacheable_api"] != 1 {
		t.Errorf("network failures = %d", snap.NetworkFailures["cacheable_api"])
	}
}

func TestUpstreamReachable(t *testing.T) {
	c := NewCollector()
	if c.Snapshot().UpstreamReachable != 0 {
		t.Error("initial reachability should be 0")
	}
	c.SetUpstreamReachable(true)
	if c.Snapshot().UpstreamReachable != 1 {
		t.Error("reachability not set")
	}
	c.SetUpstreamReachable(false)
	if c.Snapshot().UpstreamReachable != 0 {
		t.Error("reachability not cleared")
	}
}

func TestWritePrometheus(t *testing.T) {
	c := NewCollector()
	c.RecordRequest("navigation", 200, 10*time.Millisecond)
	c.RecordCacheHit("navigation")
	c.SetUpstreamReachable(true)

	rec := httptest.NewRecorder()
	c.WritePrometheus(rec)

	body := rec.Body.String()
	for _, want := range []string{
		`edge_requests_total{class="navigation",status="200"} 1`,
		`edge_cache_hits_total{class="navigation"} 1`,
		`edge_upstream_reachable 1`,
		"# TYPE edge_request_duration_seconds histogram",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q\n%s", want, body)
		}
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	c := NewCollector()
	c.RecordCacheHit("auth")
	snap := c.Snapshot()
	snap.CacheHits["auth"] = 99

	if c.Snapshot().CacheHits["auth"] != 1 {
		t.Error("snapshot mutation leaked into collector")
	}
}
