package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEdgeErrorError(t *testing.T) {
	e := New(http.StatusBadGateway, "Bad Gateway")
	if e.Error() != "Bad Gateway" {
		t.Errorf("Error() = %q, want %q", e.Error(), "Bad Gateway")
	}

	wrapped := Wrap(fmt.Errorf("dial tcp: refused"), http.StatusBadGateway, "Bad Gateway")
	if wrapped.Error() != "Bad Gateway: dial tcp: refused" {
		t.Errorf("Error() = %q", wrapped.Error())
	}
}

func TestUnwrap(t *testing.T) {
	inner := fmt.Errorf("boom")
	wrapped := Wrap(inner, 500, "Internal")
	if wrapped.Unwrap() != inner {
		t.Error("Unwrap did not return the underlying error")
	}
	if New(500, "Internal").Unwrap() != nil {
		t.Error("Unwrap on plain error should be nil")
	}
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrBadGateway.WriteJSON(rec)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %q", ct)
	}

	var body EdgeError
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body.Code != http.StatusBadGateway || body.Message != "Bad Gateway" {
		t.Errorf("body = %+v", body)
	}
}

func TestWriteJSONWithDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrBadGateway.WithDetails("upstream unreachable").WriteJSON(rec)

	var body EdgeError
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body.Details != "upstream unreachable" {
		t.Errorf("details = %q", body.Details)
	}
}

func TestNoCachedData(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrNoCachedData.WriteJSON(rec)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	var body EdgeError
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body.Details != "network error, no cached data available" {
		t.Errorf("details = %q", body.Details)
	}
}

func TestWithRequestID(t *testing.T) {
	e := ErrBadGateway.WithRequestID("req-123")
	if e.RequestID != "req-123" {
		t.Errorf("request id = %q", e.RequestID)
	}
	// Original singleton must be untouched.
	if ErrBadGateway.RequestID != "" {
		t.Error("singleton mutated by WithRequestID")
	}
}

func TestIsEdgeError(t *testing.T) {
	if _, ok := IsEdgeError(ErrNotFound); !ok {
		t.Error("expected EdgeError")
	}
	if _, ok := IsEdgeError(fmt.Errorf("plain")); ok {
		t.Error("plain error misidentified as EdgeError")
	}
}
