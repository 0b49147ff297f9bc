package store

import (
	"path/filepath"
	"testing"
)

func openTestRegistry(t *testing.T) *SQLiteRegistry {
	t.Helper()
	r, err := OpenSQLiteRegistry(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestSQLiteRegistryOpenEmptyPath(t *testing.T) {
	if _, err := OpenSQLiteRegistry("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestSQLiteStoreGetSet(t *testing.T) {
	r := openTestRegistry(t)
	s, err := r.Open("initiative-data")
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := s.Get("missing"); ok {
		t.Fatal("expected miss")
	}

	s.Set("GET|/api/v1/projects", testEntry(`{"items":[]}`))

	got, ok := s.Get("GET|/api/v1/projects")
	if !ok {
		t.Fatal("expected hit")
	}
	if got.StatusCode != 200 {
		t.Errorf("status = %d", got.StatusCode)
	}
	if string(got.Body) != `{"items":[]}` {
		t.Errorf("body = %s", got.Body)
	}
	if got.Headers.Get("Content-Type") != "application/json" {
		t.Errorf("content-type = %q", got.Headers.Get("Content-Type"))
	}
	if got.StoredAt.IsZero() {
		t.Error("stored_at not persisted")
	}
}

func TestSQLiteStoreOverwrite(t *testing.T) {
	r := openTestRegistry(t)
	s, _ := r.Open("initiative-data")

	s.Set("k", testEntry("v1"))
	s.Set("k", testEntry("v2"))

	got, ok := s.Get("k")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(got.Body) != "v2" {
		t.Errorf("last write should win, got %s", got.Body)
	}
	if s.Len() != 1 {
		t.Errorf("len = %d", s.Len())
	}
}

func TestSQLiteStoreNamespaceIsolation(t *testing.T) {
	r := openTestRegistry(t)
	static, _ := r.Open("initiative-static-v1")
	data, _ := r.Open("initiative-data")

	static.Set("index.html", testEntry("<html>"))
	if _, ok := data.Get("index.html"); ok {
		t.Error("entry leaked across namespaces")
	}
}

func TestSQLiteRegistryNamespaces(t *testing.T) {
	r := openTestRegistry(t)
	r.Open("initiative-data")
	r.Open("initiative-static-v1")
	r.Open("initiative-static-v2")

	names, err := r.Namespaces()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 3 {
		t.Fatalf("namespaces = %v", names)
	}

	if err := r.Drop("initiative-static-v1"); err != nil {
		t.Fatal(err)
	}
	names, _ = r.Namespaces()
	if len(names) != 2 {
		t.Errorf("namespaces after drop = %v", names)
	}
}

func TestSQLiteDropRemovesEntries(t *testing.T) {
	r := openTestRegistry(t)
	old, _ := r.Open("initiative-static-v1")
	old.Set("logo.svg", testEntry("<svg>"))

	if err := r.Drop("initiative-static-v1"); err != nil {
		t.Fatal(err)
	}

	// Re-opening the namespace must not resurrect entries.
	fresh, _ := r.Open("initiative-static-v1")
	if _, ok := fresh.Get("logo.svg"); ok {
		t.Error("entry survived namespace drop")
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	r1, err := OpenSQLiteRegistry(path)
	if err != nil {
		t.Fatal(err)
	}
	s1, _ := r1.Open("initiative-data")
	s1.Set("k", testEntry("persisted"))
	r1.Close()

	r2, err := OpenSQLiteRegistry(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r2.Close()
	s2, _ := r2.Open("initiative-data")

	got, ok := s2.Get("k")
	if !ok {
		t.Fatal("entry lost across reopen")
	}
	if string(got.Body) != "persisted" {
		t.Errorf("body = %s", got.Body)
	}
}

func TestSQLiteStoreKeys(t *testing.T) {
	r := openTestRegistry(t)
	s, _ := r.Open("initiative-static-v1")
	s.Set("index.html", testEntry("a"))
	s.Set("logo.svg", testEntry("b"))

	keys := s.Keys()
	if len(keys) != 2 {
		t.Errorf("keys = %v", keys)
	}

	s.Purge()
	if len(s.Keys()) != 0 {
		t.Error("keys remain after purge")
	}
}
