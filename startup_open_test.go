package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/olivier-w/fmap/internal/config"
	"github.com/olivier-w/fmap/internal/mpd"
)

func testConfig(t *testing.T, apiURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Catalog.APIURL = apiURL
	cfg.Catalog.RequestInterval = 0
	cfg.Catalog.NapMin, cfg.Catalog.NapMax = 0, 0
	cfg.Paths.DataDir = filepath.Join(dir, "data")
	cfg.Paths.CacheDir = filepath.Join(dir, "cache")
	cfg.Paths.DownloadDir = filepath.Join(dir, "downloads")
	return cfg
}

func TestOpenCatalogWarmsGenres(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/genres.json" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"dataset":[
			{"genre_id":"12","genre_parent_id":null,"genre_title":"Rock","genre_handle":"Rock"},
			{"genre_id":"25","genre_parent_id":"12","genre_title":"Punk","genre_handle":"Punk"}
		],"page":1,"total_pages":1}`))
	}))
	defer srv.Close()

	a, err := openCatalog(testConfig(t, srv.URL))
	if err != nil {
		t.Fatalf("openCatalog: %v", err)
	}
	defer a.Close()

	var lines []string
	if err := a.warm(context.Background(), func(s string) { lines = append(lines, s) }); err != nil {
		t.Fatalf("warm: %v", err)
	}
	if len(lines) != 2 || lines[1] != "1 genres" {
		t.Fatalf("unexpected status lines %v", lines)
	}
	if _, err := os.Stat(filepath.Join(a.cfg.Paths.DataDir, "catalog.db")); err != nil {
		t.Fatalf("expected catalog.db: %v", err)
	}

	// A second warm-up is served from memory.
	if err := a.warm(context.Background(), func(string) {}); err != nil {
		t.Fatalf("warm: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one request, got %d", calls)
	}
}

func TestWarmReportsSourceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a, err := openCatalog(testConfig(t, srv.URL))
	if err != nil {
		t.Fatalf("openCatalog: %v", err)
	}
	defer a.Close()

	if err := a.warm(context.Background(), func(string) {}); err == nil {
		t.Fatal("expected warm-up error")
	}
}

func TestHarvesterCreatesDownloadDir(t *testing.T) {
	a, err := openCatalog(testConfig(t, "http://127.0.0.1:1"))
	if err != nil {
		t.Fatalf("openCatalog: %v", err)
	}
	defer a.Close()

	if _, err := a.harvester(); err != nil {
		t.Fatalf("harvester: %v", err)
	}
	if info, err := os.Stat(a.cfg.Paths.DownloadDir); err != nil || !info.IsDir() {
		t.Fatalf("expected download dir, got %v", err)
	}
}

func TestOpenBackendMPDToleratesMissingDaemon(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Playback.Backend = config.BackendMPD
	cfg.MPD.Addr = "127.0.0.1:1"

	b, closeBackend := openBackend(cfg)
	defer closeBackend()
	if _, ok := b.(*mpd.Backend); !ok {
		t.Fatalf("expected mpd backend, got %T", b)
	}
}
