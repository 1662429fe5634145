package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"chatty/server/internal/filestore"
	"chatty/server/internal/registry"
	"chatty/server/internal/stats"
	"chatty/server/internal/store"
)

func newTestServer(t *testing.T) (*Server, *registry.Registry, *stats.Stats, *filestore.Store) {
	t.Helper()
	dir := t.TempDir()
	meta, err := store.Open(filepath.Join(dir, "attachments.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = meta.Close() })

	files, err := filestore.New(filepath.Join(dir, "files"), meta)
	if err != nil {
		t.Fatalf("new filestore: %v", err)
	}

	promReg := prometheus.NewRegistry()
	st := stats.New(promReg)
	reg := registry.New(8)
	return New(reg, st, meta, files, promReg), reg, st, files
}

func TestHealthAndUsers(t *testing.T) {
	api, reg, _, _ := newTestServer(t)
	if err := reg.Register("alice", 7); err != nil {
		t.Fatalf("register: %v", err)
	}

	ts := httptest.NewServer(api.Echo())
	defer ts.Close()

	healthResp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer healthResp.Body.Close()
	if healthResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /health, got %d", healthResp.StatusCode)
	}
	var health healthResponse
	if err := json.NewDecoder(healthResp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "ok" || health.Online != 1 || health.Registered != 1 {
		t.Fatalf("unexpected health payload: %#v", health)
	}

	usersResp, err := http.Get(ts.URL + "/api/users")
	if err != nil {
		t.Fatalf("GET /api/users: %v", err)
	}
	defer usersResp.Body.Close()
	var users usersResponse
	if err := json.NewDecoder(usersResp.Body).Decode(&users); err != nil {
		t.Fatalf("decode users: %v", err)
	}
	if len(users.Online) != 1 || users.Online[0] != "alice" {
		t.Fatalf("unexpected users payload: %#v", users)
	}
}

func TestStatsEndpoint(t *testing.T) {
	api, _, st, _ := newTestServer(t)
	st.Add(1, 1, 2, 3, 0, 0, 4)

	ts := httptest.NewServer(api.Echo())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/stats")
	if err != nil {
		t.Fatalf("GET /api/stats: %v", err)
	}
	defer resp.Body.Close()
	var got statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if got.Registered != 1 || got.Delivered != 2 || got.NotDelivered != 3 || got.Errors != 4 {
		t.Fatalf("unexpected stats payload: %#v", got)
	}
}

func TestFileListAndDownload(t *testing.T) {
	api, _, _, files := newTestServer(t)
	if err := files.Save(context.Background(), "hello.txt", "alice", []byte("CONTENT")); err != nil {
		t.Fatalf("save attachment: %v", err)
	}

	ts := httptest.NewServer(api.Echo())
	defer ts.Close()

	listResp, err := http.Get(ts.URL + "/api/files")
	if err != nil {
		t.Fatalf("GET /api/files: %v", err)
	}
	defer listResp.Body.Close()
	var list []fileEntry
	if err := json.NewDecoder(listResp.Body).Decode(&list); err != nil {
		t.Fatalf("decode file list: %v", err)
	}
	if len(list) != 1 || list[0].Name != "hello.txt" || list[0].Sender != "alice" {
		t.Fatalf("unexpected file list: %#v", list)
	}

	dlResp, err := http.Get(ts.URL + "/api/files/hello.txt")
	if err != nil {
		t.Fatalf("GET /api/files/hello.txt: %v", err)
	}
	defer dlResp.Body.Close()
	if dlResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from download, got %d", dlResp.StatusCode)
	}
	body, err := io.ReadAll(dlResp.Body)
	if err != nil {
		t.Fatalf("read download body: %v", err)
	}
	if string(body) != "CONTENT" {
		t.Fatalf("downloaded %q, want CONTENT", body)
	}
}

func TestFileDownloadNotFound(t *testing.T) {
	api, _, _, _ := newTestServer(t)

	ts := httptest.NewServer(api.Echo())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/files/absent.bin")
	if err != nil {
		t.Fatalf("GET missing file: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	api, _, st, _ := newTestServer(t)
	st.Add(1, 1, 0, 0, 0, 0, 0)

	ts := httptest.NewServer(api.Echo())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics body: %v", err)
	}
	if !strings.Contains(string(body), "chatty_online_users") {
		t.Fatalf("metrics output missing chatty_online_users gauge")
	}
}
