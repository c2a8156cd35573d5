package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-i2p/fdfspool/lib/endpoint"
	"github.com/go-i2p/fdfspool/lib/registry"
	"github.com/go-i2p/fdfspool/lib/testutil"
)

func newTestServer(t *testing.T, circuits func() []string) (*Server, *registry.Directory) {
	t.Helper()

	dir := registry.NewDirectory(&testutil.Dialer{}, registry.DefaultOptions())
	t.Cleanup(func() { dir.Close() })

	s, err := New(Config{
		ListenAddr:   "127.0.0.1:0",
		Source:       dir,
		OpenCircuits: circuits,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s, dir
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestNewRequiresSource(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New should fail without a source")
	}
}

func TestWriteJSON(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := httptest.NewRecorder()
	s.writeJSON(w, http.StatusCreated, map[string]string{"key": "value"})

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), `"key":"value"`) {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestReadiness(t *testing.T) {
	s, dir := newTestServer(t, nil)

	if w := get(t, s, "/readyz"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("/readyz before any cluster = %d, want 503", w.Code)
	}

	if err := dir.Initialize("main", []endpoint.Endpoint{endpoint.MustParse("10.0.0.1:22122")}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if w := get(t, s, "/readyz"); w.Code != http.StatusOK {
		t.Errorf("/readyz = %d, want 200", w.Code)
	}
	if w := get(t, s, "/healthz"); w.Code != http.StatusOK {
		t.Errorf("/healthz = %d, want 200", w.Code)
	}
}

func TestAPIStats(t *testing.T) {
	s, dir := newTestServer(t, nil)
	tracker := endpoint.MustParse("10.0.0.1:22122")
	if err := dir.Initialize("main", []endpoint.Endpoint{tracker}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	conn, err := dir.GetCoordinatorConnection(context.Background(), "main")
	if err != nil {
		t.Fatalf("GetCoordinatorConnection failed: %v", err)
	}
	defer conn.Release(true)

	w := get(t, s, "/api/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("/api/stats = %d", w.Code)
	}
	var all map[string]registry.Stats
	if err := json.NewDecoder(w.Body).Decode(&all); err != nil {
		t.Fatalf("decode: %v", err)
	}
	st, ok := all["main"]
	if !ok || len(st.Coordinators) != 1 {
		t.Fatalf("stats = %+v", all)
	}
	if st.Coordinators[0].Endpoint != tracker.String() || st.Coordinators[0].NumInUse != 1 {
		t.Errorf("coordinator stats = %+v", st.Coordinators[0])
	}

	w = get(t, s, "/api/stats/main")
	if w.Code != http.StatusOK {
		t.Errorf("/api/stats/main = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"num_in_use":1`) {
		t.Errorf("body = %s", w.Body.String())
	}

	w = get(t, s, "/api/stats/other")
	if w.Code != http.StatusNotFound {
		t.Errorf("/api/stats/other = %d, want 404", w.Code)
	}
}

func TestAPIHealth(t *testing.T) {
	var open []string
	s, dir := newTestServer(t, func() []string { return open })
	if err := dir.Initialize("main", []endpoint.Endpoint{endpoint.MustParse("10.0.0.1:22122")}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	var resp healthResponse
	w := get(t, s, "/api/health")
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || len(resp.Clusters) != 1 {
		t.Errorf("health = %+v", resp)
	}

	open = []string{"10.0.1.2:23000", "10.0.1.1:23000"}
	w = get(t, s, "/api/health")
	resp = healthResponse{}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
	if len(resp.OpenCircuits) != 2 || resp.OpenCircuits[0] != "10.0.1.1:23000" {
		t.Errorf("open circuits = %v, want sorted", resp.OpenCircuits)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := get(t, s, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("/metrics = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "fdfspool_") {
		t.Error("metrics output should contain fdfspool metrics")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/stats", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /api/stats = %d, want 405", w.Code)
	}
}

func TestServerStartStop(t *testing.T) {
	s, _ := newTestServer(t, nil)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("second Start should fail")
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/healthz = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Errorf("second Stop should be a no-op: %v", err)
	}
}
