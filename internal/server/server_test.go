package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"github.com/friendsincode/confplanner/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Environment:        "test",
		HTTPBind:           "127.0.0.1",
		HTTPPort:           0,
		DBBackend:          config.DatabaseSQLite,
		DBDSN:              filepath.Join(dir, "confplanner.db"),
		JWTSigningKey:      "test-signing-key",
		SessionTTL:         time.Hour,
		ConferenceName:     "Test Conf",
		ConferenceVenue:    "Testville",
		ConferenceTimezone: "UTC",
		AvatarRoot:         filepath.Join(dir, "avatars"),
		EventBusBackend:    config.EventBusMemory,
		MaxUploadSizeMB:    1,
	}
}

func TestServerWiresRoutes(t *testing.T) {
	cfg := testConfig(t)
	srv, err := New(cfg, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })

	for _, path := range []string{"/healthz", "/api/v1/health", "/metrics", "/api/v1/talks"} {
		rr := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("GET %s: %d %s", path, rr.Code, rr.Body.String())
		}
		if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Fatalf("GET %s: missing security headers", path)
		}
	}

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/assistant/chat", strings.NewReader(`{}`)))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("chat without auth: expected 401, got %d", rr.Code)
	}
}

func TestServerServesLocalAvatars(t *testing.T) {
	cfg := testConfig(t)
	srv, err := New(cfg, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })

	path := filepath.Join(cfg.AvatarRoot, "speakers", "sw", "swyx.png")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("png-bytes"), 0o644); err != nil {
		t.Fatalf("write avatar: %v", err)
	}

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/avatars/speakers/sw/swyx.png", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "png-bytes" {
		t.Fatalf("avatar: %d %q", rr.Code, rr.Body.String())
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	h := requestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/tracks", nil))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["path"] != "/api/v1/tracks" || line["status"] != float64(http.StatusTeapot) || line["component"] != "http" {
		t.Fatalf("unexpected log line %v", line)
	}
	if line["bytes"] != float64(len("short and stout")) {
		t.Fatalf("unexpected byte count %v", line["bytes"])
	}
}

func TestNewJobsRunsAndRecoversFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ok, failed atomic.Int32
	c, err := newJobs(ctx, zerolog.Nop(), map[string]job{
		"ok":     {schedule: "@every 1s", run: func(context.Context) error { ok.Add(1); return nil }},
		"failed": {schedule: "@every 1s", run: func(context.Context) error { failed.Add(1); return errors.New("boom") }},
	})
	if err != nil {
		t.Fatalf("newJobs: %v", err)
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	deadline := time.Now().Add(5 * time.Second)
	for ok.Load() == 0 || failed.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("jobs did not run: ok=%d failed=%d", ok.Load(), failed.Load())
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestNewJobsRejectsBadSchedule(t *testing.T) {
	_, err := newJobs(context.Background(), zerolog.Nop(), map[string]job{
		"bad": {schedule: "every now and then", run: func(context.Context) error { return nil }},
	})
	if err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestServerLeaderElectionGatesClusterJobs(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.LeaderElection = true
	cfg.RedisAddr = mr.Addr()
	cfg.InstanceID = "node-a"

	// Another instance already holds the lease.
	mr.Set("confplanner:leader:jobs", "node-b")

	srv, err := New(cfg, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer srv.Close()

	if srv.election == nil {
		t.Fatalf("election not configured")
	}
	srv.election.Campaign(context.Background())
	if srv.runsClusterJobs() {
		t.Fatalf("follower should not run cluster jobs")
	}

	mr.Del("confplanner:leader:jobs")
	srv.election.Campaign(context.Background())
	if !srv.runsClusterJobs() {
		t.Fatalf("leader should run cluster jobs")
	}
}
