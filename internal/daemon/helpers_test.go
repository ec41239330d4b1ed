package daemon_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"videopipe/internal/category"
	"videopipe/internal/config"
	"videopipe/internal/daemon"
	"videopipe/internal/ingest"
	"videopipe/internal/jobs"
	"videopipe/internal/logging"
	"videopipe/internal/metadata"
	"videopipe/internal/notify"
	"videopipe/internal/pipeline"
	"videopipe/internal/publish"
	"videopipe/internal/testsupport"
	"videopipe/internal/transcode"
)

type fixture struct {
	cfg     *config.Config
	store   *jobs.Store
	hub     *notify.Hub
	bucket  *testsupport.MemoryBucket
	manager *pipeline.Manager
	daemon  *daemon.Daemon
	server  *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	logger := logging.NewNop()
	store := testsupport.MustOpenStore(t, cfg)
	hub := notify.NewHub(0, logger)
	bucket := testsupport.NewMemoryBucket()
	resolver := category.NewResolver(cfg.Categories.DefaultLabel, cfg.Categories.Extra)
	uploader := publish.New(bucket, cfg, logger)

	manager := pipeline.NewManager(cfg, pipeline.Dependencies{
		Store:      store,
		Transcoder: transcode.New(cfg.Transcode.FFmpegBinary, cfg.Transcode.FFprobeBinary, logger),
		Uploader:   uploader,
		Hub:        hub,
		Metadata:   metadata.BestEffort(nil, logger),
	}, logger)

	d, err := daemon.New(cfg, daemon.Dependencies{
		Store:    store,
		Manager:  manager,
		Ingest:   ingest.New(cfg, store, resolver, hub, logger),
		Hub:      hub,
		Storage:  uploader,
		Resolver: resolver,
	}, logger)
	if err != nil {
		t.Fatalf("daemon.New failed: %v", err)
	}
	server := httptest.NewServer(d.Handler())
	t.Cleanup(server.Close)

	return &fixture{
		cfg:     cfg,
		store:   store,
		hub:     hub,
		bucket:  bucket,
		manager: manager,
		daemon:  d,
		server:  server,
	}
}

// video writes a small mp4 outside the staging tree and returns its path.
func (f *fixture) video(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(testsupport.BaseDir(f.cfg), "uploads", name)
	testsupport.WriteVideoFile(t, path, 4096)
	return path
}

func (f *fixture) request(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := f.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}
