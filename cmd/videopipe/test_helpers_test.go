package main

import (
	"bytes"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
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
	publishpkg "videopipe/internal/publish"
	"videopipe/internal/testsupport"
	"videopipe/internal/transcode"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *jobs.Store
	hub        *notify.Hub
	bucket     *testsupport.MemoryBucket
	server     *httptest.Server
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))

	logger := logging.NewNop()
	store := testsupport.MustOpenStore(t, cfg)
	hub := notify.NewHub(0, logger)
	bucket := testsupport.NewMemoryBucket()
	resolver := category.NewResolver(cfg.Categories.DefaultLabel, cfg.Categories.Extra)
	uploader := publishpkg.New(bucket, cfg, logger)
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

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		hub:        hub,
		bucket:     bucket,
		server:     server,
		configPath: configPath,
		baseDir:    base,
	}
}

// run executes the CLI against the test daemon.
func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runCLI(t, e.server.URL, e.configPath, args...)
}

// video writes a small mp4 outside the staging tree.
func (e *cliTestEnv) video(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(e.baseDir, "uploads", name)
	testsupport.WriteVideoFile(t, path, 4096)
	return path
}

func runCLI(t *testing.T, apiAddr, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--api", apiAddr}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nstaging_dir = %q\nwork_dir = %q\nlog_dir = %q\napi_bind = %q\n\n[transcode]\nffmpeg_binary = %q\nffprobe_binary = %q\n",
		cfg.Paths.StagingDir,
		cfg.Paths.WorkDir,
		cfg.Paths.LogDir,
		cfg.Paths.APIBind,
		cfg.Transcode.FFmpegBinary,
		cfg.Transcode.FFprobeBinary,
	)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
