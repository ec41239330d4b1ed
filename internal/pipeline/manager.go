package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"videopipe/internal/config"
	"videopipe/internal/jobs"
	"videopipe/internal/logging"
	"videopipe/internal/metadata"
	"videopipe/internal/notify"
	"videopipe/internal/publish"
	"videopipe/internal/transcode"
)

// Dependencies are the collaborators a Manager drives.
type Dependencies struct {
	Store      *jobs.Store
	Transcoder *transcode.Transcoder
	Uploader   *publish.Uploader
	Hub        *notify.Hub
	Metadata   metadata.Suggester
}

// Timings holds every interval and timeout the workers use. Zero timeouts
// disable the corresponding deadline.
type Timings struct {
	Poll         time.Duration
	ErrorBackoff time.Duration
	Heartbeat    time.Duration
	Lease        time.Duration
	CancelPoll   time.Duration
	RetryBase    time.Duration
	RetryMax     time.Duration
	Transcode    time.Duration
	Upload       time.Duration
	Finalize     time.Duration
}

// TimingsFromConfig converts the workflow section into durations.
func TimingsFromConfig(w config.Workflow) Timings {
	transcodeTimeout, uploadTimeout, finalizeTimeout := w.PhaseTimeouts()
	return Timings{
		Poll:         w.PollInterval(),
		ErrorBackoff: w.ErrorBackoff(),
		Heartbeat:    w.Heartbeat(),
		Lease:        w.Lease(),
		CancelPoll:   w.CancelPoll(),
		RetryBase:    w.RetryBaseDelay(),
		RetryMax:     w.RetryMaxDelay(),
		Transcode:    transcodeTimeout,
		Upload:       uploadTimeout,
		Finalize:     finalizeTimeout,
	}
}

// Option customizes a Manager.
type Option func(*Manager)

// WithTimings replaces the configured intervals and timeouts.
func WithTimings(t Timings) Option {
	return func(m *Manager) {
		m.timings = t
	}
}

// Manager coordinates the worker pool.
type Manager struct {
	cfg         *config.Config
	deps        Dependencies
	timings     Timings
	workers     int
	maxAttempts int
	logger      *slog.Logger
	wake        chan struct{}

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	bg       sync.WaitGroup
	lastErr  error
	lastJob  *jobs.Job
	active   map[string]int
	finished int
}

// NewManager constructs a Manager. Start must be called to begin work.
func NewManager(cfg *config.Config, deps Dependencies, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:         cfg,
		deps:        deps,
		timings:     TimingsFromConfig(cfg.Workflow),
		workers:     cfg.Workflow.Workers,
		maxAttempts: cfg.Workflow.MaxAttempts,
		logger:      logging.NewComponentLogger(logger, "pipeline"),
		wake:        make(chan struct{}, 1),
		active:      make(map[string]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.workers <= 0 {
		m.workers = 1
	}
	if m.maxAttempts <= 0 {
		m.maxAttempts = 1
	}
	if m.timings.Poll <= 0 {
		m.timings.Poll = time.Second
	}
	if m.timings.ErrorBackoff <= 0 {
		m.timings.ErrorBackoff = m.timings.Poll
	}
	return m
}

// Start launches the worker pool.
func (m *Manager) Start(ctx context.Context) error {
	if m.deps.Store == nil || m.deps.Transcoder == nil || m.deps.Uploader == nil {
		return errors.New("pipeline dependencies not configured")
	}
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("pipeline already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(m.workers)
	m.mu.Unlock()

	for slot := 0; slot < m.workers; slot++ {
		go m.runWorker(runCtx, slot)
	}
	m.logger.Info("pipeline started",
		logging.Int("workers", m.workers),
		logging.Int("max_attempts", m.maxAttempts),
		logging.String(logging.FieldEventType, "pipeline_start"),
	)
	return nil
}

// Stop cancels in-flight work and waits for workers and background
// metadata lookups to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.bg.Wait()
	m.logger.Info("pipeline stopped", logging.String(logging.FieldEventType, "pipeline_stop"))
}

// Wake nudges one idle worker to poll for work immediately.
func (m *Manager) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) setActive(id string, slot int) {
	m.mu.Lock()
	m.active[id] = slot
	m.mu.Unlock()
}

func (m *Manager) clearActive(job *jobs.Job) {
	m.mu.Lock()
	delete(m.active, job.ID)
	m.finished++
	copy := *job
	m.lastJob = &copy
	m.mu.Unlock()
}

// Owns reports whether a worker of this manager currently holds the job.
func (m *Manager) Owns(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.active[id]
	return ok
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
