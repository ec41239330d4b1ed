package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"videopipe/internal/logging"
)

var (
	// ErrTerminal rejects events published after a job's terminal event.
	ErrTerminal = errors.New("job already reached a terminal status")
	// ErrUnknownJob is returned when the hub holds no events for a job.
	ErrUnknownJob = errors.New("no events for job")
	// ErrForgotten ends waits on a job whose record was removed.
	ErrForgotten = errors.New("job events removed")
)

const defaultHistory = 256

// Sink receives every accepted event, in publish order.
type Sink interface {
	Deliver(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Deliver calls f.
func (f SinkFunc) Deliver(evt Event) { f(evt) }

type stream struct {
	events   []Event
	nextSeq  uint64
	percent  int
	terminal bool
}

// Hub stores bounded per-job event history and wakes waiters on publish.
type Hub struct {
	mu      sync.Mutex
	cond    *sync.Cond
	sinkMu  sync.Mutex
	history int
	streams map[string]*stream
	sinks   []Sink
	logger  *slog.Logger
	now     func() time.Time
}

// NewHub constructs a hub retaining up to history events per job.
func NewHub(history int, logger *slog.Logger) *Hub {
	if history <= 0 {
		history = defaultHistory
	}
	h := &Hub{
		history: history,
		streams: make(map[string]*stream),
		logger:  logging.NewComponentLogger(logger, "notify"),
		now:     func() time.Time { return time.Now().UTC() },
	}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// AddSink wires a sink that receives every accepted event.
func (h *Hub) AddSink(sink Sink) {
	if h == nil || sink == nil {
		return
	}
	h.mu.Lock()
	h.sinks = append(h.sinks, sink)
	h.mu.Unlock()
}

// Publish appends evt to the job's stream and returns the stored event.
// Progress lower than the last accepted value is raised to it.
func (h *Hub) Publish(jobID string, evt Event) (Event, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return Event{}, errors.New("notify publish: empty job id")
	}

	h.mu.Lock()
	s := h.streams[jobID]
	if s == nil {
		s = &stream{}
		h.streams[jobID] = s
	}
	if s.terminal {
		h.mu.Unlock()
		return Event{}, ErrTerminal
	}
	evt = h.appendLocked(s, jobID, evt)
	sinks := append([]Sink(nil), h.sinks...)
	h.cond.Broadcast()
	// Take the sink lock before releasing the hub so sinks see publish order.
	h.sinkMu.Lock()
	h.mu.Unlock()
	defer h.sinkMu.Unlock()

	for _, sink := range sinks {
		sink.Deliver(evt)
	}
	return evt, nil
}

// Seed records evt only when the hub has nothing for the job yet, for example
// after a daemon restart. Sinks are not notified.
func (h *Hub) Seed(jobID string, evt Event) Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s := h.streams[jobID]; s != nil && len(s.events) > 0 {
		return s.events[len(s.events)-1]
	}
	s := &stream{}
	h.streams[jobID] = s
	evt = h.appendLocked(s, jobID, evt)
	h.cond.Broadcast()
	return evt
}

func (h *Hub) appendLocked(s *stream, jobID string, evt Event) Event {
	s.nextSeq++
	evt.Sequence = s.nextSeq
	evt.JobID = jobID
	if evt.Time.IsZero() {
		evt.Time = h.now()
	}
	if evt.ProgressPercent < s.percent {
		evt.ProgressPercent = s.percent
	}
	if evt.ProgressPercent > 100 {
		evt.ProgressPercent = 100
	}
	s.percent = evt.ProgressPercent
	if evt.Terminal() {
		s.terminal = true
	}
	if len(s.events) == h.history {
		copy(s.events, s.events[1:])
		s.events = s.events[:h.history-1]
	}
	s.events = append(s.events, evt)
	return evt
}

// Last returns the most recent event for a job.
func (h *Hub) Last(jobID string) (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.streams[jobID]
	if s == nil || len(s.events) == 0 {
		return Event{}, false
	}
	return s.events[len(s.events)-1], true
}

// Forget drops a job's history and releases anyone waiting on it.
func (h *Hub) Forget(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.streams[jobID]; !ok {
		return
	}
	delete(h.streams, jobID)
	h.cond.Broadcast()
}

// Fetch returns events with a sequence greater than since, plus the newest
// sequence. With wait set it blocks until an event arrives, the stream is
// terminal, the job is forgotten, or ctx ends.
func (h *Hub) Fetch(ctx context.Context, jobID string, since uint64, wait bool) ([]Event, uint64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cancelWait := make(chan struct{})
	defer close(cancelWait)
	if wait && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				h.mu.Lock()
				h.cond.Broadcast()
				h.mu.Unlock()
			case <-cancelWait:
			}
		}()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var seen *stream
	for {
		s := h.streams[jobID]
		if seen != nil && s != seen {
			return nil, since, ErrForgotten
		}
		if s != nil {
			seen = s
			events, next := s.after(since)
			if len(events) > 0 || !wait || s.terminal {
				return events, next, nil
			}
		} else if !wait {
			return nil, since, ErrUnknownJob
		}
		if err := ctx.Err(); err != nil {
			return nil, since, err
		}
		h.cond.Wait()
		if err := ctx.Err(); err != nil {
			return nil, since, err
		}
	}
}

func (s *stream) after(since uint64) ([]Event, uint64) {
	if len(s.events) == 0 {
		return nil, s.nextSeq
	}
	start := len(s.events)
	for i, evt := range s.events {
		if evt.Sequence > since {
			start = i
			break
		}
	}
	out := make([]Event, len(s.events)-start)
	copy(out, s.events[start:])
	return out, s.nextSeq
}

// Subscribe streams a job's events starting with a replay of the latest one.
// The channel closes after the terminal event, when the job is forgotten, or
// when ctx ends. The returned func stops the subscription early.
func (h *Hub) Subscribe(ctx context.Context, jobID string) (<-chan Event, func()) {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan Event, 16)

	var since uint64
	if last, ok := h.Last(jobID); ok && last.Sequence > 0 {
		since = last.Sequence - 1
	}

	go func() {
		defer close(out)
		for {
			events, next, err := h.Fetch(ctx, jobID, since, true)
			if err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, ErrForgotten) {
					h.logger.Debug("subscription ended", logging.String(logging.FieldJobID, jobID), logging.Error(err))
				}
				return
			}
			for _, evt := range events {
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
				if evt.Terminal() {
					return
				}
			}
			if len(events) == 0 {
				// Terminal stream with nothing newer than since.
				return
			}
			since = next
		}
	}()
	return out, cancel
}
