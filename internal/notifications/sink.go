package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"videopipe/internal/config"
	"videopipe/internal/jobs"
	"videopipe/internal/logging"
	"videopipe/internal/notify"
)

const sinkTimeout = 30 * time.Second

// TitleFunc resolves a human-readable title for a job id.
type TitleFunc func(ctx context.Context, jobID string) string

// EventSink forwards terminal hub events to a Service in the background.
type EventSink struct {
	svc       Service
	title     TitleFunc
	published bool
	errors    bool
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// NewEventSink wires svc to terminal events, honouring the published/errors
// toggles of the notifications section.
func NewEventSink(svc Service, cfg config.Notifications, title TitleFunc, logger *slog.Logger) *EventSink {
	return &EventSink{
		svc:       svc,
		title:     title,
		published: cfg.Published,
		errors:    cfg.Errors,
		logger:    logging.NewComponentLogger(logger, "notifications"),
	}
}

var _ notify.Sink = (*EventSink)(nil)

// Deliver implements notify.Sink. Non-terminal events are ignored.
func (s *EventSink) Deliver(evt notify.Event) {
	if s == nil || s.svc == nil {
		return
	}
	switch {
	case evt.Status == jobs.StatusPublished && s.published:
	case evt.Status == jobs.StatusError && s.errors:
	default:
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		defer cancel()

		title := evt.JobID
		if s.title != nil {
			if resolved := s.title(ctx, evt.JobID); resolved != "" {
				title = resolved
			}
		}
		var err error
		if evt.Status == jobs.StatusPublished {
			err = s.svc.NotifyPublished(ctx, title, evt.PublishedURL)
		} else {
			err = s.svc.NotifyFailed(ctx, title, evt.ErrorReason)
		}
		if err != nil {
			logging.WarnWithContext(s.logger, "notification failed", "notification_failed",
				logging.String(logging.FieldJobID, evt.JobID),
				logging.String("status", string(evt.Status)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
				logging.String(logging.FieldImpact, "operator was not notified"),
			)
		}
	}()
}

// Wait blocks until in-flight notifications finish.
func (s *EventSink) Wait() {
	if s == nil {
		return
	}
	s.wg.Wait()
}
