package pipeline

import (
	"context"
	"errors"
	"time"

	"videopipe/internal/jobs"
	"videopipe/internal/logging"
)

const metadataTimeout = 2 * time.Minute

// suggestMetadata records suggested metadata in the background. It never
// blocks or gates status changes.
func (m *Manager) suggestMetadata(ctx context.Context, job *jobs.Job) {
	if m.deps.Metadata == nil {
		return
	}
	id, filename := job.ID, job.Filename
	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metadataTimeout)
		defer cancel()

		suggestion, err := m.deps.Metadata.Suggest(sctx, filename)
		if err != nil {
			return
		}
		err = m.deps.Store.SetMetadata(sctx, id, jobs.Metadata{
			Title:       suggestion.Title,
			Description: suggestion.Description,
			Tags:        suggestion.Tags,
		})
		logger := logging.WithContext(ctx, m.logger)
		switch {
		case err == nil:
			logger.Debug("metadata recorded", logging.String("title", suggestion.Title))
		case errors.Is(err, jobs.ErrNotFound):
		default:
			logger.Warn("metadata not recorded",
				logging.Error(err),
				logging.String(logging.FieldEventType, "metadata_persist_failed"),
				logging.String(logging.FieldErrorHint, "check job database access"),
			)
		}
	}()
}
