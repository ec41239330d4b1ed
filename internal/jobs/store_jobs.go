package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Create inserts a PENDING job and returns its id. An empty ID is assigned a
// random UUID.
func (s *Store) Create(ctx context.Context, job *Job) (string, error) {
	if job == nil {
		return "", fmt.Errorf("%w: nil job", ErrInvalidJob)
	}
	if strings.TrimSpace(job.Filename) == "" {
		return "", fmt.Errorf("%w: filename is required", ErrInvalidJob)
	}
	if strings.TrimSpace(job.Category) == "" || strings.TrimSpace(job.FolderLabel) == "" {
		return "", fmt.Errorf("%w: category and folder label are required", ErrInvalidJob)
	}
	if job.CropBottomPx < 0 {
		return "", fmt.Errorf("%w: crop_bottom_px must be >= 0", ErrInvalidJob)
	}
	aspect, ok := ParseAspectVariant(string(job.AspectVariant))
	if !ok {
		return "", fmt.Errorf("%w: unknown aspect variant %q", ErrInvalidJob, job.AspectVariant)
	}

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := s.now().UTC()
	job.AspectVariant = aspect
	job.Status = StatusPending
	job.ProgressPercent = 0
	job.Version = 1
	job.CreatedAt = now
	job.UpdatedAt = now

	tags, err := encodeTags(job.Metadata.Tags)
	if err != nil {
		return "", err
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO jobs (id, filename, source_ref, origin_path, original_size_bytes, category, folder_label,
            crop_bottom_px, aspect_variant, status, progress_percent, version, title, description, tags_json,
            created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 1, ?, ?, ?, ?, ?)`,
		job.ID,
		job.Filename,
		nullableString(job.SourceRef),
		nullableString(job.OriginPath),
		job.OriginalSizeBytes,
		job.Category,
		job.FolderLabel,
		job.CropBottomPx,
		string(job.AspectVariant),
		string(StatusPending),
		nullableString(job.Metadata.Title),
		nullableString(job.Metadata.Description),
		tags,
		formatTime(now),
		formatTime(now),
	); err != nil {
		return "", fmt.Errorf("insert job: %w", err)
	}
	return job.ID, nil
}

// Get fetches a job by id.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	var job *Job
	err := s.queryRowWithRetry(ctx, func(row *sql.Row) error {
		var scanErr error
		job, scanErr = scanJob(row)
		return scanErr
	}, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Exists reports whether a job record is present.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var count int
	err := s.queryRowWithRetry(ctx, func(row *sql.Row) error {
		return row.Scan(&count)
	}, `SELECT COUNT(1) FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("check job: %w", err)
	}
	return count > 0, nil
}

// Delete removes a job record. Workers holding a claim observe the removal
// through Exists and cancel their work.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns jobs in creation order, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += ` ORDER BY rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// Stats returns job counts keyed by status. Every status is present.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int, len(allStatuses))
	for _, status := range allStatuses {
		stats[status] = 0
	}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan job stats: %w", err)
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}

// ClearTerminal removes PUBLISHED and ERROR records and returns their ids so
// callers can drop any retained events.
func (s *Store) ClearTerminal(ctx context.Context) ([]string, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`DELETE FROM jobs WHERE status IN (?, ?) RETURNING id`,
		string(StatusPublished), string(StatusError),
	)
	if err != nil {
		return nil, fmt.Errorf("clear terminal jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan cleared id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetMetadata records suggested publishing metadata. It is a side field and
// does not take part in status CAS.
func (s *Store) SetMetadata(ctx context.Context, id string, meta Metadata) error {
	tags, err := encodeTags(meta.Tags)
	if err != nil {
		return err
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET title = ?, description = ?, tags_json = ?, updated_at = ? WHERE id = ?`,
		nullableString(meta.Title),
		nullableString(meta.Description),
		tags,
		formatTime(s.now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("set metadata: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func encodeTags(tags []string) (any, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}
	return string(data), nil
}
