package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Claim takes exclusive ownership of a PENDING job for workerToken until the
// lease expires. The status stays PENDING; the first status change happens
// after validation under the claim. A job whose previous claim lapsed can be
// claimed again.
func (s *Store) Claim(ctx context.Context, id, workerToken string, lease time.Duration) (*Job, error) {
	if strings.TrimSpace(workerToken) == "" {
		return nil, fmt.Errorf("claim job: empty worker token")
	}
	now := s.now().UTC()
	var job *Job
	err := s.queryRowWithRetry(ctx, func(row *sql.Row) error {
		var scanErr error
		job, scanErr = scanJob(row)
		return scanErr
	},
		`UPDATE jobs
         SET claim_token = ?, lease_expires_at = ?, last_heartbeat = ?, attempts = attempts + 1,
             version = version + 1, updated_at = ?
         WHERE id = ? AND status = ? AND (claim_token IS NULL OR lease_expires_at IS NULL OR lease_expires_at <= ?)
         RETURNING `+jobColumns,
		workerToken,
		now.Add(lease).UnixMilli(),
		formatTime(now),
		formatTime(now),
		id,
		string(StatusPending),
		now.UnixMilli(),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.missReason(ctx, id, ErrAlreadyClaimed)
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// UpdateStatus moves a job from expected.Status to next, applying fields in
// the same write. The write only lands when status, version, and claim token
// still match what the caller observed; otherwise ErrConflict is returned.
// Terminal statuses release the claim.
func (s *Store) UpdateStatus(ctx context.Context, id string, expected Expectation, next Status, fields Fields) (*Job, error) {
	if !CanTransition(expected.Status, next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, expected.Status, next)
	}
	if next == StatusPublished && strings.TrimSpace(fields.PublishedURL) == "" {
		return nil, fmt.Errorf("%w: PUBLISHED requires a published url", ErrInvalidTransition)
	}
	if next != StatusPublished && fields.PublishedURL != "" {
		return nil, fmt.Errorf("%w: published url only accompanies PUBLISHED", ErrInvalidTransition)
	}
	if next == StatusError && strings.TrimSpace(fields.ErrorReason) == "" {
		return nil, fmt.Errorf("%w: ERROR requires a reason", ErrInvalidTransition)
	}
	if next != StatusError && fields.ErrorReason != "" {
		return nil, fmt.Errorf("%w: error reason only accompanies ERROR", ErrInvalidTransition)
	}

	now := s.now().UTC()
	sets := []string{"status = ?", "version = version + 1", "updated_at = ?"}
	args := []any{string(next), formatTime(now)}

	if fields.ProgressPercent != nil {
		sets = append(sets, "progress_percent = MAX(progress_percent, ?)")
		args = append(args, clampPercent(*fields.ProgressPercent))
	}
	if fields.CompressedSizeBytes != nil {
		sets = append(sets, "compressed_size_bytes = COALESCE(compressed_size_bytes, ?)")
		args = append(args, *fields.CompressedSizeBytes)
	}
	if next == StatusPublished {
		sets = append(sets, "published_url = ?")
		args = append(args, fields.PublishedURL)
	}
	if next == StatusError {
		sets = append(sets, "error_reason = ?")
		args = append(args, fields.ErrorReason)
	}
	if fields.ClearSourceRef {
		sets = append(sets, "source_ref = NULL")
	}
	if next.IsTerminal() {
		sets = append(sets, "claim_token = NULL", "lease_expires_at = NULL")
	}

	where := "id = ? AND status = ? AND version = ?"
	args = append(args, id, string(expected.Status), expected.Version)
	if expected.ClaimToken != "" {
		where += " AND claim_token = ?"
		args = append(args, expected.ClaimToken)
	} else {
		where += " AND claim_token IS NULL"
	}

	var job *Job
	err := s.queryRowWithRetry(ctx, func(row *sql.Row) error {
		var scanErr error
		job, scanErr = scanJob(row)
		return scanErr
	}, `UPDATE jobs SET `+strings.Join(sets, ", ")+` WHERE `+where+` RETURNING `+jobColumns, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.missReason(ctx, id, ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("update job status: %w", err)
	}
	return job, nil
}

// UpdateProgress raises the stored progress of a claimed, non-terminal job
// and returns the committed value, which is never lower than before.
func (s *Store) UpdateProgress(ctx context.Context, id, claimToken string, percent int) (int, error) {
	var stored int
	err := s.queryRowWithRetry(ctx, func(row *sql.Row) error {
		return row.Scan(&stored)
	},
		`UPDATE jobs SET progress_percent = MAX(progress_percent, ?), updated_at = ?
         WHERE id = ? AND claim_token = ? AND status IN (?, ?, ?)
         RETURNING progress_percent`,
		clampPercent(percent),
		formatTime(s.now()),
		id,
		claimToken,
		string(StatusPending), string(StatusProcessingTranscode), string(StatusUploading),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, s.missReason(ctx, id, ErrConflict)
	}
	if err != nil {
		return 0, fmt.Errorf("update progress: %w", err)
	}
	return stored, nil
}

// Heartbeat extends the lease held by claimToken.
func (s *Store) Heartbeat(ctx context.Context, id, claimToken string, lease time.Duration) error {
	now := s.now().UTC()
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET lease_expires_at = ?, last_heartbeat = ?, updated_at = ?
         WHERE id = ? AND claim_token = ?`,
		now.Add(lease).UnixMilli(),
		formatTime(now),
		formatTime(now),
		id,
		claimToken,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return s.missReason(ctx, id, ErrConflict)
	}
	return nil
}

// ReclaimExpired handles claims whose lease ran out before now. PENDING jobs
// lose the stale token and become claimable again. In-flight jobs cannot move
// backward, so they fail with LeaseExpiredReason; their ids are returned so
// the caller can clean up and notify.
func (s *Store) ReclaimExpired(ctx context.Context, now time.Time) (ReclaimResult, error) {
	ctx = ensureContext(ctx)
	var result ReclaimResult
	cutoff := now.UTC().UnixMilli()
	stamp := formatTime(s.now())

	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET claim_token = NULL, lease_expires_at = NULL, version = version + 1, updated_at = ?
         WHERE status = ? AND claim_token IS NOT NULL AND lease_expires_at IS NOT NULL AND lease_expires_at <= ?`,
		stamp, string(StatusPending), cutoff,
	)
	if err != nil {
		return result, fmt.Errorf("release expired claims: %w", err)
	}
	result.Released, _ = res.RowsAffected()

	rows, err := s.db.QueryContext(ctx,
		`UPDATE jobs SET status = ?, error_reason = ?, claim_token = NULL, lease_expires_at = NULL,
             version = version + 1, updated_at = ?
         WHERE status IN (?, ?) AND lease_expires_at IS NOT NULL AND lease_expires_at <= ?
         RETURNING id`,
		string(StatusError), LeaseExpiredReason, stamp,
		string(StatusProcessingTranscode), string(StatusUploading), cutoff,
	)
	if err != nil {
		return result, fmt.Errorf("fail expired jobs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return result, fmt.Errorf("scan expired id: %w", err)
		}
		result.Failed = append(result.Failed, id)
	}
	return result, rows.Err()
}

// NextClaimable lists up to limit PENDING job ids that are unclaimed or whose
// lease lapsed, oldest first.
func (s *Store) NextClaimable(ctx context.Context, now time.Time, limit int) ([]string, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM jobs
         WHERE status = ? AND (claim_token IS NULL OR lease_expires_at IS NULL OR lease_expires_at <= ?)
         ORDER BY rowid LIMIT ?`,
		string(StatusPending), now.UTC().UnixMilli(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list claimable jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan claimable id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) missReason(ctx context.Context, id string, present error) error {
	exists, err := s.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return present
}

func clampPercent(value int) int {
	switch {
	case value < 0:
		return 0
	case value > 100:
		return 100
	default:
		return value
	}
}
