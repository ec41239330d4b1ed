package jobs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

const jobColumns = "id, filename, source_ref, origin_path, original_size_bytes, category, folder_label, crop_bottom_px, aspect_variant, status, progress_percent, compressed_size_bytes, published_url, error_reason, claim_token, lease_expires_at, last_heartbeat, attempts, version, title, description, tags_json, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job              Job
		sourceRef        sql.NullString
		originPath       sql.NullString
		aspect           string
		status           string
		compressedSize   sql.NullInt64
		publishedURL     sql.NullString
		errorReason      sql.NullString
		claimToken       sql.NullString
		leaseExpires     sql.NullInt64
		lastHeartbeatRaw sql.NullString
		title            sql.NullString
		description      sql.NullString
		tagsJSON         sql.NullString
		createdRaw       string
		updatedRaw       string
	)

	if err := scanner.Scan(
		&job.ID,
		&job.Filename,
		&sourceRef,
		&originPath,
		&job.OriginalSizeBytes,
		&job.Category,
		&job.FolderLabel,
		&job.CropBottomPx,
		&aspect,
		&status,
		&job.ProgressPercent,
		&compressedSize,
		&publishedURL,
		&errorReason,
		&claimToken,
		&leaseExpires,
		&lastHeartbeatRaw,
		&job.Attempts,
		&job.Version,
		&title,
		&description,
		&tagsJSON,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job.SourceRef = sourceRef.String
	job.OriginPath = originPath.String
	job.AspectVariant = AspectVariant(aspect)
	job.Status = Status(status)
	job.CompressedSizeBytes = compressedSize.Int64
	job.PublishedURL = publishedURL.String
	job.ErrorReason = errorReason.String
	job.ClaimToken = claimToken.String
	if leaseExpires.Valid {
		lease := time.UnixMilli(leaseExpires.Int64).UTC()
		job.LeaseExpiresAt = &lease
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			job.LastHeartbeat = &heartbeat
		}
	}
	job.Metadata.Title = title.String
	job.Metadata.Description = description.String
	if tagsJSON.Valid && tagsJSON.String != "" {
		_ = json.Unmarshal([]byte(tagsJSON.String), &job.Metadata.Tags)
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return &job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
