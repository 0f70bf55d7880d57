package queue

import (
	"database/sql"
	"errors"
	"time"
)

const itemColumns = "id, bundle_id, url, platform, status, stage, error_message, retry_count, bundle_dir, created_at, updated_at, last_heartbeat, next_retry_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id               int64
		bundleID         string
		url              sql.NullString
		platform         sql.NullString
		statusStr        string
		stage            sql.NullString
		errorMessage     sql.NullString
		retryCount       sql.NullInt64
		bundleDir        sql.NullString
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
		lastHeartbeatRaw sql.NullString
		nextRetryRaw     sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&bundleID,
		&url,
		&platform,
		&statusStr,
		&stage,
		&errorMessage,
		&retryCount,
		&bundleDir,
		&createdRaw,
		&updatedRaw,
		&lastHeartbeatRaw,
		&nextRetryRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:           id,
		BundleID:     bundleID,
		URL:          url.String,
		Platform:     platform.String,
		Status:       Status(statusStr),
		Stage:        stage.String,
		ErrorMessage: errorMessage.String,
		RetryCount:   int(retryCount.Int64),
		BundleDir:    bundleDir.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			item.LastHeartbeat = &heartbeat
		}
	}
	if nextRetryRaw.Valid {
		if nextRetry, err := parseTimeString(nextRetryRaw.String); err == nil {
			item.NextRetryAt = &nextRetry
		}
	}
	return item, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
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
