package queue

import (
	"context"
	"fmt"
)

// Stats returns item counts per status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM queue_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}

	var summary HealthSummary
	for status, count := range stats {
		summary.Total += count
		switch {
		case status == StatusPending:
			summary.Pending += count
		case IsProcessingStatus(status):
			summary.Processing += count
		case status == StatusFailed:
			summary.Failed += count
		case status == StatusCompleted:
			summary.Completed += count
		}
	}
	return summary, nil
}
