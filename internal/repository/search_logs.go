package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/octobees/supplier-outreach/internal/entity"
)

// AppendLog inserts one run log line.
func (r *PGXSearchRepository) AppendLog(ctx context.Context, entry entity.SearchLog) error {
	var data any
	if len(entry.Data) > 0 {
		raw, err := json.Marshal(entry.Data)
		if err != nil {
			return fmt.Errorf("encode log data: %w", err)
		}
		data = string(raw)
	}
	_, err := r.pool.Exec(ctx, `
        INSERT INTO search_logs (search_id, level, message, data, created_at)
        VALUES ($1, $2, $3, $4::jsonb, COALESCE($5, NOW()))
    `, entry.SearchID, entry.Level, entry.Message, data, nullTime(entry))
	if err != nil {
		return fmt.Errorf("insert search log: %w", err)
	}
	return nil
}

func nullTime(entry entity.SearchLog) any {
	if entry.CreatedAt.IsZero() {
		return nil
	}
	return entry.CreatedAt
}

// ListLogs returns the log lines of a run in insertion order.
func (r *PGXSearchRepository) ListLogs(ctx context.Context, searchID string) ([]entity.SearchLog, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT id, search_id, level, message, data, created_at
        FROM search_logs WHERE search_id = $1 ORDER BY id
    `, searchID)
	if err != nil {
		return nil, fmt.Errorf("list search logs: %w", err)
	}
	defer rows.Close()

	var logs []entity.SearchLog
	for rows.Next() {
		var (
			entry entity.SearchLog
			data  []byte
		)
		if err := rows.Scan(&entry.ID, &entry.SearchID, &entry.Level, &entry.Message, &data, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan search log row: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &entry.Data); err != nil {
				return nil, fmt.Errorf("decode log data: %w", err)
			}
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search logs: %w", err)
	}
	return logs, nil
}
