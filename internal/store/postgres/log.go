package postgres

import (
	"context"
	"podqueue/internal/store"

	"github.com/google/uuid"
)

func (s *Store) AddJobLog(ctx context.Context, jobID uuid.UUID, content string) error {
	query := `INSERT INTO job_logs (job_id, content) VALUES ($1, $2)`
	_, err := s.db.ExecContext(ctx, query, jobID, content)
	return err
}

func (s *Store) GetJobLogs(ctx context.Context, jobID uuid.UUID, afterID int64, limit int) ([]store.LogEntry, error) {
	query := `
		SELECT id, job_id, content, created_at
		FROM job_logs
		WHERE job_id = $1 AND id > $2
		ORDER BY id ASC
		LIMIT $3
	`

	rows, err := s.db.QueryContext(ctx, query, jobID, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []store.LogEntry
	for rows.Next() {
		var entry store.LogEntry
		if err := rows.Scan(&entry.ID, &entry.JobID, &entry.Content, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}

	return logs, rows.Err()
}
